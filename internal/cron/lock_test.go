package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubRedisStore struct {
	values map[string]string
}

func newStubRedisStore() *stubRedisStore {
	return &stubRedisStore{values: map[string]string{}}
}

func (s *stubRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *stubRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *stubRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	store := newStubRedisStore()
	lock, err := NewRedisLock(store, "cron:lock", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("first acquire must succeed, got %v %v", ok, err)
	}

	other, _ := NewRedisLock(store, "cron:lock", time.Minute)
	ok, err = other.Acquire(context.Background())
	if err != nil || ok {
		t.Fatalf("second acquire must fail while held, got %v %v", ok, err)
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = other.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("acquire after release must succeed, got %v %v", ok, err)
	}
}

func TestRedisLockReleaseOnlyOwned(t *testing.T) {
	store := newStubRedisStore()
	lock, _ := NewRedisLock(store, "cron:lock", time.Minute)

	// Releasing without holding is a no-op.
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release unheld lock: %v", err)
	}

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}

	// Simulate the TTL expiring and a different instance taking over.
	store.values["cron:lock"] = "someone-else"
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["cron:lock"] != "someone-else" {
		t.Fatal("must not delete a lock owned by another instance")
	}
}
