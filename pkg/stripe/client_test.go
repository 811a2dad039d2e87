package stripe

import (
	"context"
	"testing"

	"github.com/huyanhvn/threadcraft-backend/pkg/config"
)

func TestNewClientValidatesKeyAgainstEnv(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{"test key in test env", config.StripeConfig{APIKey: "sk_test_abc", WebhookSecret: "whsec_x", Env: "test"}, false},
		{"live key in test env", config.StripeConfig{APIKey: "sk_live_abc", WebhookSecret: "whsec_x", Env: "test"}, true},
		{"test key in live env", config.StripeConfig{APIKey: "sk_test_abc", WebhookSecret: "whsec_x", Env: "live"}, true},
		{"missing webhook secret", config.StripeConfig{APIKey: "sk_test_abc", Env: "test"}, true},
		{"missing api key", config.StripeConfig{WebhookSecret: "whsec_x", Env: "test"}, true},
		{"bogus env", config.StripeConfig{APIKey: "sk_test_abc", WebhookSecret: "whsec_x", Env: "sandbox"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.SigningSecret() != "whsec_x" {
				t.Fatalf("signing secret not retained")
			}
		})
	}
}

func TestEnvDefaultsToTest(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_abc",
		WebhookSecret: "whsec_x",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != "test" {
		t.Fatalf("expected test env, got %s", client.Environment())
	}
}
