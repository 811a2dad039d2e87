package notifications

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/huyanhvn/threadcraft-backend/pkg/config"
	"github.com/huyanhvn/threadcraft-backend/pkg/db/models"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

// Message is the dispatcher's input: what happened, to whom, about which order.
// Rendering to subject and body happens inside the dispatcher.
type Message struct {
	Kind        enums.NotificationKind
	Recipient   string
	OrderNumber string
	Data        map[string]string
}

// Dispatcher renders and delivers customer emails. Delivery is best effort:
// a bounded retry budget with backoff, one last direct attempt, then the
// failure is recorded and the message dropped. Callers never see an error
// from Notify.
type Dispatcher struct {
	mailer      Mailer
	repo        Repository
	logg        *logger.Logger
	maxAttempts int
	backoff     time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// DispatcherParams configure the dispatcher.
type DispatcherParams struct {
	Mailer Mailer
	Repo   Repository
	Logger *logger.Logger
	Mail   config.MailConfig
}

// NewDispatcher builds a dispatcher with the required dependencies.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Mailer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mailer required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	maxAttempts := params.Mail.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Dispatcher{
		mailer:      params.Mailer,
		repo:        params.Repo,
		logg:        params.Logger,
		maxAttempts: maxAttempts,
		backoff:     params.Mail.RetryBackoff,
		now:         time.Now,
		sleep:       sleepWithContext,
	}, nil
}

// Notify renders and delivers the message synchronously.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if !msg.Kind.IsValid() || msg.Recipient == "" {
		d.logg.Warn(ctx, "dropping notification with missing kind or recipient")
		return
	}

	email := Email{
		To:      msg.Recipient,
		Subject: renderSubject(msg.Kind, msg.OrderNumber),
		Body:    renderBody(msg),
	}

	var errs error
	attempts := 0
	delivered := false
	for attempts < d.maxAttempts {
		attempts++
		err := d.mailer.Send(ctx, email)
		if err == nil {
			delivered = true
			break
		}
		errs = multierr.Append(errs, err)
		if attempts < d.maxAttempts {
			d.sleep(ctx, d.backoff)
		}
	}

	// One last try outside the budget before giving up for good.
	if !delivered {
		attempts++
		if err := d.mailer.Send(ctx, email); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			delivered = true
		}
	}

	record := &models.Notification{
		OrderNumber: msg.OrderNumber,
		Kind:        msg.Kind,
		Recipient:   msg.Recipient,
		Subject:     email.Subject,
		Body:        email.Body,
		Delivered:   delivered,
		Attempts:    attempts,
	}
	logCtx := d.logg.WithOrderNumber(ctx, msg.OrderNumber)
	if delivered {
		sentAt := d.now().UTC()
		record.SentAt = &sentAt
	} else {
		detail := errs.Error()
		record.LastError = &detail
		d.logg.Error(logCtx, "notification delivery exhausted", errs)
	}

	if err := d.repo.Create(ctx, record); err != nil {
		d.logg.Error(logCtx, "record notification", err)
	}
}

// NotifyAsync delivers in the background, detached from the caller's
// cancellation. Used by request handlers that must not block on email.
func (d *Dispatcher) NotifyAsync(ctx context.Context, msg Message) {
	detached := context.WithoutCancel(ctx)
	go d.Notify(detached, msg)
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
