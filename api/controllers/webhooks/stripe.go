package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/huyanhvn/threadcraft-backend/api/responses"
	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

// StripeEventVerifier checks the webhook signature and maps event payloads.
type StripeEventVerifier interface {
	VerifyEvent(payload []byte, sigHeader string) (*stripe.Event, error)
	OutcomeFromEvent(event *stripe.Event) (gateways.PaymentOutcome, bool, error)
}

// StripeGuard deduplicates deliveries by event id.
type StripeGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// maxStripeBodyBytes bounds webhook payload reads.
const maxStripeBodyBytes = 1 << 20

// Stripe handles checkout lifecycle events. Unhandled event types are
// acknowledged so Stripe stops retrying them.
func Stripe(adapter StripeEventVerifier, guard StripeGuard, reconciler Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adapter == nil || reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxStripeBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeVerificationFailed, "stripe signature missing"))
			return
		}

		event, err := adapter.VerifyEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if guard != nil {
			alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if alreadyProcessed {
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		outcome, handled, err := adapter.OutcomeFromEvent(event)
		if err != nil {
			releaseGuard(ctx, guard, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !handled {
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		result, err := reconciler.Apply(ctx, outcome)
		if err != nil {
			releaseGuard(ctx, guard, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			fields := map[string]any{"event_id": event.ID, "result": string(result)}
			logg.Info(logg.WithFields(logg.WithGateway(ctx, "stripe"), fields), "stripe event reconciled")
		}
		responses.WriteSuccess(w, map[string]string{"status": string(result)})
	}
}

func releaseGuard(ctx context.Context, guard StripeGuard, eventID string) {
	if guard == nil {
		return
	}
	_ = guard.Delete(ctx, eventID)
}
