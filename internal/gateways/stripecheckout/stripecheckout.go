package stripecheckout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	pkgstripe "github.com/huyanhvn/threadcraft-backend/pkg/stripe"
)

// metadataOrderNumber is stamped on every session and payment intent we
// create so webhook events can be correlated back to an order.
const metadataOrderNumber = "order_number"

// SessionClient exposes the subset of Stripe operations the adapter needs,
// so services can be tested without the network.
type SessionClient interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type sessionClientWrapper struct{}

// NewSessionClient wraps the initialized Stripe client.
func NewSessionClient(api *pkgstripe.Client) SessionClient {
	if api == nil {
		return nil
	}
	return &sessionClientWrapper{}
}

func (w *sessionClientWrapper) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

// Adapter verifies Stripe webhook deliveries and creates checkout sessions.
type Adapter struct {
	sessions      SessionClient
	signingSecret string
	successURL    string
	cancelURL     string
}

// AdapterParams configure the adapter.
type AdapterParams struct {
	Sessions      SessionClient
	SigningSecret string
	SuccessURL    string
	CancelURL     string
}

// New constructs an Adapter. Sessions may be nil in webhook-only
// deployments; CreateCheckoutSession requires it.
func New(params AdapterParams) (*Adapter, error) {
	if params.SigningSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook secret required")
	}
	return &Adapter{
		sessions:      params.Sessions,
		signingSecret: params.SigningSecret,
		successURL:    params.SuccessURL,
		cancelURL:     params.CancelURL,
	}, nil
}

// VerifyEvent checks the webhook signature over the raw, unparsed body.
// The raw bytes must reach this function untouched; re-serializing a parsed
// body invalidates the signature.
func (a *Adapter) VerifyEvent(payload []byte, sigHeader string) (*stripe.Event, error) {
	if sigHeader == "" {
		return nil, pkgerrors.New(pkgerrors.CodeVerificationFailed, "stripe signature header missing")
	}
	event, err := webhook.ConstructEvent(payload, sigHeader, a.signingSecret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeVerificationFailed, err, "verify stripe signature")
	}
	return &event, nil
}

// OutcomeFromEvent maps an allow-listed event to a normalized outcome.
// Events outside the allow-list return ok=false and are acknowledged
// without producing an outcome.
func (a *Adapter) OutcomeFromEvent(event *stripe.Event) (gateways.PaymentOutcome, bool, error) {
	outcome := gateways.PaymentOutcome{Gateway: enums.PaymentMethodStripe}
	if event == nil || event.Data == nil {
		return outcome, false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var checkout stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &checkout); err != nil {
			return outcome, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		orderNumber := checkout.Metadata[metadataOrderNumber]
		if orderNumber == "" {
			return outcome, false, pkgerrors.New(pkgerrors.CodeValidation, "checkout session missing order number metadata")
		}
		paidAt := time.Unix(event.Created, 0).UTC()
		outcome.Verified = true
		outcome.Outcome = gateways.OutcomePaid
		outcome.OrderNumber = orderNumber
		outcome.Amount = checkout.AmountTotal
		outcome.GatewayReference = checkout.ID
		outcome.RawCode = string(event.Type)
		outcome.PaidAt = &paidAt
		return outcome, true, nil

	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return outcome, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		orderNumber := intent.Metadata[metadataOrderNumber]
		if orderNumber == "" {
			return outcome, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent missing order number metadata")
		}
		outcome.Verified = true
		outcome.OrderNumber = orderNumber
		outcome.Amount = intent.Amount
		outcome.GatewayReference = intent.ID
		outcome.RawCode = string(event.Type)
		if event.Type == stripe.EventTypePaymentIntentSucceeded {
			paidAt := time.Unix(event.Created, 0).UTC()
			outcome.Outcome = gateways.OutcomePaid
			outcome.PaidAt = &paidAt
		} else {
			outcome.Outcome = gateways.OutcomeFailed
			if intent.LastPaymentError != nil && intent.LastPaymentError.Code != "" {
				outcome.RawCode = string(intent.LastPaymentError.Code)
			}
		}
		return outcome, true, nil

	default:
		return outcome, false, nil
	}
}

// SessionInput carries the authoritative order fields for session creation.
type SessionInput struct {
	OrderNumber   string
	Amount        int64
	Description   string
	CustomerEmail string
}

// CreateCheckoutSession opens a Stripe Checkout session for the order's
// authoritative total and returns the session id plus redirect URL.
func (a *Adapter) CreateCheckoutSession(ctx context.Context, input SessionInput) (string, string, error) {
	if a.sessions == nil {
		return "", "", pkgerrors.New(pkgerrors.CodeDependency, "stripe session client not configured")
	}
	if input.OrderNumber == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if input.Amount <= 0 {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(a.successURL),
		CancelURL:  stripe.String(a.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyVND)),
					UnitAmount: stripe.Int64(input.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(input.Description),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataOrderNumber: input.OrderNumber},
		},
	}
	params.AddMetadata(metadataOrderNumber, input.OrderNumber)
	if input.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(input.CustomerEmail)
	}

	created, err := a.sessions.CreateSession(ctx, params)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return created.ID, created.URL, nil
}
