package stripecheckout

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	pkgstripe "github.com/huyanhvn/threadcraft-backend/pkg/stripe"
)

const testSecret = "whsec_test"

func testAdapter(t *testing.T, sessions SessionClient) *Adapter {
	t.Helper()
	adapter, err := New(AdapterParams{
		Sessions:      sessions,
		SigningSecret: testSecret,
		SuccessURL:    "https://shop.example.com/payments/success",
		CancelURL:     "https://shop.example.com/payments/cancel",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func marshalEvent(t *testing.T, eventType stripe.EventType, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal object: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_test_1",
		APIVersion: stripe.APIVersion,
		Type:       eventType,
		Object:     "event",
		Created:    time.Date(2025, 9, 1, 10, 2, 3, 0, time.UTC).Unix(),
		Data:       &stripe.EventData{Raw: raw},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func TestNewSessionClient(t *testing.T) {
	if got := NewSessionClient(nil); got != nil {
		t.Fatalf("expected nil wrapper for nil client, got %v", got)
	}
	if got := NewSessionClient(&pkgstripe.Client{}); got == nil {
		t.Fatal("expected wrapper for initialized client")
	}
}

func TestVerifyEventAcceptsValidSignature(t *testing.T) {
	adapter := testAdapter(t, nil)
	payload := marshalEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:          "cs_test_1",
		AmountTotal: 500000,
		Metadata:    map[string]string{"order_number": "TC-20250901-4821"},
	})

	event, err := adapter.VerifyEvent(payload, signatureHeader(payload, testSecret, time.Now().Unix()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		t.Fatalf("unexpected event type %s", event.Type)
	}
}

func TestVerifyEventRejectsBadSignature(t *testing.T) {
	adapter := testAdapter(t, nil)
	payload := marshalEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{ID: "cs_test_1"})

	_, err := adapter.VerifyEvent(payload, signatureHeader(payload, "whsec_other", time.Now().Unix()))
	if err == nil {
		t.Fatalf("expected verification failure")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeVerificationFailed) {
		t.Fatalf("expected VERIFICATION_FAILED, got %v", err)
	}
}

func TestVerifyEventRejectsMissingHeader(t *testing.T) {
	adapter := testAdapter(t, nil)
	if _, err := adapter.VerifyEvent([]byte("{}"), ""); err == nil {
		t.Fatalf("expected error for missing header")
	}
}

func TestOutcomeFromCheckoutSessionCompleted(t *testing.T) {
	adapter := testAdapter(t, nil)
	raw, _ := json.Marshal(&stripe.CheckoutSession{
		ID:          "cs_test_1",
		AmountTotal: 500000,
		Metadata:    map[string]string{"order_number": "TC-20250901-4821"},
	})
	event := &stripe.Event{
		Type:    stripe.EventTypeCheckoutSessionCompleted,
		Created: 1756720923,
		Data:    &stripe.EventData{Raw: raw},
	}

	outcome, ok, err := adapter.OutcomeFromEvent(event)
	if err != nil || !ok {
		t.Fatalf("expected actionable outcome, ok=%v err=%v", ok, err)
	}
	if !outcome.Verified || outcome.Outcome != gateways.OutcomePaid {
		t.Fatalf("expected verified paid outcome, got %+v", outcome)
	}
	if outcome.OrderNumber != "TC-20250901-4821" || outcome.Amount != 500000 {
		t.Fatalf("field mapping wrong: %+v", outcome)
	}
	if outcome.GatewayReference != "cs_test_1" {
		t.Fatalf("gateway reference should be the session id")
	}
	if outcome.PaidAt == nil {
		t.Fatalf("expected paid-at from event timestamp")
	}
}

func TestOutcomeFromPaymentIntentFailed(t *testing.T) {
	adapter := testAdapter(t, nil)
	raw, _ := json.Marshal(&stripe.PaymentIntent{
		ID:       "pi_test_1",
		Amount:   500000,
		Metadata: map[string]string{"order_number": "TC-20250901-4821"},
		LastPaymentError: &stripe.Error{
			Code: stripe.ErrorCodeCardDeclined,
		},
	})
	event := &stripe.Event{
		Type: stripe.EventTypePaymentIntentPaymentFailed,
		Data: &stripe.EventData{Raw: raw},
	}

	outcome, ok, err := adapter.OutcomeFromEvent(event)
	if err != nil || !ok {
		t.Fatalf("expected actionable outcome, ok=%v err=%v", ok, err)
	}
	if outcome.Outcome != gateways.OutcomeFailed {
		t.Fatalf("expected failed outcome")
	}
	if outcome.RawCode != string(stripe.ErrorCodeCardDeclined) {
		t.Fatalf("expected declined raw code, got %q", outcome.RawCode)
	}
}

func TestOutcomeIgnoresUnlistedEventTypes(t *testing.T) {
	adapter := testAdapter(t, nil)
	event := &stripe.Event{
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	}
	_, ok, err := adapter.OutcomeFromEvent(event)
	if err != nil {
		t.Fatalf("unlisted types must be ignored without error, got %v", err)
	}
	if ok {
		t.Fatalf("unlisted types must not produce outcomes")
	}
}

func TestOutcomeRequiresOrderNumberMetadata(t *testing.T) {
	adapter := testAdapter(t, nil)
	raw, _ := json.Marshal(&stripe.CheckoutSession{ID: "cs_test_1"})
	event := &stripe.Event{
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
	if _, _, err := adapter.OutcomeFromEvent(event); err == nil {
		t.Fatalf("missing order metadata must be an error")
	}
}

type fakeSessionClient struct {
	params *stripe.CheckoutSessionParams
	result *stripe.CheckoutSession
	err    error
}

func (f *fakeSessionClient) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestCreateCheckoutSessionUsesAuthoritativeAmount(t *testing.T) {
	fake := &fakeSessionClient{
		result: &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/pay/cs_test_1"},
	}
	adapter := testAdapter(t, fake)

	id, redirect, err := adapter.CreateCheckoutSession(context.Background(), SessionInput{
		OrderNumber:   "TC-20250901-4821",
		Amount:        500000,
		Description:   "Order TC-20250901-4821",
		CustomerEmail: "linh@example.com",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if id != "cs_test_1" || redirect == "" {
		t.Fatalf("unexpected session result %s %s", id, redirect)
	}

	if fake.params.Metadata["order_number"] != "TC-20250901-4821" {
		t.Fatalf("session metadata missing order number")
	}
	if fake.params.PaymentIntentData.Metadata["order_number"] != "TC-20250901-4821" {
		t.Fatalf("payment intent metadata missing order number")
	}
	if *fake.params.LineItems[0].PriceData.UnitAmount != 500000 {
		t.Fatalf("line item amount must come from the order")
	}
}

func TestCreateCheckoutSessionValidatesInput(t *testing.T) {
	adapter := testAdapter(t, &fakeSessionClient{result: &stripe.CheckoutSession{}})
	if _, _, err := adapter.CreateCheckoutSession(context.Background(), SessionInput{Amount: 100}); err == nil {
		t.Fatalf("missing order number must fail")
	}
	if _, _, err := adapter.CreateCheckoutSession(context.Background(), SessionInput{OrderNumber: "x"}); err == nil {
		t.Fatalf("non-positive amount must fail")
	}
}
