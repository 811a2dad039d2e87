package gateways

import (
	"time"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
)

// Outcome classifies a verified gateway result.
type Outcome string

const (
	OutcomePaid   Outcome = "paid"
	OutcomeFailed Outcome = "failed"
)

// PaymentOutcome is the normalized result every gateway adapter produces.
// Adapters verify authenticity and extract fields; they never touch the
// order aggregate. An outcome with Verified=false must not be trusted in
// any other field and must never reach the reconciler.
type PaymentOutcome struct {
	Gateway          enums.PaymentMethod
	OrderNumber      string
	Verified         bool
	Outcome          Outcome
	Amount           int64
	GatewayReference string
	RawCode          string
	PaidAt           *time.Time
}
