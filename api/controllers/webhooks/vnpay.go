package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/huyanhvn/threadcraft-backend/api/responses"
	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	"github.com/huyanhvn/threadcraft-backend/internal/reconcile"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
	"github.com/huyanhvn/threadcraft-backend/pkg/logger"
)

// VNPayVerifier re-verifies the signed callback query.
type VNPayVerifier interface {
	Verify(params url.Values) gateways.PaymentOutcome
}

// Reconciler applies a verified gateway outcome to the order.
type Reconciler interface {
	Apply(ctx context.Context, outcome gateways.PaymentOutcome) (reconcile.Result, error)
}

// vnpayIPNResponse is the acknowledgement shape the VNPAY gateway expects.
// It is not wrapped in the API envelope.
type vnpayIPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// VNPayIPN handles the server-to-server confirmation call. VNPAY retries
// until it receives RspCode 00, so duplicates must also acknowledge.
func VNPayIPN(verifier VNPayVerifier, reconciler Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if verifier == nil || reconciler == nil {
			writeIPN(w, vnpayIPNResponse{RspCode: "99", Message: "Unknown error"})
			return
		}

		outcome := verifier.Verify(r.URL.Query())
		if !outcome.Verified {
			if logg != nil {
				logg.Warn(logg.WithGateway(ctx, "vnpay"), "ipn signature verification failed")
			}
			writeIPN(w, vnpayIPNResponse{RspCode: "97", Message: "Invalid signature"})
			return
		}

		result, err := reconciler.Apply(ctx, outcome)
		if err != nil {
			if logg != nil {
				logg.Error(logg.WithGateway(ctx, "vnpay"), "ipn reconciliation failed", err)
			}
			writeIPN(w, vnpayIPNResponse{RspCode: "99", Message: "Unknown error"})
			return
		}

		writeIPN(w, ipnResponseFor(result))
	}
}

func ipnResponseFor(result reconcile.Result) vnpayIPNResponse {
	switch result {
	case reconcile.ResultApplied, reconcile.ResultFailedPayment, reconcile.ResultDuplicate:
		return vnpayIPNResponse{RspCode: "00", Message: "Confirm Success"}
	case reconcile.ResultOrderNotFound:
		return vnpayIPNResponse{RspCode: "01", Message: "Order not found"}
	case reconcile.ResultAmountMismatch:
		return vnpayIPNResponse{RspCode: "04", Message: "Invalid amount"}
	case reconcile.ResultRejected:
		return vnpayIPNResponse{RspCode: "02", Message: "Order already confirmed"}
	default:
		return vnpayIPNResponse{RspCode: "99", Message: "Unknown error"}
	}
}

func writeIPN(w http.ResponseWriter, resp vnpayIPNResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

type vnpayReturnResponse struct {
	OrderNumber string `json:"order_number"`
	Result      string `json:"result"`
}

// VNPayReturn handles the customer's browser redirect. The query is
// re-verified and reconciled the same way the IPN is; whichever lands first
// wins and the other becomes a duplicate.
func VNPayReturn(verifier VNPayVerifier, reconciler Reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if verifier == nil || reconciler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vnpay gateway unavailable"))
			return
		}

		outcome := verifier.Verify(r.URL.Query())
		if !outcome.Verified {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeVerificationFailed, "payment verification failed"))
			return
		}

		result, err := reconciler.Apply(ctx, outcome)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, vnpayReturnResponse{
			OrderNumber: outcome.OrderNumber,
			Result:      string(result),
		})
	}
}
