package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/huyanhvn/threadcraft-backend/internal/gateways"
	"github.com/huyanhvn/threadcraft-backend/pkg/config"
	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
	pkgerrors "github.com/huyanhvn/threadcraft-backend/pkg/errors"
)

// VNPAY reports amounts multiplied by 100 and timestamps in GMT+7.
const (
	responseCodeSuccess = "00"
	payDateLayout       = "20060102150405"
	versionValue        = "2.1.0"
)

var payDateZone = time.FixedZone("ICT", 7*60*60)

// Adapter verifies signed VNPAY callbacks and builds payment URLs.
type Adapter struct {
	tmnCode    string
	hashSecret string
	payURL     string
	returnURL  string
	now        func() time.Time
}

// New constructs an Adapter from merchant configuration.
func New(cfg config.VNPayConfig) (*Adapter, error) {
	if strings.TrimSpace(cfg.TmnCode) == "" {
		return nil, fmt.Errorf("vnpay tmn code required")
	}
	if strings.TrimSpace(cfg.HashSecret) == "" {
		return nil, fmt.Errorf("vnpay hash secret required")
	}
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, fmt.Errorf("vnpay pay url required")
	}
	return &Adapter{
		tmnCode:    cfg.TmnCode,
		hashSecret: cfg.HashSecret,
		payURL:     cfg.PayURL,
		returnURL:  cfg.ReturnURL,
		now:        time.Now,
	}, nil
}

// Verify checks the signature over the callback parameters and extracts a
// normalized outcome. The input is never mutated. A signature mismatch or a
// malformed payload yields Verified=false and no other trusted field.
func (a *Adapter) Verify(params url.Values) gateways.PaymentOutcome {
	outcome := gateways.PaymentOutcome{Gateway: enums.PaymentMethodVNPay}

	provided := params.Get("vnp_SecureHash")
	if provided == "" {
		return outcome
	}

	expected := a.sign(canonicalize(params))
	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return outcome
	}

	orderNumber := params.Get("vnp_TxnRef")
	if orderNumber == "" {
		return outcome
	}

	amount, err := parseAmount(params.Get("vnp_Amount"))
	if err != nil {
		return outcome
	}

	outcome.Verified = true
	outcome.OrderNumber = orderNumber
	outcome.Amount = amount
	outcome.GatewayReference = params.Get("vnp_TransactionNo")
	outcome.RawCode = params.Get("vnp_ResponseCode")

	if outcome.RawCode == responseCodeSuccess {
		outcome.Outcome = gateways.OutcomePaid
		if paidAt, err := time.ParseInLocation(payDateLayout, params.Get("vnp_PayDate"), payDateZone); err == nil {
			utc := paidAt.UTC()
			outcome.PaidAt = &utc
		}
	} else {
		outcome.Outcome = gateways.OutcomeFailed
	}
	return outcome
}

// PayURLInput carries the authoritative order fields for building a redirect.
type PayURLInput struct {
	OrderNumber string
	Amount      int64
	OrderInfo   string
	ClientIP    string
	ReturnURL   string
}

// BuildPayURL produces the signed redirect URL the storefront sends the
// customer to. The amount comes from the order record, never the client.
func (a *Adapter) BuildPayURL(input PayURLInput) (string, error) {
	if input.OrderNumber == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if input.Amount <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	returnURL := input.ReturnURL
	if returnURL == "" {
		returnURL = a.returnURL
	}

	now := a.now().In(payDateZone)
	params := url.Values{}
	params.Set("vnp_Version", versionValue)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", a.tmnCode)
	params.Set("vnp_Amount", decimal.NewFromInt(input.Amount).Mul(decimal.NewFromInt(100)).String())
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", input.OrderNumber)
	params.Set("vnp_OrderInfo", input.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", "vn")
	params.Set("vnp_IpAddr", input.ClientIP)
	params.Set("vnp_ReturnUrl", returnURL)
	params.Set("vnp_CreateDate", now.Format(payDateLayout))
	params.Set("vnp_ExpireDate", now.Add(15*time.Minute).Format(payDateLayout))

	canonical := canonicalize(params)
	signature := a.sign(canonical)
	return fmt.Sprintf("%s?%s&vnp_SecureHash=%s", a.payURL, canonical, signature), nil
}

func (a *Adapter) sign(canonical string) string {
	mac := hmac.New(sha512.New, []byte(a.hashSecret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalize percent-encodes every key and value, sorts pairs by encoded
// key, and joins them as key=value&... The signature fields themselves are
// excluded. The input values are left untouched.
func canonicalize(params url.Values) string {
	pairs := make([][2]string, 0, len(params))
	for key, values := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if len(values) == 0 || values[0] == "" {
			continue
		}
		pairs = append(pairs, [2]string{url.QueryEscape(key), url.QueryEscape(values[0])})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	var sb strings.Builder
	for i, pair := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(pair[0])
		sb.WriteByte('=')
		sb.WriteString(pair[1])
	}
	return sb.String()
}

// parseAmount converts the x100 scaled field back to whole currency units.
// Fractional or non-numeric input is rejected rather than rounded.
func parseAmount(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("amount missing")
	}
	scaled, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("amount %q not numeric: %w", raw, err)
	}
	amount := scaled.Div(decimal.NewFromInt(100))
	if !amount.IsInteger() {
		return 0, fmt.Errorf("amount %q not a whole unit after descaling", raw)
	}
	return amount.IntPart(), nil
}
