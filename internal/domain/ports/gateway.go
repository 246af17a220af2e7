package ports

import (
	"context"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/shopspring/decimal"
)

// GatewayConfig carries the per-request gateway credentials and environment.
// It is constructed once from configuration and passed by value; nothing in
// the core reads ambient settings.
type GatewayConfig struct {
	APIKeySandbox string
	APIKeyLive    string
	Signature     string
	Sandbox       bool
	Currency      string
	Language      string
	NotifyURL     string
	RedirectURL   string
}

// APIKey returns the key for the active environment.
func (c GatewayConfig) APIKey() string {
	if c.Sandbox {
		return c.APIKeySandbox
	}
	return c.APIKeyLive
}

// Configured reports whether the gateway has usable credentials.
func (c GatewayConfig) Configured() bool {
	return c.APIKey() != "" && c.Signature != ""
}

// CardInstrument is the payment instrument sent to the gateway.
type CardInstrument struct {
	Account  string
	ExpMonth int
	ExpYear  int
	CVV      string
}

// OrderData is the full order payload for a start-payment call.
type OrderData struct {
	OrderID     string
	Description string
	Amount      decimal.Decimal
	Currency    string
	Billing     models.BillingInfo
	Shipping    models.BillingInfo
	Products    []models.Product
}

// StartPaymentRequest bundles everything a start-payment call needs.
type StartPaymentRequest struct {
	Config     GatewayConfig
	Instrument CardInstrument
	Order      OrderData
	// Browser fingerprint data forwarded for 3DS risk scoring; opaque here.
	BrowserData map[string]string
}

// CustomerAction is the gateway's request for an out-of-band step, today
// only the 3DS challenge redirect.
type CustomerAction struct {
	Type                string // "Authentication3D" when a challenge is required
	URL                 string
	AuthenticationToken string
	FormData            map[string]string
}

// CustomerActionAuthentication3D marks a 3DS challenge customer action.
const CustomerActionAuthentication3D = "Authentication3D"

// PaymentState is the gateway's view of a payment inside a result payload.
type PaymentState struct {
	NtpID  string
	Status int
}

// GatewayResult is the normalized outcome of any gateway call. All three
// operations return this shape so the orchestrator treats them uniformly.
type GatewayResult struct {
	Code    int
	Message string

	Payment        PaymentState
	ApprovalCode   string
	CustomerAction *CustomerAction // nil unless the gateway demands a step-up
}

// RequiresChallenge reports whether the result demands a 3DS round trip.
func (r *GatewayResult) RequiresChallenge() bool {
	return r.CustomerAction != nil && r.CustomerAction.Type == CustomerActionAuthentication3D
}

// Outcome derives the completion-relevant fields from the result.
func (r *GatewayResult) Outcome() models.PaymentOutcome {
	return models.PaymentOutcome{
		GatewayTransactionID: r.Payment.NtpID,
		StatusCode:           r.Payment.Status,
		ApprovalCode:         r.ApprovalCode,
	}
}

// PaymentGateway defines the three remote operations the orchestrator needs
// from the payment provider. Implementations unwrap the provider envelope
// {status, code, message, data} and fail on anything that does not match.
type PaymentGateway interface {
	// StartPayment opens a payment. The result either carries a final
	// payment state or a 3DS customer action.
	StartPayment(ctx context.Context, req *StartPaymentRequest) (*GatewayResult, error)

	// VerifyAuthentication verifies a completed 3DS challenge. Used only
	// when StartPayment demanded one.
	VerifyAuthentication(ctx context.Context, authToken, ntpID, paRes string) (*GatewayResult, error)

	// GetStatus fetches the authoritative payment status. The notification
	// path always calls this rather than trusting the notification body.
	GetStatus(ctx context.Context, ntpID, orderID string) (*GatewayResult, error)
}
