package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
	"github.com/listhub/payment-service/internal/services/order"
	pkgerrors "github.com/listhub/payment-service/pkg/errors"
	"github.com/listhub/payment-service/pkg/observability"
)

// Completion path labels for outcome metrics
const (
	pathStart  = "start"
	pathReturn = "return"
	pathIPN    = "ipn"
)

// credentialsHint replaces the gateway's bare "Authorization required"
// message with something an operator can act on.
const credentialsHint = "Authorization failed. Please check your API Key and Signature in the gateway settings. Make sure you are using the correct credentials for Sandbox or Live mode."

// notConfiguredMessage is returned when no credentials are present at all.
const notConfiguredMessage = "Payments are not configured. Please check API Key and Signature in settings."

// OrderBuilder assembles the gateway order for a purchase intent.
type OrderBuilder interface {
	Build(ctx context.Context, intent models.PurchaseIntent) (*order.Built, error)
}

// CompletionApplier applies an approved outcome exactly once.
type CompletionApplier interface {
	Apply(ctx context.Context, rec *models.TransactionRecord, outcome models.PaymentOutcome) (ApplyResult, error)
	AlreadyApplied(ctx context.Context, rec *models.TransactionRecord, ntpID string) (bool, error)
}

// StartResult is the reply to a start-payment call: either a 3DS challenge
// to run in the browser, or a final redirect.
type StartResult struct {
	Requires3DS bool
	OrderID     string

	// Challenge branch
	AuthURL   string
	FormData  map[string]string
	AuthToken string
	NtpID     string

	// Final branch
	RedirectURL string
}

// ReturnParams are the inputs recovered from a browser return redirect.
type ReturnParams struct {
	Type      models.PurchaseType
	OrderID   string
	EntityID  int64 // listing or package id, for order-id recovery
	PaRes     string
	Cancelled bool
}

// NotificationPayload is the body of a gateway IPN request.
type NotificationPayload struct {
	NtpID   string
	OrderID string
	Status  int
}

// Service orchestrates the payment flow: it starts payments, finishes 3DS
// round trips on browser return, and processes gateway notifications. All
// three paths converge on the completion applier.
type Service struct {
	gateway    ports.PaymentGateway
	ledger     ports.TransactionLedger
	builder    OrderBuilder
	completer  CompletionApplier
	gwConfig   ports.GatewayConfig
	landingURL string
	logger     *zap.Logger
}

// NewService creates a checkout service. gwConfig carries the gateway
// credentials and environment; its notify and redirect URLs are filled in
// per order.
func NewService(
	gateway ports.PaymentGateway,
	ledger ports.TransactionLedger,
	builder OrderBuilder,
	completer CompletionApplier,
	gwConfig ports.GatewayConfig,
	landingURL string,
	logger *zap.Logger,
) *Service {
	return &Service{
		gateway:    gateway,
		ledger:     ledger,
		builder:    builder,
		completer:  completer,
		gwConfig:   gwConfig,
		landingURL: landingURL,
		logger:     logger,
	}
}

// Start validates the intent and card, builds the order and opens the
// payment with the gateway. A 3DS demand is persisted to the ledger and
// surfaced to the caller; otherwise the start outcome completes the purchase
// immediately.
func (s *Service) Start(ctx context.Context, intent models.PurchaseIntent, card models.CardInput, browser map[string]string) (*StartResult, error) {
	if intent.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CategoryAuthRequired, "you must be logged in to make a payment")
	}
	if intent.EntityID() <= 0 {
		return nil, pkgerrors.New(pkgerrors.CategoryInvalidInput, fmt.Sprintf("invalid %s id", intent.Type))
	}
	if err := card.Validate(); err != nil {
		return nil, pkgerrors.New(pkgerrors.CategoryInvalidInput, err.Error())
	}
	if !s.gwConfig.Configured() {
		return nil, pkgerrors.New(pkgerrors.CategoryNotConfigured, notConfiguredMessage)
	}

	built, err := s.builder.Build(ctx, intent)
	if err != nil {
		return nil, err
	}

	observability.RecordPaymentStarted(string(intent.Type))

	cfg := s.gwConfig
	cfg.NotifyURL = built.NotifyURL
	cfg.RedirectURL = built.RedirectURL

	result, err := s.gateway.StartPayment(ctx, &ports.StartPaymentRequest{
		Config: cfg,
		Instrument: ports.CardInstrument{
			Account:  card.Number,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
			CVV:      card.CVV,
		},
		Order:       built.Order,
		BrowserData: browser,
	})
	if err != nil {
		observability.RecordPaymentOutcome(string(intent.Type), pathStart, "error")
		if strings.Contains(err.Error(), "Authorization required") {
			return nil, pkgerrors.New(pkgerrors.CategoryNotConfigured, credentialsHint)
		}
		return nil, pkgerrors.NewGateway("payment could not be started", err.Error())
	}

	if result.RequiresChallenge() {
		return s.startChallenge(ctx, built.Record, result)
	}

	outcome := result.Outcome()
	if !outcome.Approved() {
		observability.RecordPaymentOutcome(string(intent.Type), pathStart, "declined")
		return nil, pkgerrors.New(pkgerrors.CategoryVerificationFailed, "payment was not approved")
	}

	if _, err := s.completer.Apply(ctx, built.Record, outcome); err != nil {
		return nil, err
	}
	observability.RecordPaymentOutcome(string(intent.Type), pathStart, "approved")

	return &StartResult{
		Requires3DS: false,
		OrderID:     built.Record.OrderID,
		RedirectURL: s.landing("netopia_payment=success"),
	}, nil
}

// startChallenge stores the 3DS context on the ledger record and hands the
// challenge back to the browser. The form's back URL learns the order id so
// the return redirect can find the record again.
func (s *Service) startChallenge(ctx context.Context, rec *models.TransactionRecord, result *ports.GatewayResult) (*StartResult, error) {
	action := result.CustomerAction

	form := make(map[string]string, len(action.FormData))
	for k, v := range action.FormData {
		form[k] = v
	}
	if back, ok := form["backUrl"]; ok {
		form["backUrl"] = appendQuery(back, "order_id", rec.OrderID)
	}

	rec.AuthToken = action.AuthenticationToken
	rec.GatewayTransactionID = result.Payment.NtpID
	rec.ChallengeForm = form
	if err := s.ledger.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store challenge context: %w", err)
	}

	observability.RecordChallengeIssued(string(rec.Type))

	s.logger.Info("3ds challenge issued",
		zap.String("order_id", rec.OrderID),
		zap.String("ntp_id", result.Payment.NtpID),
	)

	return &StartResult{
		Requires3DS: true,
		OrderID:     rec.OrderID,
		AuthURL:     action.URL,
		FormData:    form,
		AuthToken:   action.AuthenticationToken,
		NtpID:       result.Payment.NtpID,
	}, nil
}

// HandleReturn finishes a 3DS round trip when the browser comes back from
// the challenge. It never fails outward: every path ends in a redirect URL
// carrying the outcome.
func (s *Service) HandleReturn(ctx context.Context, params ReturnParams) string {
	rec, redirect := s.recoverRecord(ctx, params)
	if rec == nil {
		return redirect
	}

	if params.PaRes == "" {
		if params.Cancelled {
			s.logger.Info("3ds challenge cancelled", zap.String("order_id", rec.OrderID))
			observability.RecordPaymentOutcome(string(rec.Type), pathReturn, "cancelled")
			return s.landing("netopia_payment=cancelled")
		}
		s.logger.Warn("3ds return without PaRes", zap.String("order_id", rec.OrderID))
		observability.RecordPaymentOutcome(string(rec.Type), pathReturn, "error")
		return s.landing("netopia_payment=error&reason=missing_pares")
	}

	result, err := s.gateway.VerifyAuthentication(ctx, rec.AuthToken, rec.GatewayTransactionID, params.PaRes)
	if err != nil {
		s.logger.Error("3ds verification failed",
			zap.String("order_id", rec.OrderID),
			zap.Error(err),
		)
		observability.RecordPaymentOutcome(string(rec.Type), pathReturn, "error")
		return s.landing("netopia_payment=error&message=" + url.QueryEscape(err.Error()))
	}

	outcome := result.Outcome()
	if outcome.GatewayTransactionID == "" {
		outcome.GatewayTransactionID = rec.GatewayTransactionID
	}
	if !outcome.Approved() {
		observability.RecordPaymentOutcome(string(rec.Type), pathReturn, "declined")
		return s.landing("netopia_payment=error&reason=payment_not_approved")
	}

	if _, err := s.completer.Apply(ctx, rec, outcome); err != nil {
		s.logger.Error("completion failed on return path",
			zap.String("order_id", rec.OrderID),
			zap.Error(err),
		)
		observability.RecordPaymentOutcome(string(rec.Type), pathReturn, "error")
		return s.landing("netopia_payment=error&reason=completion_failed")
	}

	observability.RecordPaymentOutcome(string(rec.Type), pathReturn, "approved")
	return s.landing("netopia_payment=success")
}

// recoverRecord finds the ledger record for a return redirect. The order id
// normally rides the redirect; when a listing return lost it, a ledger scan
// by listing id is the last resort. A nil record means the second return
// value is the final redirect.
func (s *Service) recoverRecord(ctx context.Context, params ReturnParams) (*models.TransactionRecord, string) {
	orderID := params.OrderID

	if orderID == "" && params.Type == models.PurchaseTypeListing && params.EntityID > 0 {
		rec, err := s.ledger.FindByEntity(ctx, params.Type, params.EntityID)
		if err == nil {
			s.logger.Warn("order id recovered by ledger scan",
				zap.String("order_id", rec.OrderID),
				zap.Int64("entity_id", params.EntityID),
			)
			return rec, ""
		}
	}

	if orderID == "" {
		s.logger.Warn("return redirect without order id")
		return nil, s.landing("netopia_payment=error&reason=missing_order_id")
	}

	rec, err := s.ledger.Get(ctx, orderID)
	if err != nil {
		s.logger.Warn("transaction not found in ledger",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		observability.RecordPaymentOutcome(string(params.Type), pathReturn, "expired")
		return nil, s.landing("netopia_payment=error&reason=transaction_not_found")
	}
	return rec, ""
}

// ErrBadNotification marks an IPN request whose shape is unusable; the
// handler answers 400 so the provider retries later.
var ErrBadNotification = pkgerrors.New(pkgerrors.CategoryInvalidInput, "invalid notification data")

// HandleNotification processes a gateway IPN. The payload's status is never
// trusted: after the marker short-circuit the authoritative status is
// fetched from the gateway. Malformed order ids are logged and ignored so
// the provider stops retrying them.
func (s *Service) HandleNotification(ctx context.Context, payload NotificationPayload) error {
	if payload.NtpID == "" && payload.OrderID == "" {
		observability.RecordIPNRequest("rejected")
		return ErrBadNotification
	}
	if payload.NtpID == "" || payload.OrderID == "" {
		s.logger.Warn("ipn missing ntp id or order id",
			zap.String("ntp_id", payload.NtpID),
			zap.String("order_id", payload.OrderID),
		)
		observability.RecordIPNRequest("ignored")
		return nil
	}

	parts, err := models.ParseOrderID(payload.OrderID)
	if err != nil {
		s.logger.Warn("ipn with malformed order id",
			zap.String("order_id", payload.OrderID),
			zap.Error(err),
		)
		observability.RecordIPNRequest("ignored")
		return nil
	}

	rec := s.recordForNotification(ctx, payload.OrderID, parts)

	done, err := s.completer.AlreadyApplied(ctx, rec, payload.NtpID)
	if err != nil {
		s.logger.Error("failed to check completion marker for ipn",
			zap.String("order_id", payload.OrderID),
			zap.Error(err),
		)
		observability.RecordIPNRequest("ignored")
		return nil
	}
	if done {
		s.logger.Info("ipn for already completed transaction",
			zap.String("order_id", payload.OrderID),
			zap.String("ntp_id", payload.NtpID),
		)
		observability.RecordIPNRequest("duplicate")
		return nil
	}

	result, err := s.gateway.GetStatus(ctx, payload.NtpID, payload.OrderID)
	if err != nil {
		s.logger.Error("failed to fetch payment status for ipn",
			zap.String("ntp_id", payload.NtpID),
			zap.String("order_id", payload.OrderID),
			zap.Error(err),
		)
		observability.RecordIPNRequest("ignored")
		return nil
	}

	outcome := result.Outcome()
	if outcome.GatewayTransactionID == "" {
		outcome.GatewayTransactionID = payload.NtpID
	}

	applied, err := s.completer.Apply(ctx, rec, outcome)
	if err != nil {
		s.logger.Error("completion failed on ipn path",
			zap.String("order_id", payload.OrderID),
			zap.Error(err),
		)
		observability.RecordIPNRequest("ignored")
		return nil
	}

	switch applied {
	case ApplyApplied:
		observability.RecordPaymentOutcome(string(parts.Type), pathIPN, "approved")
		observability.RecordIPNRequest("processed")
	case ApplyDuplicate:
		observability.RecordIPNRequest("duplicate")
	default:
		observability.RecordPaymentOutcome(string(parts.Type), pathIPN, "declined")
		observability.RecordIPNRequest("processed")
	}
	return nil
}

// recordForNotification loads the ledger record behind an IPN, or rebuilds a
// minimal one from the order id when the ledger entry is gone. Featured and
// upgrade flags default to false in that case, as the storefront did.
func (s *Service) recordForNotification(ctx context.Context, orderID string, parts models.OrderIDParts) *models.TransactionRecord {
	rec, err := s.ledger.Get(ctx, orderID)
	if err == nil {
		return rec
	}

	s.logger.Warn("ledger entry missing for ipn, rebuilding from order id",
		zap.String("order_id", orderID),
	)
	return &models.TransactionRecord{
		OrderID:  orderID,
		Type:     parts.Type,
		EntityID: parts.EntityID,
		UserID:   parts.UserID,
	}
}

func (s *Service) landing(query string) string {
	sep := "?"
	if strings.Contains(s.landingURL, "?") {
		sep = "&"
	}
	return s.landingURL + sep + query
}

func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
