package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/domain/models"
	checkoutsvc "github.com/listhub/payment-service/internal/services/checkout"
	pkgerrors "github.com/listhub/payment-service/pkg/errors"
)

// userIDHeader carries the authenticated caller's id, set by the fronting
// auth proxy. This service does not own sessions.
const userIDHeader = "X-User-ID"

// Service is the checkout surface the handlers drive.
type Service interface {
	Start(ctx context.Context, intent models.PurchaseIntent, card models.CardInput, browser map[string]string) (*checkoutsvc.StartResult, error)
	HandleReturn(ctx context.Context, params checkoutsvc.ReturnParams) string
	HandleNotification(ctx context.Context, payload checkoutsvc.NotificationPayload) error
}

// StartHandler serves the two start-payment endpoints.
type StartHandler struct {
	service Service
	logger  *zap.Logger
}

// NewStartHandler creates a start-payment handler
func NewStartHandler(service Service, logger *zap.Logger) *StartHandler {
	return &StartHandler{service: service, logger: logger}
}

type cardRequest struct {
	CardNumber string `json:"card_number"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CVV        string `json:"cvv"`
}

type packageStartRequest struct {
	PackageID int64 `json:"package_id"`
	cardRequest
}

type listingStartRequest struct {
	ListingID  int64 `json:"listing_id"`
	IsFeatured bool  `json:"is_featured"`
	IsUpgrade  bool  `json:"is_upgrade"`
	cardRequest
}

type startResponse struct {
	Requires3DS bool              `json:"requires_3ds"`
	OrderID     string            `json:"order_id"`
	AuthURL     string            `json:"auth_url,omitempty"`
	FormData    map[string]string `json:"form_data,omitempty"`
	AuthToken   string            `json:"auth_token,omitempty"`
	NtpID       string            `json:"ntp_id,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// HandlePackage processes POST /api/v1/checkout/package
func (h *StartHandler) HandlePackage(w http.ResponseWriter, r *http.Request) {
	var req packageStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent := models.PurchaseIntent{
		Type:      models.PurchaseTypePackage,
		PackageID: req.PackageID,
		UserID:    callerID(r),
	}
	h.start(w, r, intent, req.cardRequest)
}

// HandleListing processes POST /api/v1/checkout/listing
func (h *StartHandler) HandleListing(w http.ResponseWriter, r *http.Request) {
	var req listingStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent := models.PurchaseIntent{
		Type:       models.PurchaseTypeListing,
		ListingID:  req.ListingID,
		UserID:     callerID(r),
		IsFeatured: req.IsFeatured,
		IsUpgrade:  req.IsUpgrade,
	}
	h.start(w, r, intent, req.cardRequest)
}

func (h *StartHandler) start(w http.ResponseWriter, r *http.Request, intent models.PurchaseIntent, card cardRequest) {
	result, err := h.service.Start(r.Context(), intent, models.CardInput{
		Number:   card.CardNumber,
		ExpMonth: card.ExpMonth,
		ExpYear:  card.ExpYear,
		CVV:      card.CVV,
	}, browserData(r))
	if err != nil {
		h.logger.Warn("start payment rejected",
			zap.String("type", string(intent.Type)),
			zap.Int64("user_id", intent.UserID),
			zap.Error(err),
		)
		writePaymentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, startResponse{
		Requires3DS: result.Requires3DS,
		OrderID:     result.OrderID,
		AuthURL:     result.AuthURL,
		FormData:    result.FormData,
		AuthToken:   result.AuthToken,
		NtpID:       result.NtpID,
		RedirectURL: result.RedirectURL,
	})
}

// callerID reads the authenticated user id from the proxy header. Zero means
// unauthenticated; the service rejects that.
func callerID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.Header.Get(userIDHeader), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// browserData collects the client fingerprint fields the gateway wants for
// 3DS risk scoring.
func browserData(r *http.Request) map[string]string {
	return map[string]string{
		"BROWSER_USER_AGENT":  r.UserAgent(),
		"BROWSER_LANGUAGE":    r.Header.Get("Accept-Language"),
		"IP_ADDRESS":          clientIP(r),
		"MOBILE":              "false",
		"BROWSER_COLOR_DEPTH": "24",
	}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// writePaymentError maps error categories onto HTTP statuses.
func writePaymentError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch pkgerrors.CategoryOf(err) {
	case pkgerrors.CategoryInvalidInput:
		status = http.StatusBadRequest
	case pkgerrors.CategoryAuthRequired:
		status = http.StatusUnauthorized
	case pkgerrors.CategoryNotConfigured:
		status = http.StatusServiceUnavailable
	case pkgerrors.CategoryVerificationFailed:
		status = http.StatusPaymentRequired
	}

	message := err.Error()
	var pe *pkgerrors.PaymentError
	if errors.As(err, &pe) {
		message = pe.Message
	}

	writeError(w, status, message)
}
