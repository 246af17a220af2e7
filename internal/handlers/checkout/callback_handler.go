package checkout

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/domain/models"
	checkoutsvc "github.com/listhub/payment-service/internal/services/checkout"
)

// CallbackHandler serves the gateway-facing endpoints: the browser return
// from a 3DS challenge and the server-to-server IPN.
type CallbackHandler struct {
	service Service
	logger  *zap.Logger
}

// NewCallbackHandler creates a callback handler
func NewCallbackHandler(service Service, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{service: service, logger: logger}
}

// HandleReturn processes GET|POST /payments/netopia/return. The gateway may
// send the browser back with either method, and PaRes rides whichever one it
// used. The reply is always a redirect to the landing page.
func (h *CallbackHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.logger.Debug("failed to parse return form", zap.Error(err))
		}
	}

	// ACS servers post the challenge response as "PaRes"; some gateway
	// configurations lowercase it.
	paRes := getOrPost(r, "PaRes")
	if paRes == "" {
		paRes = getOrPost(r, "paRes")
	}

	params := checkoutsvc.ReturnParams{
		Type:      purchaseTypeParam(r),
		OrderID:   getOrPost(r, "order_id"),
		PaRes:     paRes,
		Cancelled: getOrPost(r, "cancel") != "",
	}

	// Entity id for order-id recovery when the redirect lost it
	if params.Type == models.PurchaseTypeListing {
		params.EntityID, _ = strconv.ParseInt(getOrPost(r, "listing_id"), 10, 64)
	} else {
		params.EntityID, _ = strconv.ParseInt(getOrPost(r, "package_id"), 10, 64)
	}

	h.logger.Info("payment return received",
		zap.String("type", string(params.Type)),
		zap.String("order_id", params.OrderID),
		zap.Bool("has_pares", params.PaRes != ""),
		zap.Bool("cancelled", params.Cancelled),
	)

	redirect := h.service.HandleReturn(r.Context(), params)
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// ipnBody is the JSON shape the gateway posts to the notify URL.
type ipnBody struct {
	NtpID   string `json:"ntpID"`
	OrderID string `json:"orderID"`
	Status  int    `json:"status"`
}

// HandleNotification processes POST /payments/netopia/ipn. Replies 400 for
// unusable payloads so the provider retries, and 200 "OK" for everything
// else, duplicates included.
func (h *CallbackHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid IPN data", http.StatusBadRequest)
		return
	}

	var body ipnBody
	if err := json.Unmarshal(raw, &body); err != nil || (body.NtpID == "" && body.OrderID == "") {
		// Some gateway configurations post form-encoded bodies instead
		if vals, perr := url.ParseQuery(string(raw)); perr == nil {
			body.NtpID = vals.Get("ntpID")
			body.OrderID = vals.Get("orderID")
			body.Status, _ = strconv.Atoi(vals.Get("status"))
		}
	}

	h.logger.Debug("ipn received",
		zap.String("type", r.URL.Query().Get("type")),
		zap.String("ntp_id", body.NtpID),
		zap.String("order_id", body.OrderID),
		zap.Int("status", body.Status),
	)

	err = h.service.HandleNotification(r.Context(), checkoutsvc.NotificationPayload{
		NtpID:   body.NtpID,
		OrderID: body.OrderID,
		Status:  body.Status,
	})
	if err != nil {
		http.Error(w, "Invalid IPN data", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func purchaseTypeParam(r *http.Request) models.PurchaseType {
	if r.URL.Query().Get("type") == string(models.PurchaseTypePackage) {
		return models.PurchaseTypePackage
	}
	return models.PurchaseTypeListing
}

// getOrPost reads a parameter from the query string, falling back to the
// posted form.
func getOrPost(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return r.PostFormValue(key)
}
