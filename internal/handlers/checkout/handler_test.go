package checkout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/listhub/payment-service/internal/domain/models"
	handlers "github.com/listhub/payment-service/internal/handlers/checkout"
	checkoutsvc "github.com/listhub/payment-service/internal/services/checkout"
	pkgerrors "github.com/listhub/payment-service/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Start(ctx context.Context, intent models.PurchaseIntent, card models.CardInput, browser map[string]string) (*checkoutsvc.StartResult, error) {
	args := m.Called(ctx, intent, card, browser)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkoutsvc.StartResult), args.Error(1)
}

func (m *MockService) HandleReturn(ctx context.Context, params checkoutsvc.ReturnParams) string {
	args := m.Called(ctx, params)
	return args.String(0)
}

func (m *MockService) HandleNotification(ctx context.Context, payload checkoutsvc.NotificationPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func TestHandlePackageStart(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewStartHandler(service, zap.NewNop())

	service.On("Start", mock.Anything,
		models.PurchaseIntent{Type: models.PurchaseTypePackage, PackageID: 42, UserID: 7},
		models.CardInput{Number: "4111111111111111", ExpMonth: 12, ExpYear: 2030, CVV: "123"},
		mock.MatchedBy(func(browser map[string]string) bool {
			return browser["BROWSER_USER_AGENT"] == "test-agent" &&
				browser["IP_ADDRESS"] == "203.0.113.9"
		}),
	).Return(&checkoutsvc.StartResult{
		Requires3DS: false,
		OrderID:     "PKG_42_7_1700000000",
		RedirectURL: "https://site.example.com/?netopia_payment=success",
	}, nil)

	body := `{"package_id":42,"card_number":"4111111111111111","exp_month":12,"exp_year":2030,"cvv":"123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/package", strings.NewReader(body))
	req.Header.Set("X-User-ID", "7")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	rr := httptest.NewRecorder()

	handler.HandlePackage(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["requires_3ds"])
	assert.Equal(t, "PKG_42_7_1700000000", resp["order_id"])
	assert.Equal(t, "https://site.example.com/?netopia_payment=success", resp["redirect_url"])
	assert.NotContains(t, resp, "auth_url")

	service.AssertExpectations(t)
}

func TestHandleListingStart3DS(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewStartHandler(service, zap.NewNop())

	service.On("Start", mock.Anything,
		models.PurchaseIntent{
			Type: models.PurchaseTypeListing, ListingID: 9, UserID: 3, IsFeatured: true,
		},
		mock.Anything, mock.Anything,
	).Return(&checkoutsvc.StartResult{
		Requires3DS: true,
		OrderID:     "LST_9_3_1700000000",
		AuthURL:     "https://3ds.example.com/challenge",
		FormData:    map[string]string{"paReq": "blob"},
		AuthToken:   "auth-token",
		NtpID:       "ntp-9",
	}, nil)

	body := `{"listing_id":9,"is_featured":true,"card_number":"4111111111111111","exp_month":12,"exp_year":2030,"cvv":"123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/listing", strings.NewReader(body))
	req.Header.Set("X-User-ID", "3")
	rr := httptest.NewRecorder()

	handler.HandleListing(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["requires_3ds"])
	assert.Equal(t, "https://3ds.example.com/challenge", resp["auth_url"])
	assert.Equal(t, "auth-token", resp["auth_token"])
	assert.Equal(t, "ntp-9", resp["ntp_id"])
}

func TestHandleStartMalformedBody(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewStartHandler(service, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/package", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()

	handler.HandlePackage(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	service.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleStartMissingUserHeader(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewStartHandler(service, zap.NewNop())

	// Without X-User-ID the intent reaches the service with user id 0
	service.On("Start", mock.Anything,
		mock.MatchedBy(func(intent models.PurchaseIntent) bool { return intent.UserID == 0 }),
		mock.Anything, mock.Anything,
	).Return(nil, pkgerrors.New(pkgerrors.CategoryAuthRequired, "you must be logged in to make a payment"))

	body := `{"package_id":42,"card_number":"4111111111111111","exp_month":12,"exp_year":2030,"cvv":"123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/package", strings.NewReader(body))
	rr := httptest.NewRecorder()

	handler.HandlePackage(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "you must be logged in to make a payment", resp["message"])
}

func TestHandleStartErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid input", pkgerrors.New(pkgerrors.CategoryInvalidInput, "invalid package id"), http.StatusBadRequest},
		{"not configured", pkgerrors.New(pkgerrors.CategoryNotConfigured, "payments are not configured"), http.StatusServiceUnavailable},
		{"declined", pkgerrors.New(pkgerrors.CategoryVerificationFailed, "payment was not approved"), http.StatusPaymentRequired},
		{"gateway failure", pkgerrors.NewGateway("payment could not be started", "boom"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			handler := handlers.NewStartHandler(service, zap.NewNop())
			service.On("Start", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(nil, tt.err)

			body := `{"package_id":42,"card_number":"4111111111111111","exp_month":12,"exp_year":2030,"cvv":"123"}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/package", strings.NewReader(body))
			req.Header.Set("X-User-ID", "7")
			rr := httptest.NewRecorder()

			handler.HandlePackage(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestHandleReturnRedirects(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	service.On("HandleReturn", mock.Anything, checkoutsvc.ReturnParams{
		Type:     models.PurchaseTypeListing,
		OrderID:  "LST_9_3_1700000000",
		EntityID: 9,
		PaRes:    "pa-res",
	}).Return("https://site.example.com/?netopia_payment=success")

	req := httptest.NewRequest(http.MethodGet,
		"/payments/netopia/return?type=listing&listing_id=9&order_id=LST_9_3_1700000000&PaRes=pa-res", nil)
	rr := httptest.NewRecorder()

	handler.HandleReturn(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "https://site.example.com/?netopia_payment=success", rr.Header().Get("Location"))
}

func TestHandleReturnPostedPaRes(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	// ACS servers POST the challenge response under "PaRes" while our
	// identifiers ride the query string
	service.On("HandleReturn", mock.Anything, checkoutsvc.ReturnParams{
		Type:     models.PurchaseTypePackage,
		OrderID:  "PKG_42_7_1700000000",
		EntityID: 42,
		PaRes:    "posted-pa-res",
	}).Return("https://site.example.com/?netopia_payment=success")

	form := "PaRes=posted-pa-res"
	req := httptest.NewRequest(http.MethodPost,
		"/payments/netopia/return?type=package&package_id=42&order_id=PKG_42_7_1700000000",
		strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	handler.HandleReturn(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	service.AssertExpectations(t)
}

func TestHandleReturnLowercasePaRes(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	service.On("HandleReturn", mock.Anything, mock.MatchedBy(func(p checkoutsvc.ReturnParams) bool {
		return p.PaRes == "pa-res"
	})).Return("https://site.example.com/?netopia_payment=success")

	req := httptest.NewRequest(http.MethodGet,
		"/payments/netopia/return?type=package&order_id=PKG_42_7_1700000000&paRes=pa-res", nil)
	rr := httptest.NewRecorder()

	handler.HandleReturn(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	service.AssertExpectations(t)
}

func TestHandleReturnCancelled(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	service.On("HandleReturn", mock.Anything, mock.MatchedBy(func(p checkoutsvc.ReturnParams) bool {
		return p.Cancelled && p.PaRes == ""
	})).Return("https://site.example.com/?netopia_payment=cancelled")

	req := httptest.NewRequest(http.MethodGet,
		"/payments/netopia/return?type=package&order_id=PKG_42_7_1700000000&cancel=1", nil)
	rr := httptest.NewRecorder()

	handler.HandleReturn(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "netopia_payment=cancelled")
}

func TestHandleReturnMalformedForm(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	// A body ParseForm cannot decode must not break the redirect flow
	service.On("HandleReturn", mock.Anything, mock.MatchedBy(func(p checkoutsvc.ReturnParams) bool {
		return p.OrderID == "PKG_42_7_1700000000" && p.PaRes == ""
	})).Return("https://site.example.com/?netopia_payment=error&reason=missing_pares")

	req := httptest.NewRequest(http.MethodPost,
		"/payments/netopia/return?type=package&order_id=PKG_42_7_1700000000",
		strings.NewReader("PaRes=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	handler.HandleReturn(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	service.AssertExpectations(t)
}

func TestHandleNotificationJSON(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	service.On("HandleNotification", mock.Anything, checkoutsvc.NotificationPayload{
		NtpID:   "ntp-1",
		OrderID: "PKG_42_7_1700000000",
		Status:  3,
	}).Return(nil)

	body := `{"ntpID":"ntp-1","orderID":"PKG_42_7_1700000000","status":3}`
	req := httptest.NewRequest(http.MethodPost, "/payments/netopia/ipn?type=package", strings.NewReader(body))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHandleNotificationFormEncoded(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	service.On("HandleNotification", mock.Anything, checkoutsvc.NotificationPayload{
		NtpID:   "ntp-1",
		OrderID: "PKG_42_7_1700000000",
		Status:  3,
	}).Return(nil)

	body := "ntpID=ntp-1&orderID=PKG_42_7_1700000000&status=3"
	req := httptest.NewRequest(http.MethodPost, "/payments/netopia/ipn?type=package", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	service.AssertExpectations(t)
}

func TestHandleNotificationBadShape(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	service.On("HandleNotification", mock.Anything, checkoutsvc.NotificationPayload{}).
		Return(checkoutsvc.ErrBadNotification)

	req := httptest.NewRequest(http.MethodPost, "/payments/netopia/ipn", strings.NewReader("garbage"))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid IPN data")
}

func TestHandleNotificationDuplicateStillOK(t *testing.T) {
	service := new(MockService)
	handler := handlers.NewCallbackHandler(service, zap.NewNop())

	// Duplicates are acknowledged so the provider stops retrying
	service.On("HandleNotification", mock.Anything, mock.Anything).Return(nil)

	body := `{"ntpID":"ntp-1","orderID":"PKG_42_7_1700000000","status":3}`
	req := httptest.NewRequest(http.MethodPost, "/payments/netopia/ipn", strings.NewReader(body))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}
