package netopia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/listhub/payment-service/internal/domain/models"
	"github.com/listhub/payment-service/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// API paths, relative to the environment base URL
const (
	pathStartPayment = "/payment/card/start"
	pathVerifyAuth   = "/payment/card/verify-auth"
	pathStatus       = "/operation/status"
)

// ClientConfig contains configuration for the Netopia gateway client
type ClientConfig struct {
	// Base URL overrides; when empty the sandbox/live defaults are used
	BaseURLSandbox string
	BaseURLLive    string

	// HTTP client timeout. Gateway calls are the orchestrator's only
	// suspension points and are never retried here; the provider's IPN
	// is the retry channel for missed completions.
	Timeout time.Duration
}

// DefaultClientConfig returns default configuration for the client
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURLSandbox: "https://secure.sandbox.netopia-payments.com",
		BaseURLLive:    "https://secure.netopia-payments.com",
		Timeout:        30 * time.Second,
	}
}

// Client implements the ports.PaymentGateway port over the provider's
// HTTPS+JSON API, unwrapping its {status, code, message, data} envelope.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *zap.Logger

	// bound credentials for calls that carry no explicit config
	bound ports.GatewayConfig
}

// NewClient creates a new Netopia gateway client
func NewClient(config *ClientConfig, logger *zap.Logger) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

var _ ports.PaymentGateway = (*Client)(nil)

// envelope is the provider's response wrapper. status==1 with a non-null
// data field is the only success shape; anything else is a gateway error.
type envelope struct {
	Status  int             `json:"status"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// payload is the inner data object shared by all three operations.
type payload struct {
	Payment *struct {
		NtpID  string `json:"ntpID"`
		Status int    `json:"status"`
	} `json:"payment"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	CustomerAction *struct {
		Type                string            `json:"type"`
		URL                 string            `json:"url"`
		AuthenticationToken string            `json:"authenticationToken"`
		FormData            map[string]string `json:"formData"`
	} `json:"customerAction"`
}

type startPaymentBody struct {
	Config struct {
		NotifyURL   string `json:"notifyUrl"`
		RedirectURL string `json:"redirectUrl"`
		Language    string `json:"language"`
	} `json:"config"`
	Payment struct {
		Options struct {
			Installments int `json:"installments"`
			Bonus        int `json:"bonus"`
		} `json:"options"`
		Instrument struct {
			Type       string `json:"type"`
			Account    string `json:"account"`
			ExpMonth   int    `json:"expMonth"`
			ExpYear    int    `json:"expYear"`
			SecretCode string `json:"secretCode"`
		} `json:"instrument"`
		Data map[string]string `json:"data"`
	} `json:"payment"`
	Order struct {
		NtpID        string           `json:"ntpID"`
		PosSignature string           `json:"posSignature"`
		DateTime     string           `json:"dateTime"`
		Description  string           `json:"description"`
		OrderID      string           `json:"orderID"`
		Amount       decimal.Decimal  `json:"amount"`
		Currency     string           `json:"currency"`
		Billing      billingBody      `json:"billing"`
		Shipping     billingBody      `json:"shipping"`
		Products     []productBody    `json:"products"`
	} `json:"order"`
}

type billingBody struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	City       string `json:"city"`
	Country    int    `json:"country"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Details    string `json:"details"`
}

type productBody struct {
	Name     string          `json:"name"`
	Code     string          `json:"code"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	VAT      decimal.Decimal `json:"vat"`
}

// StartPayment opens a payment with the provider.
func (c *Client) StartPayment(ctx context.Context, req *ports.StartPaymentRequest) (*ports.GatewayResult, error) {
	body := startPaymentBody{}
	body.Config.NotifyURL = req.Config.NotifyURL
	body.Config.RedirectURL = req.Config.RedirectURL
	body.Config.Language = req.Config.Language

	body.Payment.Options.Installments = 1
	body.Payment.Instrument.Type = "card"
	body.Payment.Instrument.Account = req.Instrument.Account
	body.Payment.Instrument.ExpMonth = req.Instrument.ExpMonth
	body.Payment.Instrument.ExpYear = req.Instrument.ExpYear
	body.Payment.Instrument.SecretCode = req.Instrument.CVV
	body.Payment.Data = req.BrowserData

	body.Order.PosSignature = req.Config.Signature
	body.Order.DateTime = time.Now().Format(time.RFC3339)
	body.Order.Description = req.Order.Description
	body.Order.OrderID = req.Order.OrderID
	body.Order.Amount = req.Order.Amount
	body.Order.Currency = req.Order.Currency
	body.Order.Billing = toBillingBody(req.Order.Billing)
	body.Order.Shipping = toBillingBody(req.Order.Shipping)
	for _, p := range req.Order.Products {
		body.Order.Products = append(body.Order.Products, productBody{
			Name:     p.Name,
			Code:     p.Code,
			Category: p.Category,
			Price:    p.Price,
			VAT:      p.VAT,
		})
	}

	c.logger.Info("starting gateway payment",
		zap.String("order_id", req.Order.OrderID),
		zap.String("amount", req.Order.Amount.String()),
		zap.Bool("sandbox", req.Config.Sandbox),
	)

	return c.call(ctx, req.Config, pathStartPayment, body)
}

// VerifyAuthentication verifies a completed 3DS challenge.
func (c *Client) VerifyAuthentication(ctx context.Context, authToken, ntpID, paRes string) (*ports.GatewayResult, error) {
	body := map[string]any{
		"authenticationToken": authToken,
		"ntpID":               ntpID,
		"formData": map[string]string{
			"paRes": paRes,
		},
	}

	c.logger.Info("verifying 3ds authentication", zap.String("ntp_id", ntpID))

	return c.call(ctx, c.activeConfig(), pathVerifyAuth, body)
}

// GetStatus fetches the authoritative payment status for a transaction.
func (c *Client) GetStatus(ctx context.Context, ntpID, orderID string) (*ports.GatewayResult, error) {
	body := map[string]any{
		"ntpID":        ntpID,
		"orderID":      orderID,
		"posSignature": c.activeConfig().Signature,
	}

	c.logger.Info("fetching gateway payment status",
		zap.String("ntp_id", ntpID),
		zap.String("order_id", orderID),
	)

	return c.call(ctx, c.activeConfig(), pathStatus, body)
}

// WithGateway returns a copy of the client bound to the given credentials.
// Verify and status calls use the bound config; StartPayment always uses the
// config on its request.
func (c *Client) WithGateway(cfg ports.GatewayConfig) *Client {
	bound := *c
	bound.bound = cfg
	return &bound
}

func (c *Client) activeConfig() ports.GatewayConfig {
	return c.bound
}

// call executes one POST against the gateway and normalizes the response.
func (c *Client) call(ctx context.Context, cfg ports.GatewayConfig, path string, body any) (*ports.GatewayResult, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	baseURL := c.config.BaseURLLive
	if cfg.Sandbox {
		baseURL = c.config.BaseURLSandbox
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", cfg.APIKey())

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway call failed",
			zap.String("path", path),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil, fmt.Errorf("gateway call %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	c.logger.Debug("gateway response received",
		zap.String("path", path),
		zap.Int("http_status", httpResp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("body_length", len(respBody)),
	)

	return c.unwrap(path, respBody)
}

// unwrap parses the provider envelope and rejects anything that is not a
// status==1 response with a payload.
func (c *Client) unwrap(path string, body []byte) (*ports.GatewayResult, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unrecognized gateway envelope from %s: %w", path, err)
	}

	if env.Status != 1 {
		msg := env.Message
		if msg == "" {
			msg = "unknown gateway error"
		}
		return nil, fmt.Errorf("gateway error from %s: %s", path, msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("gateway response from %s has status 1 but no data", path)
	}

	var pl payload
	if err := json.Unmarshal(env.Data, &pl); err != nil {
		return nil, fmt.Errorf("unrecognized gateway payload from %s: %w", path, err)
	}

	result := &ports.GatewayResult{
		Code:    env.Code,
		Message: env.Message,
	}
	if pl.Payment != nil {
		result.Payment = ports.PaymentState{
			NtpID:  pl.Payment.NtpID,
			Status: pl.Payment.Status,
		}
	}
	if pl.Error != nil {
		result.ApprovalCode = pl.Error.Code
	}
	if pl.CustomerAction != nil {
		result.CustomerAction = &ports.CustomerAction{
			Type:                pl.CustomerAction.Type,
			URL:                 pl.CustomerAction.URL,
			AuthenticationToken: pl.CustomerAction.AuthenticationToken,
			FormData:            pl.CustomerAction.FormData,
		}
	}

	return result, nil
}

func toBillingBody(b models.BillingInfo) billingBody {
	return billingBody{
		Email:      b.Email,
		Phone:      b.Phone,
		FirstName:  b.FirstName,
		LastName:   b.LastName,
		City:       b.City,
		Country:    b.Country,
		State:      b.State,
		PostalCode: b.PostalCode,
		Details:    b.Details,
	}
}
