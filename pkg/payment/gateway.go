package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	// ErrNotConfigured is returned when key id / secret are missing
	ErrNotConfigured = errors.New("payment gateway is not configured")

	// ErrInvalidAmount is returned for non-positive order amounts
	ErrInvalidAmount = errors.New("order amount must be greater than zero")
)

// Order statuses reported by the gateway
const (
	OrderStatusCreated   = "created"
	OrderStatusAttempted = "attempted"
	OrderStatusPaid      = "paid"
)

// Payment statuses reported by the gateway
const (
	PaymentStatusCaptured = "captured"
	PaymentStatusFailed   = "failed"
)

// Webhook event names
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// subunitsPerUnit converts whole currency units to the gateway's smallest unit
const subunitsPerUnit = 100

// Config holds payment gateway configuration
type Config struct {
	BaseURL       string
	KeyID         string
	KeySecret     string // SECRET - never expose to client
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

// Gateway creates orders and verifies payment signatures
type Gateway struct {
	config Config
	client *http.Client
}

// NewGateway creates a new payment gateway adapter
func NewGateway(config Config) *Gateway {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Gateway{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// CreateOrderRequest is the gateway order create payload (amount in subunits)
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is a gateway order. Amount fields are in subunits.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	CreatedAt  int64  `json:"created_at"`
}

// AmountUnits returns the order amount in whole currency units
func (o *Order) AmountUnits() int64 {
	return o.Amount / subunitsPerUnit
}

// ToSubunits converts whole currency units to gateway subunits
func ToSubunits(units int64) int64 {
	return units * subunitsPerUnit
}

// Payment is a payment attempt against an order
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method,omitempty"`
}

// paymentCollection is the list response of order payments
type paymentCollection struct {
	Count int       `json:"count"`
	Items []Payment `json:"items"`
}

// apiError is the gateway error body
type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// WebhookEvent is the subset of the webhook body used for reconciliation
type WebhookEvent struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment struct {
			Entity Payment `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity Order `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// OrderID returns the order referenced by the event
func (e *WebhookEvent) OrderID() string {
	if e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	return e.Payload.Order.Entity.ID
}

// IsConfigured checks if the gateway credentials are set
func (g *Gateway) IsConfigured() bool {
	return g.config.KeyID != "" && g.config.KeySecret != ""
}

// KeyID returns the public key id used by client checkouts
func (g *Gateway) KeyID() string {
	return g.config.KeyID
}

// Currency returns the configured settlement currency
func (g *Gateway) Currency() string {
	return g.config.Currency
}

// CreateOrder creates a gateway order for amount whole currency units
func (g *Gateway) CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*Order, error) {
	if !g.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	req := CreateOrderRequest{
		Amount:   ToSubunits(amount),
		Currency: g.config.Currency,
		Receipt:  receipt,
		Notes:    notes,
	}

	var order Order
	if err := g.do(ctx, http.MethodPost, "/v1/orders", req, &order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return &order, nil
}

// FetchOrder retrieves an order by id
func (g *Gateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	if !g.IsConfigured() {
		return nil, ErrNotConfigured
	}
	var order Order
	if err := g.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &order); err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return &order, nil
}

// FetchOrderPayments lists the payment attempts of an order
func (g *Gateway) FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	if !g.IsConfigured() {
		return nil, ErrNotConfigured
	}
	var payments paymentCollection
	if err := g.do(ctx, http.MethodGet, "/v1/orders/"+orderID+"/payments", nil, &payments); err != nil {
		return nil, fmt.Errorf("failed to fetch order payments: %w", err)
	}
	return payments.Items, nil
}

// VerifyPaymentSignature checks HMAC-SHA256(orderId|paymentId) against the checkout signature
func (g *Gateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if g.config.KeySecret == "" || orderID == "" || paymentID == "" {
		return false
	}
	return verifyHMAC([]byte(orderID+"|"+paymentID), g.config.KeySecret, signature)
}

// VerifyWebhookSignature checks HMAC-SHA256(body) against the webhook signature header
func (g *Gateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if g.config.WebhookSecret == "" {
		return false
	}
	return verifyHMAC(body, g.config.WebhookSecret, signature)
}

// Sign computes the hex HMAC-SHA256 of message with secret
func Sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(message []byte, secret, signature string) bool {
	expected := Sign(message, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func (g *Gateway) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(g.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(g.config.KeyID, g.config.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Description != "" {
			return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, apiErr.Error.Description)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
