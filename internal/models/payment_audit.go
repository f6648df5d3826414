package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a free-form JSON object column
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	return scanJSON(value, j)
}

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventOrderCreated           PaymentEventType = "order_created"
	PaymentEventOrderFailed            PaymentEventType = "order_failed"
	PaymentEventSignatureVerified      PaymentEventType = "signature_verified"
	PaymentEventSignatureInvalid       PaymentEventType = "signature_invalid"
	PaymentEventWebhookReceived        PaymentEventType = "webhook_received"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventWalletDebited          PaymentEventType = "wallet_debited"
	PaymentEventWalletRefunded         PaymentEventType = "wallet_refunded"
	PaymentEventBookingConfirmed       PaymentEventType = "booking_confirmed"
	PaymentEventBookingConfirmFailed   PaymentEventType = "booking_confirmation_failed"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventRefundRequired         PaymentEventType = "refund_required"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend        PaymentEventSource = "backend"
	PaymentSourceGatewayWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceGatewayAPI     PaymentEventSource = "gateway_api"
	PaymentSourceUser           PaymentEventSource = "user"
	PaymentSourceSystem         PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID               uuid.UUID `json:"id" db:"id"`
	BookingID        *string   `json:"booking_id,omitempty" db:"booking_id"`
	GatewayOrderID   *string   `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`

	// Event info
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`
	PaymentMode *string            `json:"payment_mode,omitempty" db:"payment_mode"`

	// Amount tracking
	ExpectedAmount *int64  `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *int64  `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool   `json:"amounts_match,omitempty" db:"amounts_match"`

	// Raw payloads
	RequestPayload  JSONB   `json:"request_payload,omitempty" db:"request_payload"`
	ResponsePayload JSONB   `json:"response_payload,omitempty" db:"response_payload"`
	RawBody         *string `json:"raw_body,omitempty" db:"raw_body"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Processing info
	ProcessingTimeMs *int    `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	IsDuplicate      bool    `json:"is_duplicate" db:"is_duplicate"`
	IdempotencyKey   *string `json:"idempotency_key,omitempty" db:"idempotency_key"`

	// Metadata
	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceType *string `json:"device_type,omitempty" db:"device_type"`
	Platform   *string `json:"platform,omitempty" db:"platform"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking links the audit entry to a booking and its payment mode
func (pa *PaymentAudit) SetBooking(bookingID string, mode PaymentMode) *PaymentAudit {
	pa.BookingID = &bookingID
	m := string(mode)
	pa.PaymentMode = &m
	return pa
}

// SetGatewayOrder sets the gateway order id
func (pa *PaymentAudit) SetGatewayOrder(orderID string) *PaymentAudit {
	if orderID != "" {
		pa.GatewayOrderID = &orderID
	}
	return pa
}

// SetGatewayPayment sets the gateway payment id
func (pa *PaymentAudit) SetGatewayPayment(paymentID string) *PaymentAudit {
	if paymentID != "" {
		pa.GatewayPaymentID = &paymentID
	}
	return pa
}

// SetAmounts records expected and received amounts, returns whether they match
func (pa *PaymentAudit) SetAmounts(expected, received int64, currency string) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency
	match := expected == received
	pa.AmountsMatch = &match
	return match
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetRawBody stores the raw body before parsing
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}

// SetRequestPayload sets the request payload sent
func (pa *PaymentAudit) SetRequestPayload(payload map[string]interface{}) *PaymentAudit {
	pa.RequestPayload = JSONB(payload)
	return pa
}

// SetResponsePayload sets the response payload received
func (pa *PaymentAudit) SetResponsePayload(payload map[string]interface{}) *PaymentAudit {
	pa.ResponsePayload = JSONB(payload)
	return pa
}

// SetMetadata sets client metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, deviceType, platform string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if deviceType != "" {
		pa.DeviceType = &deviceType
	}
	if platform != "" {
		pa.Platform = &platform
	}
	return pa
}

// SetProcessingTime calculates and sets processing time
func (pa *PaymentAudit) SetProcessingTime(startTime time.Time) *PaymentAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	pa.ProcessingTimeMs = &durationMs
	now := time.Now()
	pa.ProcessedAt = &now
	return pa
}

// MarkAsDuplicate marks this event as a duplicate
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}

// SetIdempotencyKey sets the idempotency key
func (pa *PaymentAudit) SetIdempotencyKey(key string) *PaymentAudit {
	pa.IdempotencyKey = &key
	return pa
}
