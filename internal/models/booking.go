package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BookingType identifies the travel vertical of a booking
type BookingType string

const (
	BookingTypeHotel   BookingType = "Hotel"
	BookingTypeFlight  BookingType = "Flight"
	BookingTypeBus     BookingType = "Bus"
	BookingTypeTrain   BookingType = "Train"
	BookingTypePackage BookingType = "Package"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// CompanyApproval is the corporate approval gate on a booking
type CompanyApproval string

const (
	ApprovalPending  CompanyApproval = "Pending"
	ApprovalApproved CompanyApproval = "Approved"
	ApprovalRejected CompanyApproval = "Rejected"
)

// PaymentMode is how the booking total gets settled
type PaymentMode string

const (
	PaymentModePayAtHotel   PaymentMode = "payAtHotel"
	PaymentModePayByCompany PaymentMode = "payByCompany"
	PaymentModeOnlinePay    PaymentMode = "onlinePay"
)

// IsValid reports whether the mode is one of the supported payment modes
func (m PaymentMode) IsValid() bool {
	switch m {
	case PaymentModePayAtHotel, PaymentModePayByCompany, PaymentModeOnlinePay:
		return true
	}
	return false
}

// PaymentStatus is the settlement state of a booking's payment
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusDeclined PaymentStatus = "declined"
)

// TransactionDetails records how the payment was (or will be) settled
type TransactionDetails struct {
	GatewayOrderID   string     `json:"gatewayOrderId,omitempty" bson:"gatewayOrderId,omitempty"`
	GatewayPaymentID string     `json:"gatewayPaymentId,omitempty" bson:"gatewayPaymentId,omitempty"`
	Signature        string     `json:"signature,omitempty" bson:"signature,omitempty"`
	WalletUserID     string     `json:"walletUserId,omitempty" bson:"walletUserId,omitempty"`
	WalletDebited    int64      `json:"walletDebited,omitempty" bson:"walletDebited,omitempty"`
	PaidAt           *time.Time `json:"paidAt,omitempty" bson:"paidAt,omitempty"`
}

// Payment holds the authoritative amounts and settlement state.
// Amounts are whole currency units produced by the pricing resolver.
type Payment struct {
	Cost               int64              `json:"cost" bson:"cost"`
	Fee                int64              `json:"fee" bson:"fee"`
	Total              int64              `json:"total" bson:"total"`
	Mode               PaymentMode        `json:"mode" bson:"mode"`
	Status             PaymentStatus      `json:"status" bson:"status"`
	TransactionDetails TransactionDetails `json:"transactionDetails" bson:"transactionDetails"`
}

// Value implements the driver.Valuer interface
func (p Payment) Value() (driver.Value, error) {
	bytes, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (p *Payment) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// StatusChange is one entry of a booking's status history
type StatusChange struct {
	From   BookingStatus `json:"from" bson:"from"`
	To     BookingStatus `json:"to" bson:"to"`
	Reason string        `json:"reason,omitempty" bson:"reason,omitempty"`
	By     string        `json:"by,omitempty" bson:"by,omitempty"`
	At     time.Time     `json:"at" bson:"at"`
}

// StatusHistory is stored as a JSONB array
type StatusHistory []StatusChange

// Value implements the driver.Valuer interface
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	bytes, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (h *StatusHistory) Scan(value interface{}) error {
	return scanJSON(value, h)
}

// GSTDetails is the tax registration snapshot attached to a booking
type GSTDetails struct {
	GSTNumber   string `json:"gstNumber" bson:"gstNumber"`
	CompanyName string `json:"companyName" bson:"companyName"`
	Address     string `json:"address,omitempty" bson:"address,omitempty"`
	Email       string `json:"email,omitempty" bson:"email,omitempty"`
	Phone       string `json:"phone,omitempty" bson:"phone,omitempty"`
}

// Value implements the driver.Valuer interface
func (g *GSTDetails) Value() (driver.Value, error) {
	if g == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (g *GSTDetails) Scan(value interface{}) error {
	return scanJSON(value, g)
}

// Booking is the persisted booking aggregate
type Booking struct {
	ID             string         `json:"id" db:"id" bson:"_id"`
	BookingType    BookingType    `json:"bookingType" db:"booking_type" bson:"bookingType"`
	BookingDate    time.Time      `json:"bookingDate" db:"booking_date" bson:"bookingDate"`
	Status         BookingStatus  `json:"status" db:"status" bson:"status"`
	BookingDetails BookingDetails `json:"bookingDetails" db:"booking_details" bson:"bookingDetails"`
	Payment        Payment        `json:"payment" db:"payment" bson:"payment"`
	UserIDs        []string       `json:"userId" db:"-" bson:"userId"`
	CreatedBy      string         `json:"createdBy" db:"created_by" bson:"createdBy"`
	GSTDetails     *GSTDetails    `json:"gstDetails,omitempty" db:"gst_details" bson:"gstDetails,omitempty"`
	StatusHistory  StatusHistory  `json:"statusHistory,omitempty" db:"status_history" bson:"statusHistory,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at" bson:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at" bson:"updatedAt"`

	// Version is incremented by every store update (optimistic locking)
	Version int64 `json:"-" db:"version" bson:"version"`
}

// Validate checks the aggregate rules the types cannot express
func (b *Booking) Validate() error {
	variant := b.BookingDetails.Variant()
	if variant == nil {
		return fmt.Errorf("booking details must contain exactly one booking variant")
	}
	if variant.BookingType() != b.BookingType {
		return fmt.Errorf("booking variant %s does not match booking type %s", variant.BookingType(), b.BookingType)
	}
	if b.CreatedBy == "" {
		return fmt.Errorf("booking owner is required")
	}
	if b.Payment.Total < 0 {
		return fmt.Errorf("payment total cannot be negative")
	}
	return nil
}

// IsConfirmed reports whether the supplier confirmation has been recorded
func (b *Booking) IsConfirmed() bool {
	if f, ok := b.BookingDetails.Flight(); ok && !f.Ticketed() {
		return false
	}
	return b.Status == BookingStatusBooked && b.BookingDetails.Confirmation() != nil
}

// TransitionTo changes the status and appends a history entry
func (b *Booking) TransitionTo(status BookingStatus, reason, by string) {
	if b.Status == status {
		return
	}
	now := time.Now().UTC()
	b.StatusHistory = append(b.StatusHistory, StatusChange{
		From:   b.Status,
		To:     status,
		Reason: reason,
		By:     by,
		At:     now,
	})
	b.Status = status
	b.UpdatedAt = now
}

// PaidFromWallet reports whether a company wallet currently holds funds for this booking
func (b *Booking) PaidFromWallet() bool {
	return b.Payment.Mode == PaymentModePayByCompany && b.Payment.TransactionDetails.WalletDebited > 0
}

// scanJSON decodes a JSONB column into dest
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB value type %T", value)
	}
	return json.Unmarshal(bytes, dest)
}
