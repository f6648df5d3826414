package services

import (
	"context"
	"time"

	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/payment"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

// BookingStore is implemented by database.BookingRepository and mongostore.BookingRepository.
// Getters return nil, nil when nothing matches.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	Update(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Booking, error)
	ListAwaitingConfirmation(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error)
	ListAwaitingPayment(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error)
}

// UserStore is implemented by database.UserRepository and mongostore.UserRepository
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	DebitWallet(ctx context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error)
	CreditWallet(ctx context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error)
	ListWalletTransactions(ctx context.Context, userID string, limit int) ([]*models.WalletTransaction, error)
}

// SupplierCaller is the supplier gateway
type SupplierCaller interface {
	Call(ctx context.Context, endpoint string, params interface{}, out interface{}) supplier.Result
}

// PaymentGateway is the payment gateway adapter
type PaymentGateway interface {
	IsConfigured() bool
	Currency() string
	CreateOrder(ctx context.Context, amount int64, receipt string, notes map[string]string) (*payment.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*payment.Order, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]payment.Payment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
}

// PaymentAuditLogger records payment events, implemented by database.PaymentAuditRepository and mongostore.PaymentAuditRepository
type PaymentAuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	CheckDuplicate(ctx context.Context, gatewayPaymentID string, eventType models.PaymentEventType, idempotencyKey string) (bool, error)
}

// SagaMetrics receives saga outcomes, implemented by the metrics package
type SagaMetrics interface {
	BookingCreated(vertical models.BookingType, mode models.PaymentMode)
	SagaFailed(vertical models.BookingType, step string)
	ConfirmationAttempt(outcome string)
	WalletCompensated()
}

type nopMetrics struct{}

func (nopMetrics) BookingCreated(models.BookingType, models.PaymentMode) {}
func (nopMetrics) SagaFailed(models.BookingType, string)                 {}
func (nopMetrics) ConfirmationAttempt(string)                            {}
func (nopMetrics) WalletCompensated()                                    {}

// RequestMeta is the client metadata attached to payment audit entries
type RequestMeta struct {
	IPAddress  string
	UserAgent  string
	DeviceType string
	Platform   string
}
