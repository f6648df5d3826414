// Package events publishes booking lifecycle events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/models"
)

// Event types
const (
	TypeBookingCreated         = "booking.created"
	TypeBookingConfirmed       = "booking.confirmed"
	TypeBookingApprovalUpdated = "booking.approval_updated"
	TypeBookingStatusUpdated   = "booking.status_updated"
	TypeBookingCancelled       = "booking.cancelled"
	TypeBookingPaymentVerified = "booking.payment_verified"
	TypeBookingHoldOrphaned    = "booking.hold_orphaned"
	TypeBookingRefundRequired  = "booking.refund_required"
)

// Event is the message body published for every booking lifecycle change
type Event struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	BookingID       string                 `json:"bookingId"`
	BookingType     models.BookingType     `json:"bookingType,omitempty"`
	Status          models.BookingStatus   `json:"status,omitempty"`
	CompanyApproval models.CompanyApproval `json:"companyApproval,omitempty"`
	PaymentMode     models.PaymentMode     `json:"paymentMode,omitempty"`
	PaymentStatus   models.PaymentStatus   `json:"paymentStatus,omitempty"`
	Total           int64                  `json:"total"`
	ActorID         string                 `json:"actorId,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	OccurredAt      time.Time              `json:"occurredAt"`
}

// NewBookingEvent snapshots the booking state into an event
func NewBookingEvent(eventType string, b *models.Booking, actorID, reason string) Event {
	return Event{
		ID:              uuid.NewString(),
		Type:            eventType,
		BookingID:       b.ID,
		BookingType:     b.BookingType,
		Status:          b.Status,
		CompanyApproval: b.BookingDetails.CompanyApproval,
		PaymentMode:     b.Payment.Mode,
		PaymentStatus:   b.Payment.Status,
		Total:           b.Payment.Total,
		ActorID:         actorID,
		Reason:          reason,
		OccurredAt:      time.Now().UTC(),
	}
}

func (e Event) encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Publisher delivers events to a broker
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New builds the publisher selected by EVENTS_DRIVER
func New(cfg config.EventsConfig, logger *logrus.Logger) (Publisher, error) {
	switch cfg.Driver {
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.Topic, logger), nil
	case config.EventsRabbitMQ:
		return NewRabbitPublisher(cfg.RabbitURL, cfg.Exchange, logger)
	case config.EventsNone, "":
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() error { return nil }
