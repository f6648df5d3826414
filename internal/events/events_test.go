package events

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/models"
)

func TestNewBookingEvent_SnapshotsBooking(t *testing.T) {
	b := &models.Booking{
		ID:          "b-1",
		BookingType: models.BookingTypeBus,
		Status:      models.BookingStatusPending,
		BookingDetails: models.NewBookingDetails(models.ApprovalPending, &models.BusBooked{}),
		Payment: models.Payment{
			Total:  4500,
			Mode:   models.PaymentModePayByCompany,
			Status: models.PaymentStatusPending,
		},
	}

	event := NewBookingEvent(TypeBookingCreated, b, "u-1", "")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "b-1", event.BookingID)
	assert.Equal(t, models.ApprovalPending, event.CompanyApproval)
	assert.Equal(t, int64(4500), event.Total)

	data, err := event.encode()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "booking.created", decoded["type"])
	assert.Equal(t, "payByCompany", decoded["paymentMode"])
}

func TestNew_SelectsDriver(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	publisher, err := New(config.EventsConfig{Driver: config.EventsNone}, logger)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, publisher)
	assert.NoError(t, publisher.Publish(context.Background(), Event{}))

	publisher, err = New(config.EventsConfig{Driver: config.EventsKafka, KafkaBrokers: []string{"localhost:9092"}, Topic: "booking-events"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, publisher)
	assert.NoError(t, publisher.Close())

	_, err = New(config.EventsConfig{Driver: "sns"}, logger)
	assert.Error(t, err)
}
