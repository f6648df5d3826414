package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/booking-backend/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func busBookingFixture() *models.Booking {
	variant := &models.BusBooked{
		BlockRequest: models.BusBlockSeatRequest{
			SearchTokenID: "tok-1",
			TraceID:       "trace-1",
			ResultIndex:   3,
			Passenger: []models.BusPassenger{
				{LeadPassenger: true, FirstName: "Asha", LastName: "Rao", Seat: models.BusSeat{SeatIndex: "12"}},
			},
		},
		BlockResult: models.BusBlockSeatResult{TraceID: "trace-1"},
	}
	return &models.Booking{
		BookingType:    models.BookingTypeBus,
		Status:         models.BookingStatusBooked,
		BookingDetails: models.NewBookingDetails(models.ApprovalApproved, variant),
		Payment: models.Payment{
			Cost:   900,
			Fee:    100,
			Total:  1000,
			Mode:   models.PaymentModePayByCompany,
			Status: models.PaymentStatusSuccess,
		},
		UserIDs:   []string{"a3c1f6de-6f0b-4f41-9a55-1f0a4f2b1d10"},
		CreatedBy: "a3c1f6de-6f0b-4f41-9a55-1f0a4f2b1d10",
	}
}
