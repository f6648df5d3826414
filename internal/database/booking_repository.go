package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/tripdesk/booking-backend/internal/models"
)

// BookingRepository stores booking aggregates. The full aggregate lives in
// JSONB columns; status, approval and payment fields are duplicated into
// plain columns for lookups.
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, booking_type, booking_date, status, booking_details, payment,
	user_ids, created_by, gst_details, status_history,
	created_at, updated_at, version`

// rowScanner is implemented by *sqlx.Row and *sqlx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var userIDs pq.StringArray
	var gst []byte

	err := row.Scan(
		&b.ID, &b.BookingType, &b.BookingDate, &b.Status, &b.BookingDetails, &b.Payment,
		&userIDs, &b.CreatedBy, &gst, &b.StatusHistory,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.UserIDs = []string(userIDs)
	if len(gst) > 0 {
		b.GSTDetails = &models.GSTDetails{}
		if err := json.Unmarshal(gst, b.GSTDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal gst_details: %w", err)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("stored booking %s is invalid: %w", b.ID, err)
	}
	return &b, nil
}

// ============================================================================
// WRITES
// ============================================================================

// Create inserts a new booking in a single statement. ID, timestamps and
// version are assigned here.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}

	now := time.Now().UTC()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.BookingDate.IsZero() {
		b.BookingDate = now
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1

	query := `
		INSERT INTO bookings (
			id, booking_type, booking_date, status, booking_details, payment,
			user_ids, created_by, gst_details, status_history,
			company_approval, payment_mode, payment_status, gateway_order_id, confirmed_at,
			created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.BookingType, b.BookingDate, b.Status, b.BookingDetails, b.Payment,
		pq.Array(b.UserIDs), b.CreatedBy, b.GSTDetails, b.StatusHistory,
		b.BookingDetails.CompanyApproval, b.Payment.Mode, b.Payment.Status,
		nullIfEmpty(b.Payment.TransactionDetails.GatewayOrderID), b.BookingDetails.ConfirmedAt(),
		b.CreatedAt, b.UpdatedAt, b.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// Update writes the aggregate back if nobody else changed it since it was read
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}

	b.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE bookings SET
			status = $3,
			booking_details = $4,
			payment = $5,
			user_ids = $6,
			status_history = $7,
			company_approval = $8,
			payment_mode = $9,
			payment_status = $10,
			gateway_order_id = $11,
			confirmed_at = $12,
			updated_at = $13,
			version = version + 1
		WHERE id = $1 AND version = $2`

	result, err := r.db.ExecContext(ctx, query,
		b.ID, b.Version,
		b.Status, b.BookingDetails, b.Payment, pq.Array(b.UserIDs), b.StatusHistory,
		b.BookingDetails.CompanyApproval, b.Payment.Mode, b.Payment.Status,
		nullIfEmpty(b.Payment.TransactionDetails.GatewayOrderID), b.BookingDetails.ConfirmedAt(),
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrConcurrentUpdate
	}

	b.Version++
	return nil
}

// ============================================================================
// READS
// ============================================================================

// GetByID retrieves a booking by ID, nil if it does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	b, err := scanBooking(r.db.QueryRowxContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetByGatewayOrderID retrieves the booking paid through a gateway order
func (r *BookingRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE gateway_order_id = $1`

	b, err := scanBooking(r.db.QueryRowxContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by gateway order: %w", err)
	}
	return b, nil
}

// ListByUser returns bookings owned by or made for userID, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE created_by = $1::uuid OR $1::text = ANY(user_ids)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, query, userID, limit, offset)
}

// ListAwaitingConfirmation returns actionable bookings with no supplier
// confirmation yet, created before olderThan
func (r *BookingRepository) ListAwaitingConfirmation(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'BOOKED'
		AND confirmed_at IS NULL
		AND created_at < $1
		AND (
			(payment_mode = 'payByCompany' AND company_approval = 'Approved')
			OR (payment_mode = 'onlinePay' AND payment_status = 'success')
			OR payment_mode = 'payAtHotel'
		)
		ORDER BY created_at ASC
		LIMIT $2`

	return r.list(ctx, query, olderThan, limit)
}

// ListAwaitingPayment returns online-pay bookings whose payment is still pending
func (r *BookingRepository) ListAwaitingPayment(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'BOOKED'
		AND payment_mode = 'onlinePay'
		AND payment_status = 'pending'
		AND gateway_order_id IS NOT NULL
		AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	return r.list(ctx, query, olderThan, limit)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
