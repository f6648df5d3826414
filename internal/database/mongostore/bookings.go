package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tripdesk/booking-backend/internal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// bookingDocument adds the confirmation timestamp at the top level so the
// reconciliation queries do not depend on which variant is populated.
type bookingDocument struct {
	models.Booking `bson:",inline"`
	ConfirmedAt    *time.Time `bson:"confirmedAt"`
}

func toDocument(b *models.Booking) bookingDocument {
	return bookingDocument{Booking: *b, ConfirmedAt: b.BookingDetails.ConfirmedAt()}
}

// fromDocument rejects stored documents whose variant does not match their type
func fromDocument(doc bookingDocument) (*models.Booking, error) {
	b := doc.Booking
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("stored booking %s is invalid: %w", b.ID, err)
	}
	return &b, nil
}

// BookingRepository stores bookings in the bookings collection
type BookingRepository struct {
	coll *mongo.Collection
}

// Create inserts a new booking
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

	if _, err := r.coll.InsertOne(ctx, toDocument(b)); err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// Update replaces the booking if its version still matches
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}

	b.UpdatedAt = time.Now().UTC()
	expected := b.Version
	b.Version++

	result, err := r.coll.ReplaceOne(ctx, bson.M{"_id": b.ID, "version": expected}, toDocument(b))
	if err != nil {
		b.Version = expected
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		b.Version = expected
		return models.ErrConcurrentUpdate
	}
	return nil
}

// GetByID retrieves a booking by ID, nil if it does not exist
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByGatewayOrderID retrieves the booking paid through a gateway order
func (r *BookingRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	return r.findOne(ctx, bson.M{"payment.transactionDetails.gatewayOrderId": orderID})
}

// ListByUser returns bookings owned by or made for userID, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Booking, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	return r.find(ctx, userBookingsFilter(userID), opts)
}

// ListAwaitingConfirmation returns actionable bookings with no supplier confirmation
func (r *BookingRepository) ListAwaitingConfirmation(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))
	return r.find(ctx, awaitingConfirmationFilter(olderThan), opts)
}

// ListAwaitingPayment returns online-pay bookings whose payment is still pending
func (r *BookingRepository) ListAwaitingPayment(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))
	return r.find(ctx, awaitingPaymentFilter(olderThan), opts)
}

func userBookingsFilter(userID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"createdBy": userID},
		bson.M{"userId": userID},
	}}
}

func awaitingConfirmationFilter(olderThan time.Time) bson.M {
	return bson.M{
		"status":      models.BookingStatusBooked,
		"confirmedAt": nil,
		"createdAt":   bson.M{"$lt": olderThan},
		"$or": bson.A{
			bson.M{"payment.mode": models.PaymentModePayByCompany, "bookingDetails.companyApproval": models.ApprovalApproved},
			bson.M{"payment.mode": models.PaymentModeOnlinePay, "payment.status": models.PaymentStatusSuccess},
			bson.M{"payment.mode": models.PaymentModePayAtHotel},
		},
	}
}

func awaitingPaymentFilter(olderThan time.Time) bson.M {
	return bson.M{
		"status":         models.BookingStatusBooked,
		"payment.mode":   models.PaymentModeOnlinePay,
		"payment.status": models.PaymentStatusPending,
		"payment.transactionDetails.gatewayOrderId": bson.M{"$exists": true, "$ne": ""},
		"createdAt": bson.M{"$lt": olderThan},
	}
}

func (r *BookingRepository) findOne(ctx context.Context, filter bson.M) (*models.Booking, error) {
	var doc bookingDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return fromDocument(doc)
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*models.Booking, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*models.Booking{}
	for cursor.Next(ctx) {
		var doc bookingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode booking: %w", err)
		}
		b, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}
