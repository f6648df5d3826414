package mongostore

import (
	"context"
	"fmt"

	"github.com/tripdesk/booking-backend/internal/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// PaymentAuditRepository appends payment audit entries. Field names follow
// the driver default of lowercased Go names.
type PaymentAuditRepository struct {
	coll *mongo.Collection
}

// Log inserts an audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if _, err := r.coll.InsertOne(ctx, audit); err != nil {
		return fmt.Errorf("failed to insert payment audit: %w", err)
	}
	return nil
}

// CheckDuplicate reports whether a non-duplicate entry with the same event
// type and idempotency key was already recorded
func (r *PaymentAuditRepository) CheckDuplicate(ctx context.Context, gatewayPaymentID string, eventType models.PaymentEventType, idempotencyKey string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, duplicateFilter(gatewayPaymentID, eventType, idempotencyKey))
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return count > 0, nil
}

func duplicateFilter(gatewayPaymentID string, eventType models.PaymentEventType, idempotencyKey string) bson.M {
	if idempotencyKey == "" {
		idempotencyKey = fmt.Sprintf("%s-%s", gatewayPaymentID, eventType)
	}
	filter := bson.M{
		"eventtype":      eventType,
		"idempotencykey": idempotencyKey,
		"isduplicate":    false,
	}
	if gatewayPaymentID != "" {
		filter["gatewaypaymentid"] = gatewayPaymentID
	}
	return filter
}
