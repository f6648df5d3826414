// Package mongostore implements the booking, wallet and payment audit stores on MongoDB.
// It is selected with STORE_DRIVER=mongo and mirrors the PostgreSQL
// repositories method for method.
package mongostore

import (
	"context"
	"fmt"

	"github.com/tripdesk/booking-backend/internal/config"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	bookingsCollection           = "bookings"
	usersCollection              = "users"
	walletTransactionsCollection = "walletTransactions"
	paymentAuditsCollection      = "paymentAudits"
)

// Store owns the client and the database handle
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens the client, pings the server and ensures indexes exist
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	store := &Store{client: client, db: client.Database(cfg.Database)}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(bookingsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "confirmedAt", Value: 1}, {Key: "createdAt", Value: 1}}},
		{
			Keys:    bson.D{{Key: "payment.transactionDetails.gatewayOrderId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}

	_, err = s.db.Collection(walletTransactionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create wallet transaction indexes: %w", err)
	}

	_, err = s.db.Collection(paymentAuditsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "eventtype", Value: 1}, {Key: "idempotencykey", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create payment audit indexes: %w", err)
	}
	return nil
}

// Bookings returns the booking repository
func (s *Store) Bookings() *BookingRepository {
	return &BookingRepository{coll: s.db.Collection(bookingsCollection)}
}

// Users returns the user and wallet repository
func (s *Store) Users() *UserRepository {
	return &UserRepository{
		users:        s.db.Collection(usersCollection),
		transactions: s.db.Collection(walletTransactionsCollection),
	}
}

// PaymentAudits returns the payment audit repository
func (s *Store) PaymentAudits() *PaymentAuditRepository {
	return &PaymentAuditRepository{coll: s.db.Collection(paymentAuditsCollection)}
}

// Health pings the primary
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
