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

// UserRepository reads users and moves wallet balances
type UserRepository struct {
	users        *mongo.Collection
	transactions *mongo.Collection
}

// GetByID retrieves a user by ID, nil if it does not exist
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// DebitWallet subtracts amount only if the balance covers it. The balance
// check is part of the update filter so the server applies both atomically.
func (r *UserRepository) DebitWallet(ctx context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	balance, err := r.applyDelta(ctx, bson.M{"_id": userID, "wallet": bson.M{"$gte": amount}}, -amount)
	if errors.Is(err, mongo.ErrNoDocuments) {
		count, countErr := r.users.CountDocuments(ctx, bson.M{"_id": userID})
		if countErr != nil {
			return 0, fmt.Errorf("failed to check user: %w", countErr)
		}
		if count == 0 {
			return 0, models.ErrUserNotFound
		}
		return 0, models.ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit wallet: %w", err)
	}

	return balance, r.logTransaction(ctx, userID, bookingID, -amount, balance, reason)
}

// CreditWallet adds amount to the wallet and returns the new balance
func (r *UserRepository) CreditWallet(ctx context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	balance, err := r.applyDelta(ctx, bson.M{"_id": userID}, amount)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, models.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit wallet: %w", err)
	}

	return balance, r.logTransaction(ctx, userID, bookingID, amount, balance, reason)
}

// ListWalletTransactions returns the most recent wallet movements of a user
func (r *UserRepository) ListWalletTransactions(ctx context.Context, userID string, limit int) ([]*models.WalletTransaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cursor, err := r.transactions.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}

	transactions := []*models.WalletTransaction{}
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode wallet transactions: %w", err)
	}
	return transactions, nil
}

func (r *UserRepository) applyDelta(ctx context.Context, filter bson.M, delta int64) (int64, error) {
	update := bson.M{
		"$inc": bson.M{"wallet": delta},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"wallet": 1})

	var updated struct {
		Wallet int64 `bson:"wallet"`
	}
	if err := r.users.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return 0, err
	}
	return updated.Wallet, nil
}

// logTransaction records the movement after the balance changed. A failure
// leaves the balance applied and returns ErrWalletLogFailed.
func (r *UserRepository) logTransaction(ctx context.Context, userID string, bookingID *string, amount, balance int64, reason string) error {
	tx := models.WalletTransaction{
		ID:           uuid.NewString(),
		UserID:       userID,
		BookingID:    bookingID,
		Amount:       amount,
		BalanceAfter: balance,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := r.transactions.InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrWalletLogFailed, err)
	}
	return nil
}
