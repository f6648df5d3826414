package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tripdesk/booking-backend/internal/models"
)

// UserRepository handles user and wallet database operations
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `id, name, email, phone, user_role, company_id, wallet, gst_details, created_at, updated_at`

// GetByID retrieves a user by ID, nil if it does not exist
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// DebitWallet subtracts amount from the wallet only if the balance covers it.
// The check and the write are one statement, so concurrent debits cannot
// drive the balance negative. Returns the new balance.
func (r *UserRepository) DebitWallet(ctx context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	query := `
		WITH debited AS (
			UPDATE users
			SET wallet = wallet - $2, updated_at = NOW()
			WHERE id = $1 AND wallet >= $2
			RETURNING id, wallet
		), logged AS (
			INSERT INTO wallet_transactions (id, user_id, booking_id, amount, balance_after, reason, created_at)
			SELECT $3, id, $4, $5, wallet, $6, NOW() FROM debited
		)
		SELECT wallet FROM debited`

	var balance int64
	err := r.db.GetContext(ctx, &balance, query, userID, amount, uuid.NewString(), bookingID, -amount, reason)
	if errors.Is(err, sql.ErrNoRows) {
		exists, existsErr := r.exists(ctx, userID)
		if existsErr != nil {
			return 0, existsErr
		}
		if !exists {
			return 0, models.ErrUserNotFound
		}
		return 0, models.ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("failed to debit wallet: %w", err)
	}

	return balance, nil
}

// CreditWallet adds amount to the wallet and returns the new balance
func (r *UserRepository) CreditWallet(ctx context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	query := `
		WITH credited AS (
			UPDATE users
			SET wallet = wallet + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING id, wallet
		), logged AS (
			INSERT INTO wallet_transactions (id, user_id, booking_id, amount, balance_after, reason, created_at)
			SELECT $3, id, $4, $2, wallet, $5, NOW() FROM credited
		)
		SELECT wallet FROM credited`

	var balance int64
	err := r.db.GetContext(ctx, &balance, query, userID, amount, uuid.NewString(), bookingID, reason)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit wallet: %w", err)
	}

	return balance, nil
}

// ListWalletTransactions returns the most recent wallet movements of a user
func (r *UserRepository) ListWalletTransactions(ctx context.Context, userID string, limit int) ([]*models.WalletTransaction, error) {
	transactions := []*models.WalletTransaction{}
	query := `
		SELECT id, user_id, booking_id, amount, balance_after, reason, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &transactions, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}

	return transactions, nil
}

func (r *UserRepository) exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}
