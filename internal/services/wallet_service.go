package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/models"
)

// WalletService moves company wallet balances. The balance check lives in
// the store's conditional update, never in a read-then-write here.
type WalletService struct {
	users  UserStore
	logger *logrus.Logger
}

// NewWalletService creates a new WalletService
func NewWalletService(users UserStore, logger *logrus.Logger) *WalletService {
	return &WalletService{users: users, logger: logger}
}

// Reserve debits amount for a booking, ErrInsufficientBalance if the wallet cannot cover it
func (s *WalletService) Reserve(ctx context.Context, userID string, amount int64, bookingRef string) error {
	if amount <= 0 {
		return validationErrorf("wallet amount must be greater than zero")
	}

	balance, err := s.users.DebitWallet(ctx, userID, amount, &bookingRef, models.WalletReasonBookingDebit)
	if errors.Is(err, models.ErrWalletLogFailed) {
		s.logLost(userID, bookingRef, -amount, err)
		err = nil
	}
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) || errors.Is(err, models.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("failed to reserve wallet funds: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"wallet_user_id": userID,
		"booking_id":     bookingRef,
		"amount":         amount,
		"balance":        balance,
	}).Info("Wallet debited")
	return nil
}

// Refund credits amount back for a booking
func (s *WalletService) Refund(ctx context.Context, userID string, amount int64, bookingRef string) error {
	if amount <= 0 {
		return validationErrorf("wallet amount must be greater than zero")
	}

	balance, err := s.users.CreditWallet(ctx, userID, amount, &bookingRef, models.WalletReasonBookingRefund)
	if errors.Is(err, models.ErrWalletLogFailed) {
		s.logLost(userID, bookingRef, amount, err)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to refund wallet: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"wallet_user_id": userID,
		"booking_id":     bookingRef,
		"amount":         amount,
		"balance":        balance,
	}).Info("Wallet refunded")
	return nil
}

// logLost reports a wallet movement whose balance change was applied but
// whose transaction row is missing
func (s *WalletService) logLost(userID, bookingRef string, amount int64, err error) {
	s.logger.WithFields(logrus.Fields{
		"wallet_user_id": userID,
		"booking_id":     bookingRef,
		"amount":         amount,
	}).WithError(err).Warn("Wallet transaction log missing")
}

// Balance returns the current wallet balance of userID
func (s *WalletService) Balance(ctx context.Context, userID string) (int64, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil {
		return 0, ErrActorNotFound
	}
	return user.Wallet, nil
}

// WalletSummary is the wallet view returned to the caller
type WalletSummary struct {
	OwnerID      string                      `json:"ownerId"`
	Balance      int64                       `json:"balance"`
	Transactions []*models.WalletTransaction `json:"transactions"`
}

// Summary returns the wallet that funds userID's company bookings. The
// transaction history is limited to the owner, HR and admins.
func (s *WalletService) Summary(ctx context.Context, userID string, limit int) (*WalletSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrActorNotFound
	}

	ownerID, ok := user.PayingCompanyID()
	if !ok {
		ownerID = user.ID
	}

	owner := user
	if ownerID != user.ID {
		owner, err = s.users.GetByID(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, ErrNoCompany
		}
	}

	summary := &WalletSummary{OwnerID: ownerID, Balance: owner.Wallet, Transactions: []*models.WalletTransaction{}}
	// employees see the company balance but not its history
	if ownerID != user.ID && !user.HasRole(models.RoleSuperAdmin, models.RoleCompanyAdmin, models.RoleHR) {
		return summary, nil
	}

	transactions, err := s.users.ListWalletTransactions(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	if transactions != nil {
		summary.Transactions = transactions
	}
	return summary, nil
}
