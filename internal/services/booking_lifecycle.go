package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	defaultCancelRemarks = "Cancelled by customer"
)

// ============================================================================
// READS
// ============================================================================

// GetBooking returns a booking the actor is allowed to see
func (s *BookingSagaService) GetBooking(ctx context.Context, actorID, bookingID string) (*models.Booking, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookings returns the actor's bookings, newest first
func (s *BookingSagaService) ListBookings(ctx context.Context, actorID string, limit, offset int) ([]*models.Booking, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListByUser(ctx, actor.ID, limit, offset)
}

// WalletSummary returns the wallet that funds the actor's company bookings
func (s *BookingSagaService) WalletSummary(ctx context.Context, actorID string, limit int) (*WalletSummary, error) {
	return s.wallet.Summary(ctx, actorID, limit)
}

// ============================================================================
// COMPANY APPROVAL
// ============================================================================

// UpdateCompanyApproval approves or rejects a pending payByCompany booking.
// Approval books and confirms it, rejection cancels it and refunds the wallet.
func (s *BookingSagaService) UpdateCompanyApproval(ctx context.Context, actorID, bookingID string, req *models.UpdateCompanyApprovalRequest) (*models.Booking, error) {
	if req.CompanyApproval != models.ApprovalApproved && req.CompanyApproval != models.ApprovalRejected {
		return nil, validationErrorf("companyApproval must be Approved or Rejected")
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCompany(ctx, actor, b); err != nil {
		return nil, err
	}
	if b.Payment.Mode != models.PaymentModePayByCompany {
		return nil, validationErrorf("company approval only applies to payByCompany bookings")
	}

	current := b.BookingDetails.CompanyApproval
	if current == req.CompanyApproval {
		return b, nil
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, ErrBookingCancelled
	}
	if current != models.ApprovalPending {
		return nil, validationErrorf("booking is already %s", current)
	}

	ctx = context.WithoutCancel(ctx)
	log := s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"actor_id":   actor.ID,
		"approval":   req.CompanyApproval,
	})

	if req.CompanyApproval == models.ApprovalApproved {
		b.BookingDetails.CompanyApproval = models.ApprovalApproved
		b.Payment.Status = models.PaymentStatusSuccess
		b.TransitionTo(models.BookingStatusBooked, remarksOr(req.Remarks, "approved by company"), actor.ID)

		if err := s.bookings.Update(ctx, b); err != nil {
			return nil, &PersistenceError{Op: "approve booking", Err: err}
		}
		s.publish(ctx, events.TypeBookingApprovalUpdated, b, actor.ID, req.Remarks)
		log.Info("Company approved booking")

		if s.config.AutoConfirm {
			return s.tryConfirm(ctx, b, actor.ID), nil
		}
		return b, nil
	}

	b.BookingDetails.CompanyApproval = models.ApprovalRejected
	b.Payment.Status = models.PaymentStatusDeclined
	ownerID, amount := releaseWallet(b)
	b.TransitionTo(models.BookingStatusCancelled, remarksOr(req.Remarks, "rejected by company"), actor.ID)

	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, &PersistenceError{Op: "reject booking", Err: err}
	}
	s.refund(ctx, b, ownerID, amount)
	s.publish(ctx, events.TypeBookingApprovalUpdated, b, actor.ID, req.Remarks)
	log.Info("Company rejected booking")
	return b, nil
}

// ============================================================================
// STATUS / CANCEL
// ============================================================================

// UpdateBookingStatus is the administrative status override. Cancelled
// bookings are final, and a change to CANCELLED runs the cancel flow.
func (s *BookingSagaService) UpdateBookingStatus(ctx context.Context, actorID, bookingID string, req *models.UpdateBookingStatusRequest) (*models.Booking, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.UserRole != models.RoleSuperAdmin {
		return nil, ErrNotPermitted
	}

	switch req.Status {
	case models.BookingStatusPending, models.BookingStatusBooked, models.BookingStatusCancelled:
	default:
		return nil, validationErrorf("status must be PENDING, BOOKED or CANCELLED")
	}

	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == req.Status {
		return b, nil
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, ErrBookingCancelled
	}

	ctx = context.WithoutCancel(ctx)
	if req.Status == models.BookingStatusCancelled {
		return s.cancel(ctx, b, actor.ID, remarksOr(req.Reason, "cancelled by administrator"))
	}

	b.TransitionTo(req.Status, remarksOr(req.Reason, "status updated by administrator"), actor.ID)
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, &PersistenceError{Op: "update booking status", Err: err}
	}
	s.publish(ctx, events.TypeBookingStatusUpdated, b, actor.ID, req.Reason)

	s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"status":     b.Status,
		"actor_id":   actor.ID,
	}).Info("Booking status updated")
	return b, nil
}

// CancelBooking cancels a booking, with the supplier first when it was
// already confirmed there. Cancelling twice is a no-op.
func (s *BookingSagaService) CancelBooking(ctx context.Context, actorID, bookingID string, req *models.CancelBookingRequest) (*models.Booking, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CreatedBy != actor.ID {
		if err := s.authorizeCompany(ctx, actor, b); err != nil {
			return nil, err
		}
	}

	remarks := defaultCancelRemarks
	if req != nil && req.Remarks != "" {
		remarks = req.Remarks
	}
	return s.cancel(context.WithoutCancel(ctx), b, actor.ID, remarks)
}

func (s *BookingSagaService) cancel(ctx context.Context, b *models.Booking, by, reason string) (*models.Booking, error) {
	if b.Status == models.BookingStatusCancelled {
		return b, nil
	}
	if b.BookingDetails.ConfirmationLeased(time.Now()) {
		return nil, ErrConfirmationInProgress
	}

	if result := b.BookingDetails.Confirmation(); result != nil {
		if err := s.cancelWithSupplier(ctx, b, reason); err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Supplier refused cancellation")
			return nil, err
		}
	}

	ownerID, amount := releaseWallet(b)
	b.TransitionTo(models.BookingStatusCancelled, reason, by)

	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, &PersistenceError{Op: "cancel booking", Err: err}
	}
	s.refund(ctx, b, ownerID, amount)
	s.publish(ctx, events.TypeBookingCancelled, b, by, reason)

	entry := s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"actor_id":   by,
		"refunded":   amount,
	})
	if b.Payment.Mode == models.PaymentModeOnlinePay && b.Payment.Status == models.PaymentStatusSuccess {
		entry = entry.WithField("gateway_payment_id", b.Payment.TransactionDetails.GatewayPaymentID)
		entry.Warn("Cancelled booking was paid online, gateway refund must be issued manually")
	} else {
		entry.Info("Booking cancelled")
	}
	return b, nil
}

// cancelWithSupplier sends the change request for every ticketed part of the booking
func (s *BookingSagaService) cancelWithSupplier(ctx context.Context, b *models.Booking, remarks string) error {
	result := b.BookingDetails.Confirmation()

	switch v := b.BookingDetails.Variant().(type) {
	case *models.BdsdHotelBooked:
		return s.sendChangeRequest(ctx, supplier.EndpointHotelChangeRequest, models.SupplierChangeRequest{
			EndUserIP:   v.BlockRequest.EndUserIP,
			BookingID:   result.BookingID,
			RequestType: supplier.ChangeRequestHotelCancel,
			Remarks:     remarks,
		})

	case *models.BusBooked:
		return s.sendChangeRequest(ctx, supplier.EndpointBusCancel, models.SupplierChangeRequest{
			EndUserIP:   v.BlockRequest.EndUserIP,
			BookingID:   result.BookingID,
			RequestType: supplier.ChangeRequestFullCancellation,
			Remarks:     remarks,
		})

	case *models.FlightBooked:
		legs := []*models.SupplierBookResult{result}
		if v.ReturnBookingResult != nil {
			legs = append(legs, v.ReturnBookingResult)
		}
		for _, leg := range legs {
			err := s.sendChangeRequest(ctx, supplier.EndpointFlightChangeRequest, models.SupplierChangeRequest{
				EndUserIP:   v.EndUserIP,
				BookingID:   leg.BookingID,
				RequestType: supplier.ChangeRequestFullCancellation,
				Remarks:     remarks,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	// Direct and outside hotels have nothing to cancel upstream
	return nil
}

func (s *BookingSagaService) sendChangeRequest(ctx context.Context, endpoint string, req models.SupplierChangeRequest) error {
	var result models.SupplierChangeResult
	if res := s.supplier.Call(ctx, endpoint, req, &result); !res.OK {
		return newSupplierError(endpoint, res.Err)
	}
	s.logger.WithFields(logrus.Fields{
		"supplier_booking_id": req.BookingID,
		"change_request_id":   result.ChangeRequestID,
		"refunded_amount":     result.RefundedAmount,
	}).Info("Supplier change request accepted")
	return nil
}

// releaseWallet clears the booking's wallet debit and returns what has to be
// credited back once the booking is saved
func releaseWallet(b *models.Booking) (string, int64) {
	details := &b.Payment.TransactionDetails
	if details.WalletDebited <= 0 || details.WalletUserID == "" {
		return "", 0
	}
	amount := details.WalletDebited
	details.WalletDebited = 0
	return details.WalletUserID, amount
}

func (s *BookingSagaService) refund(ctx context.Context, b *models.Booking, ownerID string, amount int64) {
	if amount <= 0 {
		return
	}
	if err := s.wallet.Refund(ctx, ownerID, amount, b.ID); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id":     b.ID,
			"wallet_user_id": ownerID,
			"amount":         amount,
		}).Error("CRITICAL: Booking cancelled but wallet refund failed")
		return
	}
	s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventWalletRefunded, models.PaymentSourceSystem).
		SetBooking(b.ID, b.Payment.Mode))
}

// ============================================================================
// RECONCILIATION
// ============================================================================

// ReconcilePendingConfirmations retries supplier confirmation for actionable
// bookings created before olderThan. Returns confirmed and failed counts.
func (s *BookingSagaService) ReconcilePendingConfirmations(ctx context.Context, olderThan time.Time, limit int) (int, int, error) {
	pending, err := s.bookings.ListAwaitingConfirmation(ctx, olderThan, limit)
	if err != nil {
		return 0, 0, err
	}

	confirmed, failed := 0, 0
	for _, b := range pending {
		if _, err := s.confirm(ctx, b, ""); err != nil {
			failed++
			continue
		}
		confirmed++
	}
	return confirmed, failed, nil
}

// ============================================================================
// ACCESS
// ============================================================================

// authorizeView allows the creator, listed travellers, super admins and the
// booking company's admins
func (s *BookingSagaService) authorizeView(ctx context.Context, actor *models.User, b *models.Booking) error {
	if actor.ID == b.CreatedBy {
		return nil
	}
	for _, id := range b.UserIDs {
		if id == actor.ID {
			return nil
		}
	}
	return s.authorizeCompany(ctx, actor, b)
}

// authorizeCompany allows super admins, and company admins or HR of the
// company the booking's creator belongs to
func (s *BookingSagaService) authorizeCompany(ctx context.Context, actor *models.User, b *models.Booking) error {
	if actor.UserRole == models.RoleSuperAdmin {
		return nil
	}
	if !actor.HasRole(models.RoleCompanyAdmin, models.RoleHR) {
		return ErrNotPermitted
	}
	companyID, ok := actor.PayingCompanyID()
	if !ok {
		return ErrNotPermitted
	}
	if b.Payment.TransactionDetails.WalletUserID == companyID || b.CreatedBy == companyID {
		return nil
	}

	owner, err := s.users.GetByID(ctx, b.CreatedBy)
	if err != nil {
		return err
	}
	if owner != nil && owner.BelongsToCompany(companyID) {
		return nil
	}
	return ErrNotPermitted
}

func remarksOr(remarks, fallback string) string {
	if remarks != "" {
		return remarks
	}
	return fallback
}

// IsClientError reports whether err is caused by the request rather than by
// a dependency failing
func IsClientError(err error) bool {
	var vErr *models.ValidationError
	var sErr *SupplierError
	switch {
	case errors.As(err, &vErr), errors.Is(err, ErrValidation):
		return true
	case errors.As(err, &sErr):
		return !sErr.Transport
	}
	for _, target := range []error{
		ErrInvalidFareDetails, ErrInsufficientBalance, ErrNoCompany, ErrApprovalRequired,
		ErrPaymentNotCompleted, ErrBookingCancelled, ErrInvalidSignature, ErrPaymentUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
