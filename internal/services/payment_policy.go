package services

import "github.com/tripdesk/booking-backend/internal/models"

// PolicyDecision is the state a new booking starts in for a payment mode
type PolicyDecision struct {
	BookingStatus   models.BookingStatus
	PaymentStatus   models.PaymentStatus
	CompanyApproval models.CompanyApproval

	// WalletOwnerID is the company wallet to debit, empty when no wallet is involved
	WalletOwnerID string
}

// ResolvePaymentPolicy decides the initial booking state for mode and actor.
//
//	payByCompany  EMPLOYEE: PENDING / Pending / pending, others: BOOKED / Approved / success
//	onlinePay     BOOKED / Approved / pending
//	payAtHotel    BOOKED / Approved / pending
func ResolvePaymentPolicy(mode models.PaymentMode, actor *models.User) (PolicyDecision, error) {
	switch mode {
	case models.PaymentModePayByCompany:
		companyID, ok := actor.PayingCompanyID()
		if !ok {
			return PolicyDecision{}, ErrNoCompany
		}
		if actor.UserRole == models.RoleEmployee {
			return PolicyDecision{
				BookingStatus:   models.BookingStatusPending,
				PaymentStatus:   models.PaymentStatusPending,
				CompanyApproval: models.ApprovalPending,
				WalletOwnerID:   companyID,
			}, nil
		}
		return PolicyDecision{
			BookingStatus:   models.BookingStatusBooked,
			PaymentStatus:   models.PaymentStatusSuccess,
			CompanyApproval: models.ApprovalApproved,
			WalletOwnerID:   companyID,
		}, nil

	case models.PaymentModeOnlinePay, models.PaymentModePayAtHotel:
		return PolicyDecision{
			BookingStatus:   models.BookingStatusBooked,
			PaymentStatus:   models.PaymentStatusPending,
			CompanyApproval: models.ApprovalApproved,
		}, nil

	default:
		return PolicyDecision{}, validationErrorf("unknown payment mode %q", mode)
	}
}

// IsActionable reports whether a booking may be sent to the supplier for confirmation
func IsActionable(b *models.Booking) error {
	if b.Status == models.BookingStatusCancelled {
		return ErrBookingCancelled
	}
	switch b.Payment.Mode {
	case models.PaymentModePayByCompany:
		if b.BookingDetails.CompanyApproval != models.ApprovalApproved {
			return ErrApprovalRequired
		}
	case models.PaymentModeOnlinePay:
		if b.Payment.Status != models.PaymentStatusSuccess {
			return ErrPaymentNotCompleted
		}
	}
	return nil
}
