package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/booking-backend/internal/models"
)

func strPtr(s string) *string { return &s }

func TestResolvePaymentPolicy(t *testing.T) {
	companyID := "c0000000-0000-4000-8000-000000000001"
	employee := &models.User{ID: "e1", UserRole: models.RoleEmployee, CompanyID: strPtr(companyID)}
	hr := &models.User{ID: "h1", UserRole: models.RoleHR, CompanyID: strPtr(companyID)}
	admin := &models.User{ID: companyID, UserRole: models.RoleCompanyAdmin}
	loner := &models.User{ID: "u1", UserRole: models.RoleUser}

	tests := []struct {
		name    string
		mode    models.PaymentMode
		actor   *models.User
		want    PolicyDecision
		wantErr error
	}{
		{
			name:  "employee pays by company",
			mode:  models.PaymentModePayByCompany,
			actor: employee,
			want:  PolicyDecision{models.BookingStatusPending, models.PaymentStatusPending, models.ApprovalPending, companyID},
		},
		{
			name:  "hr pays by company",
			mode:  models.PaymentModePayByCompany,
			actor: hr,
			want:  PolicyDecision{models.BookingStatusBooked, models.PaymentStatusSuccess, models.ApprovalApproved, companyID},
		},
		{
			name:  "company admin pays from own wallet",
			mode:  models.PaymentModePayByCompany,
			actor: admin,
			want:  PolicyDecision{models.BookingStatusBooked, models.PaymentStatusSuccess, models.ApprovalApproved, companyID},
		},
		{
			name:    "user without company",
			mode:    models.PaymentModePayByCompany,
			actor:   loner,
			wantErr: ErrNoCompany,
		},
		{
			name:  "online pay",
			mode:  models.PaymentModeOnlinePay,
			actor: employee,
			want:  PolicyDecision{models.BookingStatusBooked, models.PaymentStatusPending, models.ApprovalApproved, ""},
		},
		{
			name:  "pay at hotel",
			mode:  models.PaymentModePayAtHotel,
			actor: loner,
			want:  PolicyDecision{models.BookingStatusBooked, models.PaymentStatusPending, models.ApprovalApproved, ""},
		},
		{
			name:    "unknown mode",
			mode:    "barter",
			actor:   loner,
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePaymentPolicy(tt.mode, tt.actor)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsActionable(t *testing.T) {
	booking := func(status models.BookingStatus, approval models.CompanyApproval, mode models.PaymentMode, paid models.PaymentStatus) *models.Booking {
		return &models.Booking{
			Status:         status,
			BookingDetails: models.NewBookingDetails(approval, &models.BusBooked{}),
			Payment:        models.Payment{Mode: mode, Status: paid},
		}
	}

	assert.NoError(t, IsActionable(booking(models.BookingStatusBooked, models.ApprovalApproved, models.PaymentModePayByCompany, models.PaymentStatusSuccess)))
	assert.NoError(t, IsActionable(booking(models.BookingStatusBooked, models.ApprovalApproved, models.PaymentModePayAtHotel, models.PaymentStatusPending)))
	assert.ErrorIs(t, IsActionable(booking(models.BookingStatusPending, models.ApprovalPending, models.PaymentModePayByCompany, models.PaymentStatusPending)), ErrApprovalRequired)
	assert.ErrorIs(t, IsActionable(booking(models.BookingStatusBooked, models.ApprovalApproved, models.PaymentModeOnlinePay, models.PaymentStatusPending)), ErrPaymentNotCompleted)
	assert.ErrorIs(t, IsActionable(booking(models.BookingStatusCancelled, models.ApprovalApproved, models.PaymentModePayAtHotel, models.PaymentStatusPending)), ErrBookingCancelled)
}
