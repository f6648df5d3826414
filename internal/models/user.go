package models

import (
	"time"
)

// UserRole represents the role of a user in the platform
type UserRole string

const (
	RoleSuperAdmin   UserRole = "SADMIN"
	RoleCompanyAdmin UserRole = "CADMIN"
	RoleHR           UserRole = "HR"
	RoleEmployee     UserRole = "EMPLOYEE"
	RoleHotelOwner   UserRole = "HotelOwner"
	RoleUser         UserRole = "USER"
)

// User represents a user in the system. For company admins the wallet is
// the company wallet; every other member points at it through CompanyID.
type User struct {
	ID         string      `json:"id" db:"id" bson:"_id"`
	Name       string      `json:"name" db:"name" bson:"name"`
	Email      *string     `json:"email,omitempty" db:"email" bson:"email,omitempty"`
	Phone      *string     `json:"phone,omitempty" db:"phone" bson:"phone,omitempty"`
	UserRole   UserRole    `json:"userRole" db:"user_role" bson:"userRole"`
	CompanyID  *string     `json:"companyId,omitempty" db:"company_id" bson:"companyId,omitempty"`
	Wallet     int64       `json:"wallet" db:"wallet" bson:"wallet"`
	GSTDetails *GSTDetails `json:"gstDetails,omitempty" db:"gst_details" bson:"gstDetails,omitempty"`
	CreatedAt  time.Time   `json:"createdAt" db:"created_at" bson:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt" db:"updated_at" bson:"updatedAt"`
}

// HasRole checks if the user has any of the given roles
func (u *User) HasRole(roles ...UserRole) bool {
	for _, r := range roles {
		if u.UserRole == r {
			return true
		}
	}
	return false
}

// PayingCompanyID returns the id of the user whose wallet funds company
// bookings made by u: u itself for a company admin, otherwise its company.
func (u *User) PayingCompanyID() (string, bool) {
	if u.UserRole == RoleCompanyAdmin {
		return u.ID, true
	}
	if u.CompanyID != nil && *u.CompanyID != "" {
		return *u.CompanyID, true
	}
	return "", false
}

// BelongsToCompany reports whether u is the company admin or a member of companyID
func (u *User) BelongsToCompany(companyID string) bool {
	id, ok := u.PayingCompanyID()
	return ok && id == companyID
}

// WalletTransaction is one movement of a wallet balance, kept for audit
type WalletTransaction struct {
	ID           string    `json:"id" db:"id" bson:"_id"`
	UserID       string    `json:"userId" db:"user_id" bson:"userId"`
	BookingID    *string   `json:"bookingId,omitempty" db:"booking_id" bson:"bookingId,omitempty"`
	Amount       int64     `json:"amount" db:"amount" bson:"amount"` // negative for debits
	BalanceAfter int64     `json:"balanceAfter" db:"balance_after" bson:"balanceAfter"`
	Reason       string    `json:"reason" db:"reason" bson:"reason"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
}

// Wallet movement reasons
const (
	WalletReasonBookingDebit  = "booking_debit"
	WalletReasonBookingRefund = "booking_refund"
	WalletReasonTopUp         = "top_up"
)
