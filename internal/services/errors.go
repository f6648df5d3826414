package services

import (
	"errors"
	"fmt"

	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

// Saga and lifecycle errors. Messages are returned to API clients as-is.
var (
	ErrActorNotFound       = errors.New("User not found")
	ErrInvalidFareDetails  = errors.New("Invalid fare/room details")
	ErrInsufficientBalance = models.ErrInsufficientBalance
	ErrNoCompany           = errors.New("User is not linked to a company")
	ErrApprovalRequired    = errors.New("Booking is awaiting company approval")
	ErrPaymentNotCompleted = errors.New("Payment has not been completed")
	ErrBookingCancelled    = errors.New("Booking is cancelled")
	ErrNotPermitted        = errors.New("You are not allowed to perform this action")
	ErrBookingNotFound     = errors.New("Booking not found")
	ErrIdempotencyInFlight = errors.New("A request with this Idempotency-Key is already in progress")
	ErrInvalidSignature    = errors.New("Invalid payment signature")
	ErrPaymentUnavailable  = errors.New("Online payment is not available")
	ErrValidation          = errors.New("Invalid request")

	ErrConfirmationInProgress = errors.New("Booking confirmation is already in progress")
)

// SupplierError is a failed supplier call. Transport is set when the supplier
// could not be reached at all.
type SupplierError struct {
	Endpoint  string
	Code      int
	Message   string
	Transport bool
}

func (e *SupplierError) Error() string {
	return e.Message
}

func newSupplierError(endpoint string, err *supplier.Error) *SupplierError {
	if err == nil {
		return &SupplierError{Endpoint: endpoint, Code: supplier.TransportErrorCode, Message: supplier.TransportErrorMessage, Transport: true}
	}
	return &SupplierError{Endpoint: endpoint, Code: err.Code, Message: err.Message, Transport: err.Transport}
}

// PersistenceError is a failed store write after external side effects happened
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
