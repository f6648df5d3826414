package models

import "errors"

// Store level errors shared by the PostgreSQL and MongoDB implementations
var (
	// ErrInsufficientBalance is returned when a conditional wallet debit matches no row
	ErrInsufficientBalance = errors.New("Insufficient balance")

	// ErrConcurrentUpdate is returned when a booking changed since it was read
	ErrConcurrentUpdate = errors.New("booking was modified concurrently")

	// ErrUserNotFound is returned when a wallet owner does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrWalletLogFailed is returned when the balance changed but the wallet
	// transaction row could not be written
	ErrWalletLogFailed = errors.New("wallet updated but transaction log failed")
)
