package validator

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var (
	// ErrEmptyGSTIN indicates the GST number is empty
	ErrEmptyGSTIN = errors.New("GST number cannot be empty")

	// ErrInvalidGSTIN indicates the GST number does not match the 15 character layout
	ErrInvalidGSTIN = errors.New("GST number must be 15 characters: 2 digit state code, PAN, entity code, Z, checksum")

	// ErrInvalidEmail indicates the email address cannot be parsed
	ErrInvalidEmail = errors.New("invalid email address")
)

// 2 digit state code + PAN (5 letters, 4 digits, 1 letter) + entity + 'Z' + checksum
var gstinRegex = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

// ValidateGSTIN normalizes and validates a GST identification number
func ValidateGSTIN(gstin string) (string, error) {
	gstin = strings.ToUpper(strings.TrimSpace(gstin))
	if gstin == "" {
		return "", ErrEmptyGSTIN
	}
	if !gstinRegex.MatchString(gstin) {
		return "", ErrInvalidGSTIN
	}
	return gstin, nil
}

// ValidateEmail checks that the address is a bare RFC 5322 address
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}
