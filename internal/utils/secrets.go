package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret returns n random bytes, hex encoded
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Secrets are the values the server signs and verifies with
type Secrets struct {
	JWTSecret            string
	PaymentWebhookSecret string
}

// GenerateSecrets creates an independent 256-bit value for each secret
func GenerateSecrets() (*Secrets, error) {
	jwtSecret, err := GenerateSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	webhookSecret, err := GenerateSecret(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
	}

	return &Secrets{JWTSecret: jwtSecret, PaymentWebhookSecret: webhookSecret}, nil
}
