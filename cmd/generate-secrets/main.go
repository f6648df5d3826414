package main

import (
	"fmt"
	"log"

	"github.com/tripdesk/booking-backend/internal/utils"
)

func main() {
	secrets, err := utils.GenerateSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("# Add these to your .env file. Never commit them.")
	fmt.Printf("JWT_SECRET=%s\n", secrets.JWTSecret)
	fmt.Printf("PAYMENT_WEBHOOK_SECRET=%s\n", secrets.PaymentWebhookSecret)
}
