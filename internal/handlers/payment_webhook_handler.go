package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/services"
)

// WebhookSignatureHeader carries the HMAC of the raw webhook body
const WebhookSignatureHeader = "X-Razorpay-Signature"

const maxWebhookBody = 1 << 20

// WebhookProcessor handles verified gateway notifications
type WebhookProcessor interface {
	HandlePaymentWebhook(ctx context.Context, body []byte, signature string, meta services.RequestMeta) error
}

// PaymentWebhookHandler receives payment gateway webhooks. The route is not
// behind JWT auth; the signature is the authentication.
type PaymentWebhookHandler struct {
	processor WebhookProcessor
	logger    *logrus.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(processor WebhookProcessor, logger *logrus.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// Handle processes one webhook delivery
// POST /api/v1/payments/webhook
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "Failed to read request body", "INVALID_BODY")
		return
	}

	signature := c.GetHeader(WebhookSignatureHeader)
	if signature == "" {
		h.logger.WithField("ip", c.ClientIP()).Warn("Payment webhook without signature")
		respondFailure(c, http.StatusBadRequest, "Missing webhook signature", "MISSING_SIGNATURE")
		return
	}

	if err := h.processor.HandlePaymentWebhook(c.Request.Context(), body, signature, requestMeta(c)); err != nil {
		// Non-2xx makes the gateway redeliver, which is only useful for server side failures
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Webhook processed", nil)
}
