package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/payment"
)

// VerifyOnlinePayment checks the checkout signature of an onlinePay booking,
// marks it paid and confirms it with the supplier best-effort
func (s *BookingSagaService) VerifyOnlinePayment(ctx context.Context, actorID, bookingID string, req *models.VerifyPaymentRequest, meta RequestMeta) (*models.Booking, error) {
	start := time.Now()

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
	if b.Payment.Mode != models.PaymentModeOnlinePay {
		return nil, validationErrorf("booking is not paid online")
	}
	if b.Payment.Status == models.PaymentStatusSuccess {
		return b, nil
	}

	audit := models.NewPaymentAudit(models.PaymentEventSignatureVerified, models.PaymentSourceUser).
		SetBooking(b.ID, b.Payment.Mode).
		SetGatewayOrder(req.OrderID).
		SetGatewayPayment(req.PaymentID).
		SetMetadata(meta.IPAddress, meta.UserAgent, meta.DeviceType, meta.Platform)

	if req.OrderID != b.Payment.TransactionDetails.GatewayOrderID ||
		!s.payments.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		audit.EventType = models.PaymentEventSignatureInvalid
		s.logAudit(ctx, audit.SetError("payment signature mismatch").SetProcessingTime(start))
		s.logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
		}).Warn("Payment signature verification failed")
		return nil, ErrInvalidSignature
	}

	ctx = context.WithoutCancel(ctx)

	markPaid(b, req.PaymentID, req.Signature)
	if err := s.bookings.Update(ctx, b); err != nil {
		s.logAudit(ctx, audit.SetError(err.Error()).SetProcessingTime(start))
		return nil, &PersistenceError{Op: "record payment", Err: err}
	}
	s.logAudit(ctx, audit.SetProcessingTime(start))
	s.publish(ctx, events.TypeBookingPaymentVerified, b, actor.ID, "")

	if b.Status == models.BookingStatusCancelled {
		s.flagRefundOwed(ctx, b, models.PaymentSourceUser, req.PaymentID)
		return b, nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"payment_id": req.PaymentID,
	}).Info("Online payment verified")

	return s.tryConfirm(ctx, b, actor.ID), nil
}

// HandlePaymentWebhook reconciles an asynchronous gateway notification.
// Unknown orders and duplicate deliveries are acknowledged without changes.
func (s *BookingSagaService) HandlePaymentWebhook(ctx context.Context, body []byte, signature string, meta RequestMeta) error {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	if !s.payments.VerifyWebhookSignature(body, signature) {
		s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventSignatureInvalid, models.PaymentSourceGatewayWebhook).
			SetRawBody(string(body)).
			SetError("webhook signature mismatch").
			SetMetadata(meta.IPAddress, meta.UserAgent, meta.DeviceType, meta.Platform).
			SetProcessingTime(start))
		s.logger.WithField("ip", meta.IPAddress).Warn("Rejected payment webhook with invalid signature")
		return ErrInvalidSignature
	}

	var event payment.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return validationErrorf("malformed webhook body")
	}

	orderID := event.OrderID()
	paymentID := event.Payload.Payment.Entity.ID
	reference := paymentID
	if reference == "" {
		reference = orderID
	}
	key := event.Event + ":" + reference

	audit := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceGatewayWebhook).
		SetGatewayOrder(orderID).
		SetGatewayPayment(paymentID).
		SetRawBody(string(body)).
		SetIdempotencyKey(key).
		SetMetadata(meta.IPAddress, meta.UserAgent, meta.DeviceType, meta.Platform)

	log := s.logger.WithFields(logrus.Fields{
		"event":      event.Event,
		"order_id":   orderID,
		"payment_id": paymentID,
	})

	if s.audit != nil {
		duplicate, err := s.audit.CheckDuplicate(ctx, paymentID, models.PaymentEventWebhookReceived, key)
		if err != nil {
			log.WithError(err).Warn("Duplicate check failed, processing webhook anyway")
		} else if duplicate {
			s.logAudit(ctx, audit.MarkAsDuplicate().SetProcessingTime(start))
			log.Info("Duplicate payment webhook ignored")
			return nil
		}
	}

	b, err := s.bookings.GetByGatewayOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if b == nil {
		s.logAudit(ctx, audit.SetError("no booking for gateway order").SetProcessingTime(start))
		log.Warn("Payment webhook for unknown order")
		return nil
	}
	audit.SetBooking(b.ID, b.Payment.Mode)
	log = log.WithField("booking_id", b.ID)

	switch event.Event {
	case payment.EventPaymentCaptured, payment.EventOrderPaid:
		received := event.Payload.Payment.Entity.Amount
		if received == 0 {
			received = event.Payload.Order.Entity.AmountPaid
		}
		currency := event.Payload.Payment.Entity.Currency
		if currency == "" {
			currency = event.Payload.Order.Entity.Currency
		}

		if !audit.SetAmounts(payment.ToSubunits(b.Payment.Total), received, currency) {
			audit.EventType = models.PaymentEventReconciliationMismatch
			s.logAudit(ctx, audit.SetError("captured amount does not match booking total").SetProcessingTime(start))
			log.WithFields(logrus.Fields{
				"expected": payment.ToSubunits(b.Payment.Total),
				"received": received,
			}).Error("Payment amount mismatch, booking left unpaid")
			return nil
		}

		if b.Payment.Status != models.PaymentStatusSuccess {
			markPaid(b, paymentID, "")
			if err := s.bookings.Update(ctx, b); err != nil {
				// not audited so the gateway's redelivery is not treated as a duplicate
				log.WithError(err).Error("Failed to record webhook payment")
				return &PersistenceError{Op: "record payment", Err: err}
			}
			s.publish(ctx, events.TypeBookingPaymentVerified, b, "", "webhook")
			log.Info("Payment captured via webhook")
		}
		s.logAudit(ctx, audit.SetProcessingTime(start))
		if b.Status == models.BookingStatusCancelled {
			s.flagRefundOwed(ctx, b, models.PaymentSourceGatewayWebhook, paymentID)
			return nil
		}
		s.tryConfirm(ctx, b, "")

	case payment.EventPaymentFailed:
		if b.Payment.Status == models.PaymentStatusPending {
			b.Payment.Status = models.PaymentStatusDeclined
			if err := s.bookings.Update(ctx, b); err != nil {
				return &PersistenceError{Op: "record payment failure", Err: err}
			}
			log.Info("Payment failed via webhook")
		}
		s.logAudit(ctx, audit.SetProcessingTime(start))

	default:
		s.logAudit(ctx, audit.SetProcessingTime(start))
		log.Debug("Ignoring payment webhook event")
	}

	return nil
}

// ReconcilePendingPayments polls the gateway for online-pay bookings still
// pending after olderThan and records the ones that were paid
func (s *BookingSagaService) ReconcilePendingPayments(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	if s.payments == nil || !s.payments.IsConfigured() {
		return 0, nil
	}
	pending, err := s.bookings.ListAwaitingPayment(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	captured := 0
	for _, b := range pending {
		orderID := b.Payment.TransactionDetails.GatewayOrderID
		log := s.logger.WithFields(logrus.Fields{"booking_id": b.ID, "order_id": orderID})

		order, err := s.payments.FetchOrder(ctx, orderID)
		if err != nil {
			log.WithError(err).Warn("Failed to fetch gateway order")
			continue
		}
		if order.Status != payment.OrderStatusPaid {
			continue
		}

		paymentID := ""
		if payments, err := s.payments.FetchOrderPayments(ctx, orderID); err == nil {
			for _, p := range payments {
				if p.Status == payment.PaymentStatusCaptured {
					paymentID = p.ID
					break
				}
			}
		}

		audit := models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceGatewayAPI).
			SetBooking(b.ID, b.Payment.Mode).
			SetGatewayOrder(orderID).
			SetGatewayPayment(paymentID)
		if !audit.SetAmounts(payment.ToSubunits(b.Payment.Total), order.AmountPaid, order.Currency) {
			audit.EventType = models.PaymentEventReconciliationMismatch
			s.logAudit(ctx, audit)
			log.Error("Paid order amount does not match booking total")
			continue
		}

		markPaid(b, paymentID, "")
		if err := s.bookings.Update(ctx, b); err != nil {
			log.WithError(err).Error("Failed to record reconciled payment")
			continue
		}
		s.logAudit(ctx, audit)
		s.publish(ctx, events.TypeBookingPaymentVerified, b, "", "reconciliation")
		captured++

		if b.Status == models.BookingStatusCancelled {
			s.flagRefundOwed(ctx, b, models.PaymentSourceGatewayAPI, paymentID)
			continue
		}
		s.tryConfirm(ctx, b, "")
	}

	return captured, nil
}

// flagRefundOwed records a capture that arrived after the booking was
// cancelled. The booking stays cancelled and the gateway refund is manual.
func (s *BookingSagaService) flagRefundOwed(ctx context.Context, b *models.Booking, source models.PaymentEventSource, paymentID string) {
	const reason = "payment captured after cancellation"

	s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventRefundRequired, source).
		SetBooking(b.ID, b.Payment.Mode).
		SetGatewayOrder(b.Payment.TransactionDetails.GatewayOrderID).
		SetGatewayPayment(paymentID).
		SetError(reason))
	s.publish(ctx, events.TypeBookingRefundRequired, b, "", reason)

	s.logger.WithFields(logrus.Fields{
		"booking_id":         b.ID,
		"gateway_order_id":   b.Payment.TransactionDetails.GatewayOrderID,
		"gateway_payment_id": paymentID,
		"amount":             b.Payment.Total,
	}).Error("Payment captured for a cancelled booking, gateway refund must be issued manually")
}

func markPaid(b *models.Booking, paymentID, signature string) {
	now := time.Now().UTC()
	b.Payment.Status = models.PaymentStatusSuccess
	b.Payment.TransactionDetails.GatewayPaymentID = paymentID
	if signature != "" {
		b.Payment.TransactionDetails.Signature = signature
	}
	b.Payment.TransactionDetails.PaidAt = &now
}
