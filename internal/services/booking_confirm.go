package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

// Confirmation outcomes reported to SagaMetrics
const (
	confirmOutcomeConfirmed     = "confirmed"
	confirmOutcomeAlready       = "already_confirmed"
	confirmOutcomeInProgress    = "in_progress"
	confirmOutcomeRefused       = "refused"
	confirmOutcomeSupplierError = "supplier_error"
	confirmOutcomePersistError  = "persist_error"
)

// ConfirmBooking finalizes a booking with the supplier. Confirming an
// already confirmed booking returns it without calling the supplier.
func (s *BookingSagaService) ConfirmBooking(ctx context.Context, actorID, bookingID string) (*models.Booking, error) {
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

	return s.confirm(context.WithoutCancel(ctx), b, actor.ID)
}

// defaultConfirmLease applies when BookingConfig.ConfirmLease is unset
const defaultConfirmLease = 5 * time.Minute

// confirm is shared by the API, payment verification, company approval,
// auto-confirm and reconciliation. The booking is leased with a versioned
// write before the supplier is called, so only one caller books it.
func (s *BookingSagaService) confirm(ctx context.Context, b *models.Booking, by string) (*models.Booking, error) {
	if b.IsConfirmed() {
		s.metrics.ConfirmationAttempt(confirmOutcomeAlready)
		return b, nil
	}
	if err := IsActionable(b); err != nil {
		s.metrics.ConfirmationAttempt(confirmOutcomeRefused)
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"booking_id":   b.ID,
		"booking_type": b.BookingType,
	})

	if current, err := s.claimConfirmation(ctx, b); err != nil || current != nil {
		return current, err
	}

	result, details, err := s.bookWithSupplier(ctx, b)
	if err != nil {
		s.metrics.ConfirmationAttempt(confirmOutcomeSupplierError)
		s.releaseConfirmation(ctx, b)
		s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmFailed, models.PaymentSourceSystem).
			SetBooking(b.ID, b.Payment.Mode).
			SetError(err.Error()))
		log.WithError(err).Warn("Supplier confirmation failed")
		return nil, err
	}

	b.BookingDetails.RecordConfirmation(*result, details)
	b.TransitionTo(models.BookingStatusBooked, "confirmed with supplier", by)

	if err := s.bookings.Update(ctx, b); err != nil {
		s.metrics.ConfirmationAttempt(confirmOutcomePersistError)
		log.WithError(err).WithFields(logrus.Fields{
			"supplier_booking_id": result.BookingID,
			"confirmation_no":     result.ConfirmationNo,
		}).Error("CRITICAL: Supplier confirmed booking but the update failed")
		return nil, &PersistenceError{Op: "record confirmation", Err: err}
	}

	s.metrics.ConfirmationAttempt(confirmOutcomeConfirmed)
	s.publish(ctx, events.TypeBookingConfirmed, b, by, "")
	s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmed, models.PaymentSourceSystem).
		SetBooking(b.ID, b.Payment.Mode))

	log.WithFields(logrus.Fields{
		"supplier_booking_id": result.BookingID,
		"confirmation_no":     result.ConfirmationNo,
	}).Info("Booking confirmed with supplier")
	return b, nil
}

// claimConfirmation writes a confirmation lease onto b. A non-nil booking is
// returned when another caller already confirmed it. An expired lease left by
// a crashed caller is taken over.
func (s *BookingSagaService) claimConfirmation(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	now := time.Now()
	if b.BookingDetails.ConfirmationLeased(now) {
		s.metrics.ConfirmationAttempt(confirmOutcomeInProgress)
		return nil, ErrConfirmationInProgress
	}

	lease := s.config.ConfirmLease
	if lease <= 0 {
		lease = defaultConfirmLease
	}
	b.BookingDetails.LeaseConfirmation(now.Add(lease))

	err := s.bookings.Update(ctx, b)
	if err == nil {
		return nil, nil
	}
	b.BookingDetails.ReleaseConfirmation()

	if !errors.Is(err, models.ErrConcurrentUpdate) {
		s.metrics.ConfirmationAttempt(confirmOutcomePersistError)
		return nil, &PersistenceError{Op: "lease confirmation", Err: err}
	}

	current, getErr := s.bookings.GetByID(ctx, b.ID)
	if getErr == nil && current != nil && current.IsConfirmed() {
		s.metrics.ConfirmationAttempt(confirmOutcomeAlready)
		return current, nil
	}
	s.metrics.ConfirmationAttempt(confirmOutcomeInProgress)
	return nil, ErrConfirmationInProgress
}

// releaseConfirmation drops the lease after a failed supplier call so the
// next trigger can retry at once. If this write fails the lease expires.
func (s *BookingSagaService) releaseConfirmation(ctx context.Context, b *models.Booking) {
	b.BookingDetails.ReleaseConfirmation()
	if err := s.bookings.Update(ctx, b); err != nil {
		s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Failed to release confirmation lease")
	}
}

// tryConfirm confirms best-effort and returns the freshest known booking
func (s *BookingSagaService) tryConfirm(ctx context.Context, b *models.Booking, by string) *models.Booking {
	confirmed, err := s.confirm(ctx, b, by)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Confirmation deferred to reconciliation")
		return b
	}
	return confirmed
}

// bookWithSupplier issues the final book call for the populated variant and
// fetches the supplier booking document. A failed document fetch is logged
// and leaves details empty.
func (s *BookingSagaService) bookWithSupplier(ctx context.Context, b *models.Booking) (*models.SupplierBookResult, json.RawMessage, error) {
	switch v := b.BookingDetails.Variant().(type) {
	case *models.BdsdHotelBooked:
		return s.bookAndFetch(ctx, b.ID,
			supplier.EndpointHotelBook, v.BlockRequest,
			supplier.EndpointHotelGetBookingDetail, v.BlockRequest.EndUserIP, v.BlockRequest.SearchTokenID)

	case *models.BusBooked:
		return s.bookAndFetch(ctx, b.ID,
			supplier.EndpointBusBook, v.BlockRequest,
			supplier.EndpointBusGetBookingDetail, v.BlockRequest.EndUserIP, v.BlockRequest.SearchTokenID)

	case *models.FlightBooked:
		return s.ticketFlight(ctx, b, v)

	case *models.HotelBooked:
		return &models.SupplierBookResult{BookingRefNo: b.ID}, nil, nil

	case *models.OutsideHotelBooked:
		return &models.SupplierBookResult{BookingRefNo: b.ID, ConfirmationNo: v.ConfirmationNo}, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported booking variant %T", v)
	}
}

func (s *BookingSagaService) bookAndFetch(ctx context.Context, bookingID, bookEndpoint string, params interface{}, detailEndpoint, endUserIP, searchTokenID string) (*models.SupplierBookResult, json.RawMessage, error) {
	var result models.SupplierBookResult
	if res := s.supplier.Call(ctx, bookEndpoint, params, &result); !res.OK {
		return nil, nil, newSupplierError(bookEndpoint, res.Err)
	}

	details := s.fetchDetails(ctx, bookingID, detailEndpoint, models.SupplierBookingDetailRequest{
		EndUserIP:     endUserIP,
		SearchTokenID: searchTokenID,
		BookingID:     result.BookingID,
	})
	return &result, details, nil
}

func (s *BookingSagaService) fetchDetails(ctx context.Context, bookingID, endpoint string, req models.SupplierBookingDetailRequest) json.RawMessage {
	var details json.RawMessage
	if res := s.supplier.Call(ctx, endpoint, req, &details); !res.OK {
		entry := s.logger.WithFields(logrus.Fields{
			"booking_id":          bookingID,
			"supplier_booking_id": req.BookingID,
			"endpoint":            endpoint,
		})
		if res.Err != nil {
			entry = entry.WithField("error", res.Err.Message)
		}
		entry.Warn("Booked with supplier but booking detail fetch failed")
		return nil
	}
	return details
}

// ticketFlight tickets the outbound leg and then the return leg. A ticketed
// outbound leg is saved before the return leg is attempted so a retry never
// tickets it twice.
func (s *BookingSagaService) ticketFlight(ctx context.Context, b *models.Booking, v *models.FlightBooked) (*models.SupplierBookResult, json.RawMessage, error) {
	if v.BookingResult == nil {
		outbound, err := s.ticketLeg(ctx, v, v.Outbound)
		if err != nil {
			return nil, nil, err
		}
		v.BookingResult = outbound
	}

	if v.Return != nil && v.ReturnBookingResult == nil {
		ret, err := s.ticketLeg(ctx, v, *v.Return)
		if err != nil {
			if saveErr := s.bookings.Update(ctx, b); saveErr != nil {
				s.logger.WithError(saveErr).WithFields(logrus.Fields{
					"booking_id":          b.ID,
					"supplier_booking_id": v.BookingResult.BookingID,
				}).Error("CRITICAL: Outbound leg ticketed but could not be saved")
			}
			return nil, nil, err
		}
		v.ReturnBookingResult = ret
	}

	details := s.fetchDetails(ctx, b.ID, supplier.EndpointFlightGetBookingDetails, models.SupplierBookingDetailRequest{
		EndUserIP:     v.EndUserIP,
		SearchTokenID: v.SearchTokenID,
		BookingID:     v.BookingResult.BookingID,
		PNR:           v.BookingResult.PNR,
	})
	return v.BookingResult, details, nil
}

func (s *BookingSagaService) ticketLeg(ctx context.Context, v *models.FlightBooked, leg models.FlightLeg) (*models.SupplierBookResult, error) {
	req := models.FlightTicketRequest{
		EndUserIP:     v.EndUserIP,
		SearchTokenID: v.SearchTokenID,
		TraceID:       leg.TraceID,
		ResultIndex:   leg.ResultIndex,
		IsLCC:         leg.IsLCC,
		Passengers:    v.Passengers,
		MealDynamic:   leg.Meals,
	}
	if leg.Seat != nil {
		req.SeatDynamic = []models.SSROption{*leg.Seat}
	}
	if leg.Baggage != nil {
		req.Baggage = []models.SSROption{*leg.Baggage}
	}

	var result models.SupplierBookResult
	if res := s.supplier.Call(ctx, supplier.EndpointFlightTicket, req, &result); !res.OK {
		return nil, newSupplierError(supplier.EndpointFlightTicket, res.Err)
	}
	return &result, nil
}
