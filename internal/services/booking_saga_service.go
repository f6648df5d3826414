package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/internal/tracing"
	"github.com/tripdesk/booking-backend/pkg/payment"
	"github.com/tripdesk/booking-backend/pkg/supplier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingSagaDeps groups the collaborators of the booking saga. Publisher,
// Idempotency and Metrics are optional.
type BookingSagaDeps struct {
	Bookings    BookingStore
	Users       UserStore
	Supplier    SupplierCaller
	Payments    PaymentGateway
	Audit       PaymentAuditLogger
	Publisher   events.Publisher
	Idempotency IdempotencyStore
	Metrics     SagaMetrics
}

// BookingSagaService runs booking creation across the supplier, the payment
// gateway and the booking store, and drives every later lifecycle change.
//
// Create flow: hold with supplier → price → gateway order (onlinePay) →
// wallet debit (payByCompany) → persist → optional auto-confirm.
type BookingSagaService struct {
	bookings    BookingStore
	users       UserStore
	wallet      *WalletService
	supplier    SupplierCaller
	payments    PaymentGateway
	audit       PaymentAuditLogger
	publisher   events.Publisher
	idempotency IdempotencyStore
	metrics     SagaMetrics
	config      config.BookingConfig
	logger      *logrus.Logger
}

// NewBookingSagaService creates a new booking saga service
func NewBookingSagaService(deps BookingSagaDeps, cfg config.BookingConfig, logger *logrus.Logger) *BookingSagaService {
	s := &BookingSagaService{
		bookings:    deps.Bookings,
		users:       deps.Users,
		wallet:      NewWalletService(deps.Users, logger),
		supplier:    deps.Supplier,
		payments:    deps.Payments,
		audit:       deps.Audit,
		publisher:   deps.Publisher,
		idempotency: deps.Idempotency,
		metrics:     deps.Metrics,
		config:      cfg,
		logger:      logger,
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.idempotency == nil {
		s.idempotency = NewMemoryIdempotencyStore(24 * time.Hour)
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Wallet returns the wallet service sharing the saga's user store
func (s *BookingSagaService) Wallet() *WalletService {
	return s.wallet
}

// ============================================================================
// CREATE
// ============================================================================

// CreateHotelBooking blocks rooms with the supplier and records the booking
func (s *BookingSagaService) CreateHotelBooking(ctx context.Context, actorID, idempotencyKey string, req *models.CreateHotelBookingRequest) (*models.CreateBookingResult, error) {
	if err := s.precheck(req, req.PaymentMode); err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, actorID, idempotencyKey, func(ctx context.Context, actor *models.User, bookingID string) (*models.CreateBookingResult, error) {
		blockReq := models.HotelBlockRoomRequest{
			EndUserIP:         req.EndUserIP,
			SearchTokenID:     req.SearchTokenID,
			TraceID:           req.TraceID,
			ResultIndex:       req.ResultIndex,
			HotelCode:         req.HotelCode,
			HotelName:         req.HotelName,
			GuestNationality:  req.GuestNationality,
			NoOfRooms:         req.NoOfRooms,
			ClientReferenceNo: bookingID,
			IsVoucherBooking:  req.IsVoucherBooking,
			HotelRoomsDetails: req.HotelRoomsDetails,
		}

		var block models.HotelBlockRoomResult
		if res := s.supplier.Call(ctx, supplier.EndpointHotelBlockRoom, blockReq, &block); !res.OK {
			s.metrics.SagaFailed(models.BookingTypeHotel, "hold")
			return nil, newSupplierError(supplier.EndpointHotelBlockRoom, res.Err)
		}

		price, err := PriceHotel(req.HotelRoomsDetails, block)
		if err != nil {
			s.metrics.SagaFailed(models.BookingTypeHotel, "price")
			return nil, err
		}

		return s.settle(ctx, sagaInput{
			vertical:  models.BookingTypeHotel,
			actor:     actor,
			bookingID: bookingID,
			request:   &req.BookingRequest,
			price:     price,
			variant: &models.BdsdHotelBooked{
				BlockRequest: blockReq,
				BlockResult:  block,
				CheckIn:      req.CheckIn,
				CheckOut:     req.CheckOut,
			},
		})
	})
}

// CreateBusBooking blocks seats with the supplier and records the booking
func (s *BookingSagaService) CreateBusBooking(ctx context.Context, actorID, idempotencyKey string, req *models.CreateBusBookingRequest) (*models.CreateBookingResult, error) {
	if err := s.precheck(req, req.PaymentMode); err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, actorID, idempotencyKey, func(ctx context.Context, actor *models.User, bookingID string) (*models.CreateBookingResult, error) {
		blockReq := models.BusBlockSeatRequest{
			EndUserIP:       req.EndUserIP,
			SearchTokenID:   req.SearchTokenID,
			TraceID:         req.TraceID,
			ResultIndex:     req.ResultIndex,
			BoardingPointID: req.BoardingPointID,
			DroppingPointID: req.DroppingPointID,
			Passenger:       req.Passengers,
		}

		var block models.BusBlockSeatResult
		if res := s.supplier.Call(ctx, supplier.EndpointBusBlockSeat, blockReq, &block); !res.OK {
			s.metrics.SagaFailed(models.BookingTypeBus, "hold")
			return nil, newSupplierError(supplier.EndpointBusBlockSeat, res.Err)
		}

		price, err := PriceBus(req.Passengers, block)
		if err != nil {
			s.metrics.SagaFailed(models.BookingTypeBus, "price")
			return nil, err
		}

		return s.settle(ctx, sagaInput{
			vertical:  models.BookingTypeBus,
			actor:     actor,
			bookingID: bookingID,
			request:   &req.BookingRequest,
			price:     price,
			variant:   &models.BusBooked{BlockRequest: blockReq, BlockResult: block},
		})
	})
}

// CreateFlightBooking re-quotes each leg, resolves the selected ancillaries
// and records the booking. Tickets are issued on confirmation.
func (s *BookingSagaService) CreateFlightBooking(ctx context.Context, actorID, idempotencyKey string, req *models.CreateFlightBookingRequest) (*models.CreateBookingResult, error) {
	if err := s.precheck(req, req.PaymentMode); err != nil {
		return nil, err
	}

	return s.runIdempotent(ctx, actorID, idempotencyKey, func(ctx context.Context, actor *models.User, bookingID string) (*models.CreateBookingResult, error) {
		outbound, outboundPrice, err := s.quoteFlightLeg(ctx, req, req.Outbound)
		if err != nil {
			return nil, err
		}
		priced := []PricedLeg{outboundPrice}

		variant := &models.FlightBooked{
			EndUserIP:     req.EndUserIP,
			SearchTokenID: req.SearchTokenID,
			Passengers:    req.Passengers,
			Outbound:      outbound,
		}

		if req.Return != nil {
			ret, retPrice, err := s.quoteFlightLeg(ctx, req, *req.Return)
			if err != nil {
				return nil, err
			}
			variant.Return = &ret
			priced = append(priced, retPrice)
		}

		return s.settle(ctx, sagaInput{
			vertical:  models.BookingTypeFlight,
			actor:     actor,
			bookingID: bookingID,
			request:   &req.BookingRequest,
			price:     PriceFlight(priced...),
			variant:   variant,
		})
	})
}

func (s *BookingSagaService) quoteFlightLeg(ctx context.Context, req *models.CreateFlightBookingRequest, selection models.FlightLegSelection) (models.FlightLeg, PricedLeg, error) {
	quoteReq := models.FlightFareQuoteRequest{
		EndUserIP:     req.EndUserIP,
		SearchTokenID: req.SearchTokenID,
		TraceID:       req.TraceID,
		ResultIndex:   selection.ResultIndex,
	}

	var quote models.FlightFareQuoteResult
	if res := s.supplier.Call(ctx, supplier.EndpointFlightFareQuote, quoteReq, &quote); !res.OK {
		s.metrics.SagaFailed(models.BookingTypeFlight, "hold")
		return models.FlightLeg{}, PricedLeg{}, newSupplierError(supplier.EndpointFlightFareQuote, res.Err)
	}

	var ssr models.FlightSSRResult
	if selection.SeatCode != "" || selection.BaggageCode != "" || len(selection.Meals) > 0 {
		ssrReq := models.FlightSSRRequest(quoteReq)
		if res := s.supplier.Call(ctx, supplier.EndpointFlightSSR, ssrReq, &ssr); !res.OK {
			s.metrics.SagaFailed(models.BookingTypeFlight, "hold")
			return models.FlightLeg{}, PricedLeg{}, newSupplierError(supplier.EndpointFlightSSR, res.Err)
		}
	}

	priced, err := PriceFlightLeg(selection, quote, ssr)
	if err != nil {
		s.metrics.SagaFailed(models.BookingTypeFlight, "price")
		return models.FlightLeg{}, PricedLeg{}, err
	}

	traceID := quote.TraceID
	if traceID == "" {
		traceID = req.TraceID
	}

	return models.FlightLeg{
		ResultIndex: selection.ResultIndex,
		TraceID:     traceID,
		IsLCC:       quote.Results.IsLCC,
		FareQuote:   quote,
		Seat:        priced.Seat,
		Meals:       priced.Meals,
		Baggage:     priced.Baggage,
		Total:       roundUnits(priced.Total),
	}, priced, nil
}

// precheck runs the checks that must pass before any supplier call
func (s *BookingSagaService) precheck(req interface{ Validate() error }, mode models.PaymentMode) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if mode == models.PaymentModeOnlinePay && (!s.config.OnlinePayment || s.payments == nil || !s.payments.IsConfigured()) {
		return ErrPaymentUnavailable
	}
	return nil
}

// createStep is the vertical-specific part of a create: hold, price, settle
type createStep func(ctx context.Context, actor *models.User, bookingID string) (*models.CreateBookingResult, error)

// runIdempotent resolves the actor and runs step at most once per
// (actor, Idempotency-Key). Once the actor is known the request context's
// cancellation is dropped so a disconnecting client cannot abandon the saga
// between side effects.
func (s *BookingSagaService) runIdempotent(ctx context.Context, actorID, key string, step createStep) (*models.CreateBookingResult, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	bookingID := uuid.NewString()
	ctx, span := tracing.StartSpan(ctx, "booking.create",
		attribute.String("booking.id", bookingID),
		attribute.String("actor.role", string(actor.UserRole)),
	)
	defer span.End()

	if key == "" {
		result, err := step(ctx, actor, bookingID)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}

	scoped := actor.ID + ":" + key
	existing, err := s.idempotency.Begin(ctx, scoped)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		span.SetAttributes(attribute.Bool("idempotent.replay", true))
		return s.replay(ctx, actor, existing)
	}

	result, err := step(ctx, actor, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if relErr := s.idempotency.Release(ctx, scoped); relErr != nil {
			s.logger.WithError(relErr).WithField("idempotency_key", scoped).Warn("Failed to release idempotency key")
		}
		return nil, err
	}

	if err := s.idempotency.Complete(ctx, scoped, result.BookingID); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", scoped).Warn("Failed to store idempotency result")
	}
	return result, nil
}

// replay rebuilds the create result of an already processed request
func (s *BookingSagaService) replay(ctx context.Context, actor *models.User, bookingID string) (*models.CreateBookingResult, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}

	result := &models.CreateBookingResult{BookingID: b.ID, User: actor}
	if orderID := b.Payment.TransactionDetails.GatewayOrderID; orderID != "" {
		result.Order = &models.PaymentOrder{
			ID:       orderID,
			Amount:   b.Payment.Total,
			Currency: s.payments.Currency(),
			Receipt:  b.ID,
			Status:   payment.OrderStatusCreated,
		}
	}
	return result, nil
}

// sagaInput is everything settle needs after the supplier hold succeeded
type sagaInput struct {
	vertical  models.BookingType
	actor     *models.User
	bookingID string
	request   *models.BookingRequest
	price     Price
	variant   models.BookingVariant
}

// settle creates the gateway order, applies the payment policy, debits the
// wallet and persists the booking
func (s *BookingSagaService) settle(ctx context.Context, in sagaInput) (*models.CreateBookingResult, error) {
	mode := in.request.PaymentMode

	var order *payment.Order
	if mode == models.PaymentModeOnlinePay {
		var err error
		order, err = s.createGatewayOrder(ctx, in)
		if err != nil {
			s.metrics.SagaFailed(in.vertical, "order")
			return nil, err
		}
	}

	decision, err := ResolvePaymentPolicy(mode, in.actor)
	if err != nil {
		s.metrics.SagaFailed(in.vertical, "policy")
		return nil, err
	}

	details := models.TransactionDetails{}
	if order != nil {
		details.GatewayOrderID = order.ID
	}

	if decision.WalletOwnerID != "" && in.price.Total > 0 {
		if err := s.wallet.Reserve(ctx, decision.WalletOwnerID, in.price.Total, in.bookingID); err != nil {
			s.metrics.SagaFailed(in.vertical, "wallet")
			if errors.Is(err, models.ErrUserNotFound) {
				return nil, ErrNoCompany
			}
			return nil, err
		}
		details.WalletUserID = decision.WalletOwnerID
		details.WalletDebited = in.price.Total
	}

	b := &models.Booking{
		ID:             in.bookingID,
		BookingType:    in.vertical,
		BookingDetails: models.NewBookingDetails(decision.CompanyApproval, in.variant),
		Payment: models.Payment{
			Cost:               in.price.Cost,
			Fee:                in.price.Fee,
			Total:              in.price.Total,
			Mode:               mode,
			Status:             decision.PaymentStatus,
			TransactionDetails: details,
		},
		UserIDs:    travellerIDs(in.request.TravellerIDs, in.actor.ID),
		CreatedBy:  in.actor.ID,
		GSTDetails: in.request.GSTDetails,
	}
	b.TransitionTo(decision.BookingStatus, "booking created", in.actor.ID)

	if err := s.bookings.Create(ctx, b); err != nil {
		s.metrics.SagaFailed(in.vertical, "persist")
		s.compensate(ctx, b, err)
		return nil, &PersistenceError{Op: "create booking", Err: err}
	}

	s.metrics.BookingCreated(in.vertical, mode)
	s.publish(ctx, events.TypeBookingCreated, b, in.actor.ID, "")
	if details.WalletDebited > 0 {
		s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventWalletDebited, models.PaymentSourceSystem).
			SetBooking(b.ID, mode))
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":       b.ID,
		"booking_type":     b.BookingType,
		"status":           b.Status,
		"payment_mode":     mode,
		"total":            b.Payment.Total,
		"company_approval": b.BookingDetails.CompanyApproval,
	}).Info("Booking created")

	if s.config.AutoConfirm && mode != models.PaymentModeOnlinePay && IsActionable(b) == nil {
		if _, err := s.confirm(ctx, b, in.actor.ID); err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("Auto-confirm failed, booking left for reconciliation")
		}
	}

	user := in.actor
	if details.WalletUserID == in.actor.ID {
		if refreshed, err := s.users.GetByID(ctx, in.actor.ID); err == nil && refreshed != nil {
			user = refreshed
		}
	}

	return &models.CreateBookingResult{
		Order:     toPaymentOrder(order),
		BookingID: b.ID,
		User:      user,
	}, nil
}

func (s *BookingSagaService) createGatewayOrder(ctx context.Context, in sagaInput) (*payment.Order, error) {
	start := time.Now()
	notes := map[string]string{
		"bookingId":   in.bookingID,
		"bookingType": string(in.vertical),
	}

	order, err := s.payments.CreateOrder(ctx, in.price.Total, in.bookingID, notes)
	if err != nil {
		s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventOrderFailed, models.PaymentSourceGatewayAPI).
			SetBooking(in.bookingID, models.PaymentModeOnlinePay).
			SetError(err.Error()).
			SetProcessingTime(start))
		s.logger.WithError(err).WithField("booking_id", in.bookingID).Error("Failed to create payment order")
		return nil, fmt.Errorf("failed to create payment order: %w", err)
	}

	audit := models.NewPaymentAudit(models.PaymentEventOrderCreated, models.PaymentSourceGatewayAPI).
		SetBooking(in.bookingID, models.PaymentModeOnlinePay).
		SetGatewayOrder(order.ID).
		SetProcessingTime(start)
	audit.SetAmounts(payment.ToSubunits(in.price.Total), order.Amount, order.Currency)
	s.logAudit(ctx, audit)

	return order, nil
}

// compensate undoes the wallet debit of a booking that could not be
// persisted. The supplier hold has no release call and expires on its own.
func (s *BookingSagaService) compensate(ctx context.Context, b *models.Booking, cause error) {
	log := s.logger.WithError(cause).WithFields(logrus.Fields{
		"booking_id":   b.ID,
		"booking_type": b.BookingType,
	})

	details := b.Payment.TransactionDetails
	if details.WalletDebited > 0 {
		if err := s.wallet.Refund(ctx, details.WalletUserID, details.WalletDebited, b.ID); err != nil {
			log.WithField("refund_error", err.Error()).Error("CRITICAL: Failed to refund wallet after booking persistence failure")
		} else {
			s.metrics.WalletCompensated()
			s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventWalletRefunded, models.PaymentSourceSystem).
				SetBooking(b.ID, b.Payment.Mode).
				SetError(cause.Error()))
		}
	}

	log.Warn("Booking not persisted, supplier hold left to expire")
	s.publish(ctx, events.TypeBookingHoldOrphaned, b, b.CreatedBy, cause.Error())
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingSagaService) resolveActor(ctx context.Context, actorID string) (*models.User, error) {
	if actorID == "" {
		return nil, ErrActorNotFound
	}
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if actor == nil {
		return nil, ErrActorNotFound
	}
	return actor, nil
}

func (s *BookingSagaService) loadBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (s *BookingSagaService) publish(ctx context.Context, eventType string, b *models.Booking, actorID, reason string) {
	if err := s.publisher.Publish(ctx, events.NewBookingEvent(eventType, b, actorID, reason)); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": b.ID,
			"event_type": eventType,
		}).Warn("Failed to publish booking event")
	}
}

func (s *BookingSagaService) logAudit(ctx context.Context, audit *models.PaymentAudit) {
	if s.audit == nil {
		return
	}
	// The repository logs its own failures; audit never blocks a booking.
	_ = s.audit.Log(ctx, audit)
}

func toPaymentOrder(order *payment.Order) *models.PaymentOrder {
	if order == nil {
		return nil
	}
	return &models.PaymentOrder{
		ID:       order.ID,
		Amount:   order.AmountUnits(),
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Status:   order.Status,
	}
}

// travellerIDs returns the booking's traveller list, always including the creator
func travellerIDs(ids []string, creator string) []string {
	out := make([]string, 0, len(ids)+1)
	seen := map[string]bool{}
	for _, id := range append([]string{creator}, ids...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
