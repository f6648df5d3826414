package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

// ============================================================================
// CREATE
// ============================================================================

func TestCreateHotelBooking_OnlinePayCreatesOrder(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.stubHotelHold()

	result, err := h.saga.CreateHotelBooking(context.Background(), soloUserID, "", hotelRequest(models.PaymentModeOnlinePay))

	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.Equal(t, int64(4500), result.Order.Amount)
	assert.Equal(t, soloUserID, result.User.ID)

	b := h.bookings.only()
	require.NotNil(t, b)
	assert.Equal(t, result.BookingID, b.ID)
	assert.Equal(t, models.Payment{
		Cost:   4000,
		Fee:    400,
		Total:  4500,
		Mode:   models.PaymentModeOnlinePay,
		Status: models.PaymentStatusPending,
		TransactionDetails: models.TransactionDetails{
			GatewayOrderID: result.Order.ID,
		},
	}, b.Payment)
	assert.Equal(t, models.BookingStatusBooked, b.Status)
	assert.Equal(t, models.ApprovalApproved, b.BookingDetails.CompanyApproval)

	hotel, ok := b.BookingDetails.BdsdHotel()
	require.True(t, ok)
	assert.Equal(t, b.ID, hotel.BlockRequest.ClientReferenceNo)

	// online bookings wait for payment before the supplier book call
	assert.Zero(t, h.supplier.count(supplier.EndpointHotelBook))
	assert.Contains(t, h.audit.types(), models.PaymentEventOrderCreated)
	assert.Equal(t, []string{events.TypeBookingCreated}, h.publisher.types())
}

func TestCreateHotelBooking_InsufficientBalance(t *testing.T) {
	h := newSagaHarness(3000, autoConfirm())
	h.stubHotelHold()

	_, err := h.saga.CreateHotelBooking(context.Background(), employeeID, "", hotelRequest(models.PaymentModePayByCompany))

	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, "Insufficient balance", err.Error())
	assert.Zero(t, h.bookings.count())
	assert.Equal(t, int64(3000), h.users.balance(companyAdminID))
	assert.Equal(t, []string{"wallet"}, h.metrics.failedSteps)
}

func TestCreateBusBooking_EmployeeAwaitsApproval(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.stubBusHold("A1")
	h.stubBusBook()

	result, err := h.saga.CreateBusBooking(context.Background(), employeeID, "", busRequest(models.PaymentModePayByCompany, "A1"))

	require.NoError(t, err)
	assert.Nil(t, result.Order)

	b := h.bookings.only()
	require.NotNil(t, b)
	assert.Equal(t, models.BookingStatusPending, b.Status)
	assert.Equal(t, models.ApprovalPending, b.BookingDetails.CompanyApproval)
	assert.Equal(t, models.PaymentStatusPending, b.Payment.Status)
	assert.Equal(t, int64(2250), b.Payment.Total)
	assert.Equal(t, companyAdminID, b.Payment.TransactionDetails.WalletUserID)
	assert.Equal(t, int64(2250), b.Payment.TransactionDetails.WalletDebited)
	assert.Equal(t, int64(7750), h.users.balance(companyAdminID))

	// pending approval is never auto-confirmed
	assert.Zero(t, h.supplier.count(supplier.EndpointBusBook))
}

func TestCreateBusBooking_SupplierRefusesHold(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.supplier.fail(supplier.EndpointBusBlockSeat, &supplier.Error{Code: 2, Message: "Seat unavailable"})

	_, err := h.saga.CreateBusBooking(context.Background(), soloUserID, "", busRequest(models.PaymentModeOnlinePay, "A1"))

	var sErr *SupplierError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "Seat unavailable", sErr.Message)
	assert.False(t, sErr.Transport)
	assert.Zero(t, h.bookings.count())
	assert.Zero(t, h.gateway.orderCount())
}

func TestCreateBusBooking_SupplierUnreachable(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())

	_, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "", busRequest(models.PaymentModePayByCompany, "A1"))

	var sErr *SupplierError
	require.ErrorAs(t, err, &sErr)
	assert.True(t, sErr.Transport)
	assert.Equal(t, supplier.TransportErrorMessage, sErr.Message)
	assert.Zero(t, h.bookings.count())
	assert.Equal(t, int64(10000), h.users.balance(companyAdminID))
}

func TestCreateHotelBooking_HeldRoomMissingFromBlock(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.supplier.on(supplier.EndpointHotelBlockRoom, models.HotelBlockRoomResult{
		HotelRoomsDetails: []models.HotelRoomDetail{{RoomIndex: 7, Price: &models.HotelRoomPrice{PublishedPrice: 10}}},
	})

	_, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))

	assert.ErrorIs(t, err, ErrInvalidFareDetails)
	assert.Zero(t, h.bookings.count())
}

func TestCreate_ValidationRunsBeforeSupplier(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	req := busRequest(models.PaymentModePayAtHotel, "A1")

	_, err := h.saga.CreateBusBooking(context.Background(), soloUserID, "", req)

	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "paymentMode", vErr.Field)
	assert.Zero(t, h.supplier.total())
}

func TestCreate_UnknownActor(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())

	_, err := h.saga.CreateHotelBooking(context.Background(), "ghost", "", hotelRequest(models.PaymentModePayAtHotel))

	assert.ErrorIs(t, err, ErrActorNotFound)
	assert.Zero(t, h.supplier.total())
}

func TestCreate_OnlinePayDisabled(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.gateway.configured = false

	_, err := h.saga.CreateHotelBooking(context.Background(), soloUserID, "", hotelRequest(models.PaymentModeOnlinePay))

	assert.ErrorIs(t, err, ErrPaymentUnavailable)
	assert.Zero(t, h.supplier.total())
}

func TestCreate_PayByCompanyWithoutCompany(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.stubHotelHold()

	_, err := h.saga.CreateHotelBooking(context.Background(), soloUserID, "", hotelRequest(models.PaymentModePayByCompany))

	assert.ErrorIs(t, err, ErrNoCompany)
	assert.Zero(t, h.bookings.count())
}

func TestCreateHotelBooking_AutoConfirmsCompanyAdmin(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.stubHotelHold()
	h.stubHotelBook()

	result, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))

	require.NoError(t, err)
	assert.Equal(t, int64(5500), result.User.Wallet, "wallet owner sees the debited balance")

	b := h.bookings.only()
	require.NotNil(t, b)
	assert.True(t, b.IsConfirmed())
	assert.Equal(t, "CNF-9001", b.BookingDetails.Confirmation().ConfirmationNo)
	assert.NotNil(t, b.BookingDetails.ConfirmedAt())
	assert.Equal(t, models.PaymentStatusSuccess, b.Payment.Status)
	assert.Equal(t, []string{events.TypeBookingCreated, events.TypeBookingConfirmed}, h.publisher.types())
}

func TestCreate_PersistFailureRefundsWallet(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.stubHotelHold()
	h.bookings.createErr = errors.New("connection reset")

	_, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))

	var pErr *PersistenceError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, int64(10000), h.users.balance(companyAdminID))
	assert.Equal(t, 1, h.metrics.compensated)
	assert.Contains(t, h.publisher.types(), events.TypeBookingHoldOrphaned)
	assert.Contains(t, h.audit.types(), models.PaymentEventWalletRefunded)
}

func TestCreate_IdempotencyKeyReplaysResult(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubBusHold("A1")

	first, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "key-1", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)
	second, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "key-1", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)

	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Equal(t, 1, h.supplier.count(supplier.EndpointBusBlockSeat))
	assert.Equal(t, 1, h.bookings.count())
	assert.Equal(t, int64(7750), h.users.balance(companyAdminID))
}

func TestCreate_IdempotencyKeyScopedPerActor(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubBusHold("A1")

	first, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "key-1", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)
	second, err := h.saga.CreateBusBooking(context.Background(), otherAdminID, "key-1", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)

	assert.NotEqual(t, first.BookingID, second.BookingID)
}

func TestCreate_FailedAttemptReleasesIdempotencyKey(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.supplier.fail(supplier.EndpointBusBlockSeat, &supplier.Error{Code: 2, Message: "Seat unavailable"})
	h.stubBusHold("A1")

	_, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "key-1", busRequest(models.PaymentModePayByCompany, "A1"))
	require.Error(t, err)

	result, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "key-1", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.BookingID)
}

func TestWalletNeverGoesNegative_ConcurrentBookings(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubBusHold("A1")

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "", busRequest(models.PaymentModePayByCompany, "A1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, refused := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 4, succeeded)
	assert.Equal(t, 6, refused)
	assert.Equal(t, int64(1000), h.users.balance(companyAdminID))
	assert.Equal(t, 4, h.bookings.count())
}

func TestCreateFlightBooking_ReturnLegTicketedOnRetry(t *testing.T) {
	h := newSagaHarness(50000, autoConfirm())
	h.supplier.on(supplier.EndpointFlightFareQuote, flightQuote(5000, 4200))
	h.supplier.on(supplier.EndpointFlightFareQuote, flightQuote(4800, 4000))
	h.supplier.on(supplier.EndpointFlightTicket, models.SupplierBookResult{BookingID: 1, PNR: "OUT123"})
	h.supplier.fail(supplier.EndpointFlightTicket, &supplier.Error{Code: 3, Message: "Fare expired"})
	h.supplier.on(supplier.EndpointFlightTicket, models.SupplierBookResult{BookingID: 3, PNR: "RET456"})

	req := &models.CreateFlightBookingRequest{
		BookingRequest: models.BookingRequest{PaymentMode: models.PaymentModePayByCompany, SearchTokenID: "token-3", EndUserIP: "203.0.113.7"},
		TraceID:        "trace-f",
		Passengers:     []models.FlightPassenger{{Title: "Mr", FirstName: "Sam", LastName: "Roe", IsLeadPax: true}},
		Outbound:       models.FlightLegSelection{ResultIndex: "OB1"},
		Return:         &models.FlightLegSelection{ResultIndex: "IB1"},
	}

	result, err := h.saga.CreateFlightBooking(context.Background(), companyAdminID, "", req)
	require.NoError(t, err, "confirmation failures after persisting do not fail the create")

	b, err := h.bookings.GetByID(context.Background(), result.BookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), b.Payment.Total)
	assert.False(t, b.IsConfirmed())
	flight, ok := b.BookingDetails.Flight()
	require.True(t, ok)
	require.NotNil(t, flight.BookingResult, "outbound ticket is saved")
	assert.Nil(t, flight.ReturnBookingResult)
	assert.Equal(t, 2, h.supplier.count(supplier.EndpointFlightTicket))

	confirmed, err := h.saga.ConfirmBooking(context.Background(), companyAdminID, b.ID)

	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed())
	flight, _ = confirmed.BookingDetails.Flight()
	assert.Equal(t, "OUT123", flight.BookingResult.PNR)
	assert.Equal(t, "RET456", flight.ReturnBookingResult.PNR)
	assert.Equal(t, 3, h.supplier.count(supplier.EndpointFlightTicket))
}

// ============================================================================
// CONFIRM
// ============================================================================

func TestConfirmBooking_AlreadyConfirmedSkipsSupplier(t *testing.T) {
	h := newSagaHarness(10000, autoConfirm())
	h.stubHotelHold()
	h.stubHotelBook()
	result, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))
	require.NoError(t, err)
	calls := h.supplier.total()

	b, err := h.saga.ConfirmBooking(context.Background(), companyAdminID, result.BookingID)

	require.NoError(t, err)
	assert.True(t, b.IsConfirmed())
	assert.Equal(t, calls, h.supplier.total())
	assert.Equal(t, 1, h.supplier.count(supplier.EndpointHotelBook))
}

func TestConfirmBooking_DetailFetchFailureStillConfirms(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubBusHold("A1")
	h.supplier.on(supplier.EndpointBusBook, models.SupplierBookResult{BookingID: 7001, TicketNo: "TKT-7001"})
	result, err := h.saga.CreateBusBooking(context.Background(), companyAdminID, "", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)

	b, err := h.saga.ConfirmBooking(context.Background(), companyAdminID, result.BookingID)

	require.NoError(t, err)
	assert.True(t, b.IsConfirmed())
	bus, _ := b.BookingDetails.Bus()
	assert.Empty(t, bus.OtherDetails)
	assert.Equal(t, 1, h.supplier.count(supplier.EndpointBusGetBookingDetail))
}

func TestConfirmBooking_RefusedStates(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubBusHold("A1")
	h.stubHotelHold()

	pending, err := h.saga.CreateBusBooking(context.Background(), employeeID, "", busRequest(models.PaymentModePayByCompany, "A1"))
	require.NoError(t, err)
	unpaid, err := h.saga.CreateHotelBooking(context.Background(), soloUserID, "", hotelRequest(models.PaymentModeOnlinePay))
	require.NoError(t, err)

	_, err = h.saga.ConfirmBooking(context.Background(), employeeID, pending.BookingID)
	assert.ErrorIs(t, err, ErrApprovalRequired)

	_, err = h.saga.ConfirmBooking(context.Background(), soloUserID, unpaid.BookingID)
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	assert.Zero(t, h.supplier.count(supplier.EndpointBusBook))
	assert.Zero(t, h.supplier.count(supplier.EndpointHotelBook))
}

func TestConfirmBooking_SupplierFailureLeavesBookingUnconfirmed(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubHotelHold()
	h.supplier.fail(supplier.EndpointHotelBook, &supplier.Error{Code: 5, Message: "Room no longer available"})
	result, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))
	require.NoError(t, err)

	_, err = h.saga.ConfirmBooking(context.Background(), companyAdminID, result.BookingID)

	var sErr *SupplierError
	require.ErrorAs(t, err, &sErr)
	b := h.bookings.only()
	assert.False(t, b.IsConfirmed())
	assert.False(t, b.BookingDetails.ConfirmationLeased(time.Now()), "lease is released for the next retry")
	assert.Contains(t, h.audit.types(), models.PaymentEventBookingConfirmFailed)
}

func TestConfirm_StaleCopiesBookWithSupplierOnce(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubHotelHold()
	h.stubHotelBook()
	result, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))
	require.NoError(t, err)

	// e.g. the webhook and the cron both loaded the booking before either confirmed it
	first, err := h.bookings.GetByID(context.Background(), result.BookingID)
	require.NoError(t, err)
	second, err := h.bookings.GetByID(context.Background(), result.BookingID)
	require.NoError(t, err)

	b1, err1 := h.saga.confirm(context.Background(), first, companyAdminID)
	b2, err2 := h.saga.confirm(context.Background(), second, companyAdminID)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, b1.IsConfirmed())
	assert.True(t, b2.IsConfirmed())
	assert.Equal(t, 1, h.supplier.count(supplier.EndpointHotelBook))
	assert.Equal(t, 1, h.publisher.count(events.TypeBookingConfirmed))
}

func TestConfirmBooking_LiveLeaseBlocksOtherCallers(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubHotelHold()
	h.stubHotelBook()
	result, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))
	require.NoError(t, err)

	held := h.bookings.only()
	held.BookingDetails.LeaseConfirmation(time.Now().Add(time.Minute))
	require.NoError(t, h.bookings.Update(context.Background(), held))

	_, err = h.saga.ConfirmBooking(context.Background(), companyAdminID, result.BookingID)
	assert.ErrorIs(t, err, ErrConfirmationInProgress)
	_, err = h.saga.CancelBooking(context.Background(), companyAdminID, result.BookingID, nil)
	assert.ErrorIs(t, err, ErrConfirmationInProgress)
	assert.Zero(t, h.supplier.count(supplier.EndpointHotelBook))

	// a lease left behind by a crashed caller is taken over once it expires
	held = h.bookings.only()
	held.BookingDetails.LeaseConfirmation(time.Now().Add(-time.Second))
	require.NoError(t, h.bookings.Update(context.Background(), held))

	b, err := h.saga.ConfirmBooking(context.Background(), companyAdminID, result.BookingID)
	require.NoError(t, err)
	assert.True(t, b.IsConfirmed())
	assert.False(t, b.BookingDetails.ConfirmationLeased(time.Now()))
	assert.Equal(t, 1, h.supplier.count(supplier.EndpointHotelBook))
}

func TestConfirmBooking_StrangerNotPermitted(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubHotelHold()
	result, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))
	require.NoError(t, err)

	_, err = h.saga.ConfirmBooking(context.Background(), otherAdminID, result.BookingID)
	assert.ErrorIs(t, err, ErrNotPermitted)

	_, err = h.saga.ConfirmBooking(context.Background(), companyAdminID, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

// ============================================================================
// RECONCILIATION
// ============================================================================

func TestReconcilePendingConfirmations(t *testing.T) {
	h := newSagaHarness(10000, manualConfirm())
	h.stubHotelHold()
	h.stubHotelBook()
	_, err := h.saga.CreateHotelBooking(context.Background(), companyAdminID, "", hotelRequest(models.PaymentModePayByCompany))
	require.NoError(t, err)

	confirmed, failed, err := h.saga.ReconcilePendingConfirmations(context.Background(), farFuture(), 10)

	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
	assert.Zero(t, failed)
	assert.True(t, h.bookings.only().IsConfirmed())

	confirmed, _, err = h.saga.ReconcilePendingConfirmations(context.Background(), farFuture(), 10)
	require.NoError(t, err)
	assert.Zero(t, confirmed)
}
