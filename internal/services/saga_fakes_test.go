package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/config"
	"github.com/tripdesk/booking-backend/internal/events"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/pkg/payment"
	"github.com/tripdesk/booking-backend/pkg/supplier"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ============================================================================
// BOOKING STORE
// ============================================================================

// fakeBookingStore keeps JSON copies so callers never share memory with the store
type fakeBookingStore struct {
	mu        sync.Mutex
	docs      map[string][]byte
	versions  map[string]int64
	createErr error
	updateErr error
	updates   int
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{docs: map[string][]byte{}, versions: map[string]int64{}}
}

func (f *fakeBookingStore) save(b *models.Booking) {
	data, err := json.Marshal(b)
	if err != nil {
		panic(err)
	}
	f.docs[b.ID] = data
	f.versions[b.ID] = b.Version
}

func (f *fakeBookingStore) load(id string) *models.Booking {
	data, ok := f.docs[id]
	if !ok {
		return nil
	}
	var b models.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		panic(err)
	}
	b.Version = f.versions[id]
	return &b
}

func (f *fakeBookingStore) Create(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if err := b.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.BookingDate = now
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	f.save(b)
	return nil
}

func (f *fakeBookingStore) Update(_ context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if err := b.Validate(); err != nil {
		return err
	}
	current, ok := f.versions[b.ID]
	if !ok || current != b.Version {
		return models.ErrConcurrentUpdate
	}
	b.Version++
	f.updates++
	f.save(b)
	return nil
}

func (f *fakeBookingStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(id), nil
}

func (f *fakeBookingStore) GetByGatewayOrderID(_ context.Context, orderID string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.docs {
		b := f.load(id)
		if b.Payment.TransactionDetails.GatewayOrderID == orderID {
			return b, nil
		}
	}
	return nil, nil
}

func (f *fakeBookingStore) all() []*models.Booking {
	out := make([]*models.Booking, 0, len(f.docs))
	for id := range f.docs {
		out = append(out, f.load(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (f *fakeBookingStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.all() {
		if b.CreatedBy == userID || slices.Contains(b.UserIDs, userID) {
			out = append(out, b)
		}
	}
	if offset >= len(out) {
		return []*models.Booking{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBookingStore) ListAwaitingConfirmation(_ context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.all() {
		if b.Status == models.BookingStatusBooked && b.BookingDetails.ConfirmedAt() == nil &&
			IsActionable(b) == nil && b.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookingStore) ListAwaitingPayment(_ context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.all() {
		if b.Status == models.BookingStatusBooked && b.Payment.Mode == models.PaymentModeOnlinePay &&
			b.Payment.Status == models.PaymentStatusPending && b.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *fakeBookingStore) only() *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.docs {
		return f.load(id)
	}
	return nil
}

// ============================================================================
// USER STORE
// ============================================================================

// fakeUserStore applies the same conditional debit as the real stores
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	txns  []*models.WalletTransaction
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	f := &fakeUserStore{users: map[string]*models.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserStore) DebitWallet(_ context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, models.ErrUserNotFound
	}
	if u.Wallet < amount {
		return 0, models.ErrInsufficientBalance
	}
	u.Wallet -= amount
	f.txns = append(f.txns, &models.WalletTransaction{UserID: userID, BookingID: bookingID, Amount: -amount, BalanceAfter: u.Wallet, Reason: reason})
	return u.Wallet, nil
}

func (f *fakeUserStore) CreditWallet(_ context.Context, userID string, amount int64, bookingID *string, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, models.ErrUserNotFound
	}
	u.Wallet += amount
	f.txns = append(f.txns, &models.WalletTransaction{UserID: userID, BookingID: bookingID, Amount: amount, BalanceAfter: u.Wallet, Reason: reason})
	return u.Wallet, nil
}

func (f *fakeUserStore) ListWalletTransactions(_ context.Context, userID string, limit int) ([]*models.WalletTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WalletTransaction
	for i := len(f.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.txns[i].UserID == userID {
			out = append(out, f.txns[i])
		}
	}
	return out, nil
}

func (f *fakeUserStore) balance(userID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].Wallet
}

// ============================================================================
// SUPPLIER
// ============================================================================

type supplierReply struct {
	result interface{}
	err    *supplier.Error
}

// fakeSupplier answers per endpoint from a queue; the last reply repeats.
// Endpoints without replies fail like an unreachable supplier.
type fakeSupplier struct {
	mu      sync.Mutex
	replies map[string][]supplierReply
	calls   []string
	params  map[string][]interface{}
}

func newFakeSupplier() *fakeSupplier {
	return &fakeSupplier{replies: map[string][]supplierReply{}, params: map[string][]interface{}{}}
}

func (f *fakeSupplier) on(endpoint string, result interface{}) *fakeSupplier {
	f.replies[endpoint] = append(f.replies[endpoint], supplierReply{result: result})
	return f
}

func (f *fakeSupplier) fail(endpoint string, err *supplier.Error) *fakeSupplier {
	f.replies[endpoint] = append(f.replies[endpoint], supplierReply{err: err})
	return f
}

func (f *fakeSupplier) Call(_ context.Context, endpoint string, params interface{}, out interface{}) supplier.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpoint)
	f.params[endpoint] = append(f.params[endpoint], params)

	queue := f.replies[endpoint]
	if len(queue) == 0 {
		return supplier.Result{Err: &supplier.Error{Code: supplier.TransportErrorCode, Message: supplier.TransportErrorMessage, Transport: true}}
	}
	reply := queue[0]
	if len(queue) > 1 {
		f.replies[endpoint] = queue[1:]
	}
	if reply.err != nil {
		return supplier.Result{Err: reply.err}
	}

	data, err := json.Marshal(reply.result)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return supplier.Result{OK: true}
}

func (f *fakeSupplier) count(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == endpoint {
			n++
		}
	}
	return n
}

func (f *fakeSupplier) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// ============================================================================
// PAYMENT GATEWAY / AUDIT / EVENTS
// ============================================================================

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "hook_secret"
)

type fakeGateway struct {
	mu         sync.Mutex
	configured bool
	createErr  error
	orders     []*payment.Order
	fetched    map[string]*payment.Order
	payments   map[string][]payment.Payment
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{configured: true, fetched: map[string]*payment.Order{}, payments: map[string][]payment.Payment{}}
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }
func (g *fakeGateway) Currency() string   { return "INR" }

func (g *fakeGateway) CreateOrder(_ context.Context, amount int64, receipt string, _ map[string]string) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	order := &payment.Order{
		ID:       "order_" + receipt[:8],
		Amount:   payment.ToSubunits(amount),
		Currency: "INR",
		Receipt:  receipt,
		Status:   payment.OrderStatusCreated,
	}
	g.orders = append(g.orders, order)
	return order, nil
}

func (g *fakeGateway) FetchOrder(_ context.Context, orderID string) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.fetched[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	return order, nil
}

func (g *fakeGateway) FetchOrderPayments(_ context.Context, orderID string) ([]payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payments[orderID], nil
}

func (g *fakeGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return payment.Sign([]byte(orderID+"|"+paymentID), testKeySecret) == signature
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return payment.Sign(body, testWebhookSecret) == signature
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
}

func (a *fakeAudit) Log(_ context.Context, audit *models.PaymentAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, audit)
	return nil
}

func (a *fakeAudit) CheckDuplicate(_ context.Context, _ string, eventType models.PaymentEventType, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.EventType == eventType && e.IdempotencyKey != nil && *e.IdempotencyKey == key && !e.IsDuplicate {
			return true, nil
		}
	}
	return false, nil
}

func (a *fakeAudit) types() []models.PaymentEventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.PaymentEventType, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.EventType)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type countingMetrics struct {
	mu          sync.Mutex
	created     int
	failedSteps []string
	confirms    []string
	compensated int
}

func (m *countingMetrics) BookingCreated(models.BookingType, models.PaymentMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *countingMetrics) SagaFailed(_ models.BookingType, step string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedSteps = append(m.failedSteps, step)
}

func (m *countingMetrics) ConfirmationAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirms = append(m.confirms, outcome)
}

func (m *countingMetrics) WalletCompensated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensated++
}

// ============================================================================
// HARNESS
// ============================================================================

const (
	companyAdminID = "cadmin-1"
	employeeID     = "emp-1"
	hrID           = "hr-1"
	superAdminID   = "sadmin-1"
	soloUserID     = "user-1"
	otherAdminID   = "cadmin-2"
)

type sagaHarness struct {
	saga      *BookingSagaService
	bookings  *fakeBookingStore
	users     *fakeUserStore
	supplier  *fakeSupplier
	gateway   *fakeGateway
	audit     *fakeAudit
	publisher *fakePublisher
	metrics   *countingMetrics
}

func newSagaHarness(companyWallet int64, cfg config.BookingConfig) *sagaHarness {
	company := companyAdminID
	h := &sagaHarness{
		bookings: newFakeBookingStore(),
		users: newFakeUserStore(
			&models.User{ID: companyAdminID, Name: "Acme", UserRole: models.RoleCompanyAdmin, Wallet: companyWallet},
			&models.User{ID: employeeID, Name: "Eve", UserRole: models.RoleEmployee, CompanyID: &company},
			&models.User{ID: hrID, Name: "Hana", UserRole: models.RoleHR, CompanyID: &company},
			&models.User{ID: superAdminID, Name: "Root", UserRole: models.RoleSuperAdmin},
			&models.User{ID: soloUserID, Name: "Sam", UserRole: models.RoleUser},
			&models.User{ID: otherAdminID, Name: "Other Co", UserRole: models.RoleCompanyAdmin, Wallet: 50000},
		),
		supplier:  newFakeSupplier(),
		gateway:   newFakeGateway(),
		audit:     &fakeAudit{},
		publisher: &fakePublisher{},
		metrics:   &countingMetrics{},
	}
	h.saga = NewBookingSagaService(BookingSagaDeps{
		Bookings:    h.bookings,
		Users:       h.users,
		Supplier:    h.supplier,
		Payments:    h.gateway,
		Audit:       h.audit,
		Publisher:   h.publisher,
		Idempotency: NewMemoryIdempotencyStore(time.Hour),
		Metrics:     h.metrics,
	}, cfg, quietLogger())
	return h
}

func manualConfirm() config.BookingConfig {
	return config.BookingConfig{AutoConfirm: false, OnlinePayment: true}
}

func autoConfirm() config.BookingConfig {
	return config.BookingConfig{AutoConfirm: true, OnlinePayment: true}
}

func hotelRequest(mode models.PaymentMode) *models.CreateHotelBookingRequest {
	return &models.CreateHotelBookingRequest{
		BookingRequest: models.BookingRequest{
			PaymentMode:   mode,
			SearchTokenID: "token-1",
			EndUserIP:     "203.0.113.7",
		},
		TraceID:     "trace-h",
		ResultIndex: 3,
		HotelCode:   "H-100",
		HotelName:   "Harbour View",
		NoOfRooms:   1,
		CheckIn:     "2026-11-01",
		CheckOut:    "2026-11-03",
		HotelRoomsDetails: []models.HotelRoomDetail{{
			RoomIndex:      1,
			RoomTypeCode:   "DLX",
			HotelPassenger: []models.HotelPassenger{{Title: "Ms", FirstName: "Eve", LastName: "Lane", LeadPassenger: true, PaxType: 1}},
		}},
	}
}

func busRequest(mode models.PaymentMode, seat string) *models.CreateBusBookingRequest {
	return &models.CreateBusBookingRequest{
		BookingRequest: models.BookingRequest{
			PaymentMode:   mode,
			SearchTokenID: "token-2",
			EndUserIP:     "203.0.113.7",
		},
		TraceID:         "trace-b",
		ResultIndex:     5,
		BoardingPointID: 11,
		DroppingPointID: 22,
		Passengers: []models.BusPassenger{{
			LeadPassenger: true,
			Title:         "Mr",
			FirstName:     "Sam",
			LastName:      "Roe",
			Age:           30,
			Seat:          models.BusSeat{SeatIndex: seat},
		}},
	}
}

func (h *sagaHarness) stubHotelHold() {
	h.supplier.on(supplier.EndpointHotelBlockRoom, hotelBlockResult())
}

func (h *sagaHarness) stubHotelBook() {
	h.supplier.on(supplier.EndpointHotelBook, models.SupplierBookResult{BookingID: 9001, ConfirmationNo: "CNF-9001", Status: 1})
	h.supplier.on(supplier.EndpointHotelGetBookingDetail, map[string]interface{}{"HotelName": "Harbour View"})
}

func (h *sagaHarness) stubBusHold(seat string) {
	h.supplier.on(supplier.EndpointBusBlockSeat, busBlockResult(seat))
}

func (h *sagaHarness) stubBusBook() {
	h.supplier.on(supplier.EndpointBusBook, models.SupplierBookResult{BookingID: 7001, TicketNo: "TKT-7001", Status: 1})
	h.supplier.on(supplier.EndpointBusGetBookingDetail, map[string]interface{}{"TravelName": "Coastline"})
}
