package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tripdesk/booking-backend/internal/models"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_created_total",
			Help: "Bookings persisted by the booking saga",
		},
		[]string{"type", "payment_mode"},
	)
	SagaFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_saga_failures_total",
			Help: "Booking saga runs that stopped, by the step that failed",
		},
		[]string{"type", "step"},
	)
	ConfirmationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_confirmation_attempts_total",
			Help: "Supplier confirmation attempts by outcome",
		},
		[]string{"outcome"},
	)
	WalletCompensations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_wallet_compensations_total",
			Help: "Wallet debits refunded because the booking could not be saved",
		},
	)

	SupplierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_calls_total",
			Help: "Supplier API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	SupplierCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supplier_call_duration_seconds",
			Help:    "Supplier API call duration including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint"},
	)
)

// Middleware records request count and latency per route template
func Middleware(c *gin.Context) {
	if c.Request.URL.Path == "/metrics" {
		c.Next()
		return
	}
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	RequestTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
}

// Saga records booking saga outcomes
type Saga struct{}

func (Saga) BookingCreated(vertical models.BookingType, mode models.PaymentMode) {
	BookingsCreated.WithLabelValues(string(vertical), string(mode)).Inc()
}

func (Saga) SagaFailed(vertical models.BookingType, step string) {
	SagaFailures.WithLabelValues(string(vertical), step).Inc()
}

func (Saga) ConfirmationAttempt(outcome string) {
	ConfirmationAttempts.WithLabelValues(outcome).Inc()
}

func (Saga) WalletCompensated() {
	WalletCompensations.Inc()
}

// ObserveSupplierCall matches supplier.CallObserver
func ObserveSupplierCall(endpoint, outcome string, duration time.Duration) {
	SupplierCalls.WithLabelValues(endpoint, outcome).Inc()
	SupplierCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
