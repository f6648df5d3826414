package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/internal/services"
	"github.com/tripdesk/booking-backend/internal/utils"
)

// IdempotencyKeyHeader makes a create booking request safe to retry
const IdempotencyKeyHeader = "Idempotency-Key"

const (
	defaultListLimit   = 20
	maxListLimit       = 100
	walletHistoryLimit = 50
)

// BookingService is the part of the booking saga used over HTTP
type BookingService interface {
	CreateHotelBooking(ctx context.Context, actorID, idempotencyKey string, req *models.CreateHotelBookingRequest) (*models.CreateBookingResult, error)
	CreateBusBooking(ctx context.Context, actorID, idempotencyKey string, req *models.CreateBusBookingRequest) (*models.CreateBookingResult, error)
	CreateFlightBooking(ctx context.Context, actorID, idempotencyKey string, req *models.CreateFlightBookingRequest) (*models.CreateBookingResult, error)
	ConfirmBooking(ctx context.Context, actorID, bookingID string) (*models.Booking, error)
	VerifyOnlinePayment(ctx context.Context, actorID, bookingID string, req *models.VerifyPaymentRequest, meta services.RequestMeta) (*models.Booking, error)
	GetBooking(ctx context.Context, actorID, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, actorID string, limit, offset int) ([]*models.Booking, error)
	UpdateCompanyApproval(ctx context.Context, actorID, bookingID string, req *models.UpdateCompanyApprovalRequest) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, actorID, bookingID string, req *models.UpdateBookingStatusRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, actorID, bookingID string, req *models.CancelBookingRequest) (*models.Booking, error)
	WalletSummary(ctx context.Context, userID string, limit int) (*services.WalletSummary, error)
}

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookings BookingService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// RegisterRoutes mounts the booking routes on an authenticated group
func (h *BookingHandler) RegisterRoutes(rg *gin.RouterGroup, adminOnly, approvers gin.HandlerFunc) {
	bookings := rg.Group("/bookings")
	{
		bookings.POST("/hotel", h.CreateHotelBooking)
		bookings.POST("/bus", h.CreateBusBooking)
		bookings.POST("/flight", h.CreateFlightBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/confirm", h.ConfirmBooking)
		bookings.POST("/:id/verify-payment", h.VerifyPayment)
		bookings.POST("/:id/cancel", h.CancelBooking)
		bookings.PUT("/:id/status", adminOnly, h.UpdateStatus)
		bookings.PUT("/:id/approval", approvers, h.UpdateApproval)
	}
	rg.GET("/wallet", h.GetWallet)
}

// CreateHotelBooking blocks hotel rooms and settles payment
// POST /api/v1/bookings/hotel
func (h *BookingHandler) CreateHotelBooking(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	var req models.CreateHotelBookingRequest
	if !h.bind(c, &req) {
		return
	}
	req.EndUserIP = utils.GetRealIP(c)

	result, err := h.bookings.CreateHotelBooking(c.Request.Context(), userCtx.UserID, c.GetHeader(IdempotencyKeyHeader), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking created successfully", result)
}

// CreateBusBooking blocks bus seats and settles payment
// POST /api/v1/bookings/bus
func (h *BookingHandler) CreateBusBooking(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	var req models.CreateBusBookingRequest
	if !h.bind(c, &req) {
		return
	}
	req.EndUserIP = utils.GetRealIP(c)

	result, err := h.bookings.CreateBusBooking(c.Request.Context(), userCtx.UserID, c.GetHeader(IdempotencyKeyHeader), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking created successfully", result)
}

// CreateFlightBooking holds flight seats and settles payment
// POST /api/v1/bookings/flight
func (h *BookingHandler) CreateFlightBooking(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	var req models.CreateFlightBookingRequest
	if !h.bind(c, &req) {
		return
	}
	req.EndUserIP = utils.GetRealIP(c)

	result, err := h.bookings.CreateFlightBooking(c.Request.Context(), userCtx.UserID, c.GetHeader(IdempotencyKeyHeader), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking created successfully", result)
}

// ConfirmBooking books the held inventory with the supplier
// POST /api/v1/bookings/:id/confirm
func (h *BookingHandler) ConfirmBooking(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	booking, err := h.bookings.ConfirmBooking(c.Request.Context(), userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking confirmed successfully", booking)
}

// VerifyPayment checks the checkout signature and confirms the booking
// POST /api/v1/bookings/:id/verify-payment
func (h *BookingHandler) VerifyPayment(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, "orderId, paymentId and signature are required", "VALIDATION_ERROR")
		return
	}

	booking, err := h.bookings.VerifyOnlinePayment(c.Request.Context(), userCtx.UserID, c.Param("id"), &req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Payment verified successfully", booking)
}

// GetBooking returns one booking
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), userCtx.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking fetched successfully", booking)
}

// ListBookings returns the bookings visible to the caller
// GET /api/v1/bookings?limit=20&offset=0
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), userCtx.UserID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	respond(c, http.StatusOK, "Bookings fetched successfully", gin.H{
		"bookings": bookings,
		"limit":    limit,
		"offset":   offset,
	})
}

// UpdateApproval approves or rejects a company-paid booking
// PUT /api/v1/bookings/:id/approval
func (h *BookingHandler) UpdateApproval(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	var req models.UpdateCompanyApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, "companyApproval is required", "VALIDATION_ERROR")
		return
	}

	booking, err := h.bookings.UpdateCompanyApproval(c.Request.Context(), userCtx.UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Company approval updated successfully", booking)
}

// UpdateStatus changes the booking status
// PUT /api/v1/bookings/:id/status
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFailure(c, http.StatusBadRequest, "status is required", "VALIDATION_ERROR")
		return
	}

	booking, err := h.bookings.UpdateBookingStatus(c.Request.Context(), userCtx.UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking status updated successfully", booking)
}

// CancelBooking cancels a booking with the supplier and refunds the wallet
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	// Body is optional
	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondFailure(c, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
			return
		}
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), userCtx.UserID, c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Booking cancelled successfully", booking)
}

// GetWallet returns the balance and recent transactions of the wallet that
// funds the caller's company bookings
// GET /api/v1/wallet
func (h *BookingHandler) GetWallet(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}

	summary, err := h.bookings.WalletSummary(c.Request.Context(), userCtx.UserID, walletHistoryLimit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Wallet fetched successfully", summary)
}

// bind decodes a create request. Malformed JSON and variant mismatches are
// reported the same way as rule failures.
func (h *BookingHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.WithError(err).Debug("Rejected booking request body")
		respondFailure(c, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return false
	}
	return true
}

func requestMeta(c *gin.Context) services.RequestMeta {
	userAgent := utils.GetUserAgent(c)
	device := utils.ParseUserAgent(userAgent)
	return services.RequestMeta{
		IPAddress:  utils.GetRealIP(c),
		UserAgent:  userAgent,
		DeviceType: device.DeviceType,
		Platform:   device.Platform,
	}
}
