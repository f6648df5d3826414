package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/middleware"
	"github.com/tripdesk/booking-backend/internal/models"
	"github.com/tripdesk/booking-backend/internal/services"
)

const somethingWentWrong = "Something went wrong"

func respond(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, models.NewResponse(code, message, data))
}

func respondFailure(c *gin.Context, code int, message, reason string) {
	c.JSON(code, models.NewErrorResponse(code, message, reason))
}

// respondError translates a service error into the response envelope
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	code, message, reason := classify(err)
	if code >= http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).WithError(err).Error("Request failed")
	}
	respondFailure(c, code, message, reason)
}

func classify(err error) (int, string, string) {
	var vErr *models.ValidationError
	var sErr *services.SupplierError
	var pErr *services.PersistenceError

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, vErr.Error(), "VALIDATION_ERROR"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error(), "VALIDATION_ERROR"
	case errors.As(err, &sErr):
		if sErr.Transport {
			return http.StatusInternalServerError, somethingWentWrong, "SUPPLIER_UNAVAILABLE"
		}
		return http.StatusBadRequest, sErr.Message, "SUPPLIER_ERROR"
	case errors.Is(err, services.ErrActorNotFound):
		return http.StatusNotFound, err.Error(), "USER_NOT_FOUND"
	case errors.Is(err, services.ErrBookingNotFound):
		return http.StatusNotFound, err.Error(), "BOOKING_NOT_FOUND"
	case errors.Is(err, services.ErrNotPermitted):
		return http.StatusForbidden, err.Error(), "NOT_PERMITTED"
	case errors.Is(err, services.ErrIdempotencyInFlight):
		return http.StatusConflict, err.Error(), "REQUEST_IN_PROGRESS"
	case errors.Is(err, services.ErrConfirmationInProgress):
		return http.StatusConflict, err.Error(), "CONFIRMATION_IN_PROGRESS"
	case errors.Is(err, services.ErrInsufficientBalance):
		return http.StatusBadRequest, err.Error(), "INSUFFICIENT_BALANCE"
	case errors.Is(err, services.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error(), "INVALID_SIGNATURE"
	case errors.As(err, &pErr):
		return http.StatusInternalServerError, somethingWentWrong, "PERSISTENCE_ERROR"
	case services.IsClientError(err):
		return http.StatusBadRequest, err.Error(), "BAD_REQUEST"
	}
	return http.StatusInternalServerError, somethingWentWrong, "INTERNAL_ERROR"
}

// actor returns the authenticated caller or writes a 401
func actor(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, ok := middleware.GetUserContext(c)
	if !ok {
		respondFailure(c, http.StatusUnauthorized, "User not authenticated", "UNAUTHORIZED")
		return middleware.UserContext{}, false
	}
	return userCtx, true
}
