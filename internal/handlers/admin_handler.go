package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tripdesk/booking-backend/internal/services"
)

// ReconcileRunner is the reconciliation scheduler
type ReconcileRunner interface {
	RunNow(ctx context.Context) (*services.ReconcileReport, error)
	GetJobStatus() map[string]interface{}
}

// AdminHandler exposes operational endpoints to super admins
type AdminHandler struct {
	reconciler ReconcileRunner
	logger     *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(reconciler ReconcileRunner, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// GetReconcileStatus handles GET /api/v1/admin/reconcile
func (h *AdminHandler) GetReconcileStatus(c *gin.Context) {
	respond(c, http.StatusOK, "Reconciliation status", h.reconciler.GetJobStatus())
}

// RunReconcile handles POST /api/v1/admin/reconcile/run
// Runs a pass immediately instead of waiting for the schedule.
func (h *AdminHandler) RunReconcile(c *gin.Context) {
	userCtx, ok := actor(c)
	if !ok {
		return
	}
	h.logger.WithField("user_id", userCtx.UserID).Info("Manual reconciliation requested")

	report, err := h.reconciler.RunNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Reconciliation completed", report)
}
