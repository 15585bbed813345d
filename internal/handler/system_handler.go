package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/service"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type auditReader interface {
	Recent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// SystemHandler exposes operational endpoints for admins.
type SystemHandler struct {
	metrics *service.MetricsService
	audit   auditReader
}

// NewSystemHandler constructs the handler.
func NewSystemHandler(metrics *service.MetricsService, audit auditReader) *SystemHandler {
	return &SystemHandler{metrics: metrics, audit: audit}
}

// Metrics godoc
// @Summary Runtime metrics snapshot
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/metrics [get]
func (h *SystemHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "metrics service not configured"))
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// AuditLogs godoc
// @Summary Recent audit trail entries
// @Tags System
// @Produce json
// @Param limit query int false "Max entries (default 50)"
// @Success 200 {object} response.Envelope
// @Router /system/audit-logs [get]
func (h *SystemHandler) AuditLogs(c *gin.Context) {
	if h.audit == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit service not configured"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	entries, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
