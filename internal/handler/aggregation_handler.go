package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type aggregationService interface {
	Overview(ctx context.Context, filter repository.SitioListFilter, year string) (*models.AggregationOverview, error)
	GeoRollups(ctx context.Context, level models.AggregationLevel, year string) ([]models.GeoRollup, error)
	Bounds(sitios []models.SitioRecord) models.BoundingBox
}

// AggregationHandler exposes the analytics read endpoints.
type AggregationHandler struct {
	service aggregationService
	sitios  sitioService
}

// NewAggregationHandler constructs the handler.
func NewAggregationHandler(service aggregationService, sitios sitioService) *AggregationHandler {
	return &AggregationHandler{service: service, sitios: sitios}
}

// Overview godoc
// @Summary Aggregate profile metrics across sitios
// @Tags Analytics
// @Produce json
// @Param municipality query string false "Municipality filter"
// @Param barangay query string false "Barangay filter"
// @Param search query string false "Name search"
// @Param year query string false "Profile year; latest per sitio when omitted"
// @Success 200 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AggregationHandler) Overview(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "aggregation service not configured"))
		return
	}
	filter := repository.SitioListFilter{
		Municipality: strings.TrimSpace(c.Query("municipality")),
		Barangay:     strings.TrimSpace(c.Query("barangay")),
		Search:       strings.TrimSpace(c.Query("search")),
	}
	overview, err := h.service.Overview(c.Request.Context(), filter, strings.TrimSpace(c.Query("year")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// Rollups godoc
// @Summary Aggregate metrics per municipality or barangay
// @Tags Analytics
// @Produce json
// @Param level query string true "municipality or barangay"
// @Param year query string false "Profile year"
// @Success 200 {object} response.Envelope
// @Router /analytics/rollups [get]
func (h *AggregationHandler) Rollups(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "aggregation service not configured"))
		return
	}
	level := models.AggregationLevel(strings.TrimSpace(c.Query("level")))
	rollups, err := h.service.GeoRollups(c.Request.Context(), level, strings.TrimSpace(c.Query("year")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rollups, nil)
}

// Bounds godoc
// @Summary Bounding box over sitio coordinates
// @Tags Analytics
// @Produce json
// @Param municipality query string false "Municipality filter"
// @Param barangay query string false "Barangay filter"
// @Success 200 {object} response.Envelope
// @Router /analytics/bounds [get]
func (h *AggregationHandler) Bounds(c *gin.Context) {
	if h.service == nil || h.sitios == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "aggregation service not configured"))
		return
	}
	filter := repository.SitioListFilter{
		Municipality: strings.TrimSpace(c.Query("municipality")),
		Barangay:     strings.TrimSpace(c.Query("barangay")),
	}
	sitios, err := h.sitios.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.service.Bounds(sitios), nil)
}
