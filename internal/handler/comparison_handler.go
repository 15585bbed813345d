package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type comparisonService interface {
	Compare(ctx context.Context, req models.ComparisonRequest) (interface{}, error)
	ShareToken(req models.ComparisonRequest) string
}

// ComparisonHandler exposes temporal, spatial and aggregate comparisons.
type ComparisonHandler struct {
	service comparisonService
}

// NewComparisonHandler constructs the handler.
func NewComparisonHandler(service comparisonService) *ComparisonHandler {
	return &ComparisonHandler{service: service}
}

// Compare godoc
// @Summary Run a comparison
// @Tags Comparisons
// @Accept json
// @Produce json
// @Param payload body models.ComparisonRequest true "Comparison configuration"
// @Success 200 {object} response.Envelope
// @Router /comparisons [post]
func (h *ComparisonHandler) Compare(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "comparison service not configured"))
		return
	}
	var req models.ComparisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid comparison payload"))
		return
	}
	result, err := h.service.Compare(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"share_token": h.service.ShareToken(req)}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Shared godoc
// @Summary Run a comparison from a shared link
// @Description Accepts the compact query format produced by share tokens
// @Description (t, s, y, m, al, ae, mf keys).
// @Tags Comparisons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /comparisons/shared [get]
func (h *ComparisonHandler) Shared(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "comparison service not configured"))
		return
	}
	req, err := dto.ParseComparisonValues(c.Request.URL.Query())
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	result, err := h.service.Compare(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
