package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type sitioService interface {
	List(ctx context.Context, filter repository.SitioListFilter) ([]models.SitioRecord, error)
	Get(ctx context.Context, id int64) (*models.SitioRecord, error)
	Create(ctx context.Context, patch models.SitioPatch, actor models.Actor) (*models.SitioRecord, error)
	Update(ctx context.Context, id int64, patch models.SitioPatch, actor models.Actor) (*models.SitioRecord, error)
	Delete(ctx context.Context, id int64, actor models.Actor) error
}

type pendingChangeChecker interface {
	HasPendingChanges(ctx context.Context, kind models.ResourceKind, id int64) (bool, error)
}

// SitioHandler exposes the sitio record store.
type SitioHandler struct {
	service sitioService
	pending pendingChangeChecker
}

// NewSitioHandler constructs the handler. pending may be nil.
func NewSitioHandler(service sitioService, pending pendingChangeChecker) *SitioHandler {
	return &SitioHandler{service: service, pending: pending}
}

// List godoc
// @Summary List sitio records
// @Tags Sitios
// @Produce json
// @Param municipality query string false "Municipality filter"
// @Param barangay query string false "Barangay filter"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Router /sitios [get]
func (h *SitioHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "sitio service not configured"))
		return
	}
	filter := repository.SitioListFilter{
		Municipality: strings.TrimSpace(c.Query("municipality")),
		Barangay:     strings.TrimSpace(c.Query("barangay")),
		Search:       strings.TrimSpace(c.Query("search")),
	}
	sitios, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sitios, nil)
}

// Get godoc
// @Summary Get one sitio record
// @Tags Sitios
// @Produce json
// @Param id path int true "Sitio ID"
// @Success 200 {object} response.Envelope
// @Router /sitios/{id} [get]
func (h *SitioHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "sitio service not configured"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	sitio, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}(nil)
	if h.pending != nil {
		if locked, err := h.pending.HasPendingChanges(c.Request.Context(), models.ResourceSitio, id); err == nil {
			meta = map[string]interface{}{"has_pending_changes": locked}
		}
	}
	response.JSON(c, http.StatusOK, sitio, nil, meta)
}

// Create godoc
// @Summary Create a sitio record directly (admin)
// @Tags Sitios
// @Accept json
// @Produce json
// @Param payload body models.SitioPatch true "New sitio"
// @Success 201 {object} response.Envelope
// @Router /sitios [post]
func (h *SitioHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "sitio service not configured"))
		return
	}
	var patch models.SitioPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid sitio payload"))
		return
	}
	sitio, err := h.service.Create(c.Request.Context(), patch, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, sitio, nil)
}

// Update godoc
// @Summary Patch a sitio record directly (admin)
// @Tags Sitios
// @Accept json
// @Produce json
// @Param id path int true "Sitio ID"
// @Param payload body models.SitioPatch true "Partial update"
// @Success 200 {object} response.Envelope
// @Router /sitios/{id} [patch]
func (h *SitioHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "sitio service not configured"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch models.SitioPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid sitio payload"))
		return
	}
	sitio, err := h.service.Update(c.Request.Context(), id, patch, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sitio, nil)
}

// Delete godoc
// @Summary Delete a sitio record (admin)
// @Tags Sitios
// @Produce json
// @Param id path int true "Sitio ID"
// @Success 204
// @Router /sitios/{id} [delete]
func (h *SitioHandler) Delete(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "sitio service not configured"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id must be numeric"))
		return 0, false
	}
	return id, true
}
