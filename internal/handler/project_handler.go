package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type projectService interface {
	List(ctx context.Context, sitioID *int64) ([]models.Project, error)
	Get(ctx context.Context, id int64) (*models.Project, error)
	Create(ctx context.Context, patch models.ProjectPatch, actor models.Actor) (*models.Project, error)
	Update(ctx context.Context, id int64, patch models.ProjectPatch, actor models.Actor) (*models.Project, error)
	Delete(ctx context.Context, id int64, actor models.Actor) error
}

// ProjectHandler exposes the development project record store.
type ProjectHandler struct {
	service projectService
	pending pendingChangeChecker
}

// NewProjectHandler constructs the handler. pending may be nil.
func NewProjectHandler(service projectService, pending pendingChangeChecker) *ProjectHandler {
	return &ProjectHandler{service: service, pending: pending}
}

// List godoc
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param sitio_id query int false "Scope to one sitio"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "project service not configured"))
		return
	}
	var sitioID *int64
	if raw := c.Query("sitio_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sitio_id must be numeric"))
			return
		}
		sitioID = &id
	}
	projects, err := h.service.List(c.Request.Context(), sitioID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projects, nil)
}

// Get godoc
// @Summary Get one project
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "project service not configured"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	project, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}(nil)
	if h.pending != nil {
		if locked, err := h.pending.HasPendingChanges(c.Request.Context(), models.ResourceProject, id); err == nil {
			meta = map[string]interface{}{"has_pending_changes": locked}
		}
	}
	response.JSON(c, http.StatusOK, project, nil, meta)
}

// Create godoc
// @Summary Create a project directly (admin)
// @Tags Projects
// @Accept json
// @Produce json
// @Param payload body models.ProjectPatch true "New project"
// @Success 201 {object} response.Envelope
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "project service not configured"))
		return
	}
	var patch models.ProjectPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid project payload"))
		return
	}
	project, err := h.service.Create(c.Request.Context(), patch, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, project, nil)
}

// Update godoc
// @Summary Patch a project directly (admin)
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param payload body models.ProjectPatch true "Partial update"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [patch]
func (h *ProjectHandler) Update(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "project service not configured"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch models.ProjectPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid project payload"))
		return
	}
	project, err := h.service.Update(c.Request.Context(), id, patch, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, project, nil)
}

// Delete godoc
// @Summary Delete a project (admin)
// @Tags Projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 204
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "project service not configured"))
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
