package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type reviewWorkflowService interface {
	SubmitForReview(ctx context.Context, kind models.ResourceKind, id int64, proposed json.RawMessage, comment string, actor models.Actor) (*models.ChangeRequest, error)
	ApproveAndApply(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error)
	ResolveAndApply(ctx context.Context, id string, strategy models.ConflictStrategy, merged json.RawMessage, actor models.Actor) (*models.ChangeRequest, error)
}

type changeLedgerService interface {
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
	Get(ctx context.Context, id string) (*models.ChangeRequest, error)
	Reject(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error)
	RequestRevision(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error)
	Resubmit(ctx context.Context, id string, proposed json.RawMessage, comment string, actor models.Actor) (*models.ChangeRequest, error)
	Counts(ctx context.Context) (models.StatusCounts, error)
	UnseenForSubmitter(ctx context.Context, submitterID int64) ([]models.ChangeRequest, error)
	MarkSeen(ctx context.Context, ids []string, actor models.Actor) (int64, error)
}

// ChangeRequestHandler exposes REST endpoints for the review workflow.
type ChangeRequestHandler struct {
	review reviewWorkflowService
	ledger changeLedgerService
}

// NewChangeRequestHandler constructs the handler.
func NewChangeRequestHandler(review reviewWorkflowService, ledger changeLedgerService) *ChangeRequestHandler {
	return &ChangeRequestHandler{review: review, ledger: ledger}
}

// Submit godoc
// @Summary Propose a data change for review
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitChangeRequest true "Proposed change"
// @Success 201 {object} response.Envelope
// @Router /change-requests [post]
func (h *ChangeRequestHandler) Submit(c *gin.Context) {
	if h.review == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review service not configured"))
		return
	}
	var req dto.SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid change request payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.review.SubmitForReview(c.Request.Context(), req.ResourceType, req.ResourceID, req.Proposed, req.Comment, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List change requests
// @Tags ChangeRequests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param resource_type query string false "Resource kind"
// @Param resource_id query int false "Resource id"
// @Param mine query bool false "Only requests submitted by the caller"
// @Param unseen query bool false "Only unseen status changes"
// @Param from query string false "Submitted from (RFC3339)"
// @Param to query string false "Submitted to (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /change-requests [get]
func (h *ChangeRequestHandler) List(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := parseChangeRequestFilter(c, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	requests, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get change request detail
// @Tags ChangeRequests
// @Produce json
// @Param id path string true "Change request ID"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id} [get]
func (h *ChangeRequestHandler) Get(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	request, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve a pending change request
// @Description A stale baseline moves the request to CONFLICT and returns 409
// @Description with the conflicted request in the data field.
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ReviewDecisionRequest false "Reviewer comment"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /change-requests/{id}/approve [post]
func (h *ChangeRequestHandler) Approve(c *gin.Context) {
	if h.review == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, ok := bindOptionalDecision(c)
	if !ok {
		return
	}
	request, err := h.review.ApproveAndApply(c.Request.Context(), c.Param("id"), req.Comment, claims.Actor())
	if err != nil {
		respondMaybeConflict(c, request, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Reject godoc
// @Summary Reject a change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ReviewDecisionRequest false "Reviewer comment"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/reject [post]
func (h *ChangeRequestHandler) Reject(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req, ok := bindOptionalDecision(c)
	if !ok {
		return
	}
	request, err := h.ledger.Reject(c.Request.Context(), c.Param("id"), req.Comment, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// RequestRevision godoc
// @Summary Return a change request to its submitter for revision
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.RevisionRequest true "Mandatory reviewer comment"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/request-revision [post]
func (h *ChangeRequestHandler) RequestRevision(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a revision request needs a comment"))
		return
	}
	request, err := h.ledger.RequestRevision(c.Request.Context(), c.Param("id"), req.Comment, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resubmit godoc
// @Summary Resubmit a returned or rejected change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ResubmitRequest true "Revised proposal"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/resubmit [post]
func (h *ChangeRequestHandler) Resubmit(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resubmission payload"))
		return
	}
	request, err := h.ledger.Resubmit(c.Request.Context(), c.Param("id"), req.Proposed, req.Comment, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Resolve godoc
// @Summary Resolve a conflicted change request
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param id path string true "Change request ID"
// @Param payload body dto.ResolveConflictRequest true "Resolution strategy"
// @Success 200 {object} response.Envelope
// @Router /change-requests/{id}/resolve [post]
func (h *ChangeRequestHandler) Resolve(c *gin.Context) {
	if h.review == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "review service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid resolution payload"))
		return
	}
	request, err := h.review.ResolveAndApply(c.Request.Context(), c.Param("id"), req.Strategy, req.MergedData, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Counts godoc
// @Summary Summarise the ledger per workflow status
// @Tags ChangeRequests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /change-requests/counts [get]
func (h *ChangeRequestHandler) Counts(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	counts, err := h.ledger.Counts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, counts, nil)
}

// Unseen godoc
// @Summary List the caller's requests with unseen status changes
// @Tags ChangeRequests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /change-requests/unseen [get]
func (h *ChangeRequestHandler) Unseen(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	requests, err := h.ledger.UnseenForSubmitter(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// MarkSeen godoc
// @Summary Acknowledge reviewed status changes
// @Tags ChangeRequests
// @Accept json
// @Produce json
// @Param payload body dto.MarkSeenRequest true "Request ids to acknowledge"
// @Success 200 {object} response.Envelope
// @Router /change-requests/mark-seen [post]
func (h *ChangeRequestHandler) MarkSeen(c *gin.Context) {
	if h.ledger == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "change request service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.MarkSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid mark-seen payload"))
		return
	}
	updated, err := h.ledger.MarkSeen(c.Request.Context(), req.IDs, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}

// bindOptionalDecision reads an approve/reject body, tolerating an absent one.
func bindOptionalDecision(c *gin.Context) (dto.ReviewDecisionRequest, bool) {
	var req dto.ReviewDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid review payload"))
		return req, false
	}
	return req, true
}

// respondMaybeConflict keeps the conflicted request visible in a 409 body so
// reviewers can open the resolution view directly.
func respondMaybeConflict(c *gin.Context, request *models.ChangeRequest, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Code == appErrors.ErrStaleBaseline.Code && request != nil {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.JSON(appErr.Status, response.Envelope{Data: request, Error: appErr})
		return
	}
	response.Error(c, err)
}

func parseChangeRequestFilter(c *gin.Context, claims *models.JWTClaims) (models.ChangeRequestFilter, error) {
	filter := models.ChangeRequestFilter{
		ResourceType: models.ResourceKind(strings.TrimSpace(c.Query("resource_type"))),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			filter.Status = append(filter.Status, models.ChangeRequestStatus(part))
		}
	}
	if raw := c.Query("resource_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "resource_id must be numeric")
		}
		filter.ResourceID = &id
	}
	if c.Query("mine") == "true" {
		submitter := claims.UserID
		filter.SubmittedByID = &submitter
	}
	filter.UnseenOnly = c.Query("unseen") == "true"
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.SubmittedFrom = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.SubmittedTo = &to
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
