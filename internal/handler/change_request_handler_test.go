package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/middleware"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/response"
)

type reviewServiceMock struct {
	submitResp  *models.ChangeRequest
	approveResp *models.ChangeRequest
	approveErr  error
	resolveResp *models.ChangeRequest
}

func (m *reviewServiceMock) SubmitForReview(context.Context, models.ResourceKind, int64, json.RawMessage, string, models.Actor) (*models.ChangeRequest, error) {
	return m.submitResp, nil
}

func (m *reviewServiceMock) ApproveAndApply(context.Context, string, string, models.Actor) (*models.ChangeRequest, error) {
	return m.approveResp, m.approveErr
}

func (m *reviewServiceMock) ResolveAndApply(context.Context, string, models.ConflictStrategy, json.RawMessage, models.Actor) (*models.ChangeRequest, error) {
	return m.resolveResp, nil
}

type ledgerServiceMock struct {
	listFilter models.ChangeRequestFilter
	listResp   []models.ChangeRequest
	seenIDs    []string
}

func (m *ledgerServiceMock) List(_ context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	m.listFilter = filter
	return m.listResp, nil
}

func (m *ledgerServiceMock) Get(context.Context, string) (*models.ChangeRequest, error) {
	return nil, appErrors.ErrNotFound
}

func (m *ledgerServiceMock) Reject(context.Context, string, string, models.Actor) (*models.ChangeRequest, error) {
	return &models.ChangeRequest{Status: models.ChangeRequestRejected}, nil
}

func (m *ledgerServiceMock) RequestRevision(context.Context, string, string, models.Actor) (*models.ChangeRequest, error) {
	return &models.ChangeRequest{Status: models.ChangeRequestNeedsRevision}, nil
}

func (m *ledgerServiceMock) Resubmit(context.Context, string, json.RawMessage, string, models.Actor) (*models.ChangeRequest, error) {
	return &models.ChangeRequest{Status: models.ChangeRequestPending}, nil
}

func (m *ledgerServiceMock) Counts(context.Context) (models.StatusCounts, error) {
	return models.StatusCounts{Pending: 3}, nil
}

func (m *ledgerServiceMock) UnseenForSubmitter(context.Context, int64) ([]models.ChangeRequest, error) {
	return nil, nil
}

func (m *ledgerServiceMock) MarkSeen(_ context.Context, ids []string, _ models.Actor) (int64, error) {
	m.seenIDs = ids
	return int64(len(ids)), nil
}

func testContext(t *testing.T, method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func reviewerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: 2, FullName: "Rey Viewer", Role: models.RoleReviewer}
}

func TestChangeRequestSubmitCreated(t *testing.T) {
	review := &reviewServiceMock{submitResp: &models.ChangeRequest{ID: "cr-1", Status: models.ChangeRequestPending}}
	handler := NewChangeRequestHandler(review, &ledgerServiceMock{})
	c, w := testContext(t, http.MethodPost, "/change-requests", dto.SubmitChangeRequest{
		ResourceType: models.ResourceSitio,
		ResourceID:   5,
		Proposed:     json.RawMessage(`{"name":"Sitio Malipayon"}`),
	})
	c.Set(middleware.ContextUserKey, reviewerClaims())

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestChangeRequestSubmitRequiresSession(t *testing.T) {
	handler := NewChangeRequestHandler(&reviewServiceMock{}, &ledgerServiceMock{})
	c, w := testContext(t, http.MethodPost, "/change-requests", dto.SubmitChangeRequest{
		ResourceType: models.ResourceSitio,
		Proposed:     json.RawMessage(`{}`),
	})

	handler.Submit(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangeRequestApproveStaleBaselineKeepsData(t *testing.T) {
	conflicted := &models.ChangeRequest{ID: "cr-1", Status: models.ChangeRequestConflict}
	review := &reviewServiceMock{
		approveResp: conflicted,
		approveErr:  appErrors.Clone(appErrors.ErrStaleBaseline, ""),
	}
	handler := NewChangeRequestHandler(review, &ledgerServiceMock{})
	c, w := testContext(t, http.MethodPost, "/change-requests/cr-1/approve", dto.ReviewDecisionRequest{})
	c.Params = gin.Params{{Key: "id", Value: "cr-1"}}
	c.Set(middleware.ContextUserKey, reviewerClaims())

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrStaleBaseline.Code, envelope.Error.Code)
	assert.NotNil(t, envelope.Data)
}

func TestChangeRequestApproveToleratesEmptyBody(t *testing.T) {
	review := &reviewServiceMock{approveResp: &models.ChangeRequest{Status: models.ChangeRequestApproved}}
	handler := NewChangeRequestHandler(review, &ledgerServiceMock{})
	c, w := testContext(t, http.MethodPost, "/change-requests/cr-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "cr-1"}}
	c.Set(middleware.ContextUserKey, reviewerClaims())

	handler.Approve(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChangeRequestRevisionRequiresComment(t *testing.T) {
	handler := NewChangeRequestHandler(&reviewServiceMock{}, &ledgerServiceMock{})
	c, w := testContext(t, http.MethodPost, "/change-requests/cr-1/request-revision", map[string]string{})
	c.Params = gin.Params{{Key: "id", Value: "cr-1"}}
	c.Set(middleware.ContextUserKey, reviewerClaims())

	handler.RequestRevision(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeRequestListParsesFilter(t *testing.T) {
	ledger := &ledgerServiceMock{}
	handler := NewChangeRequestHandler(&reviewServiceMock{}, ledger)
	c, w := testContext(t, http.MethodGet, "/change-requests?status=pending,conflict&resource_type=sitio&mine=true&unseen=true", nil)
	c.Set(middleware.ContextUserKey, reviewerClaims())

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.ChangeRequestStatus{models.ChangeRequestPending, models.ChangeRequestConflict}, ledger.listFilter.Status)
	assert.Equal(t, models.ResourceSitio, ledger.listFilter.ResourceType)
	require.NotNil(t, ledger.listFilter.SubmittedByID)
	assert.Equal(t, int64(2), *ledger.listFilter.SubmittedByID)
	assert.True(t, ledger.listFilter.UnseenOnly)
}

func TestChangeRequestMarkSeen(t *testing.T) {
	ledger := &ledgerServiceMock{}
	handler := NewChangeRequestHandler(&reviewServiceMock{}, ledger)
	c, w := testContext(t, http.MethodPost, "/change-requests/mark-seen", dto.MarkSeenRequest{IDs: []string{"cr-1", "cr-2"}})
	c.Set(middleware.ContextUserKey, reviewerClaims())

	handler.MarkSeen(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"cr-1", "cr-2"}, ledger.seenIDs)
}

func TestChangeRequestGetNotFound(t *testing.T) {
	handler := NewChangeRequestHandler(&reviewServiceMock{}, &ledgerServiceMock{})
	c, w := testContext(t, http.MethodGet, "/change-requests/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
