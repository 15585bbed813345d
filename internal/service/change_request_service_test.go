package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

type memoryChangeRequestStore struct {
	seq      int
	requests map[string]models.ChangeRequest
}

func newMemoryChangeRequestStore() *memoryChangeRequestStore {
	return &memoryChangeRequestStore{requests: make(map[string]models.ChangeRequest)}
}

func (m *memoryChangeRequestStore) Create(_ context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		m.seq++
		request.ID = fmt.Sprintf("req-%d", m.seq)
	}
	if request.Status == "" {
		request.Status = models.ChangeRequestPending
	}
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = time.Now().UTC()
	}
	m.requests[request.ID] = *request
	return nil
}

func (m *memoryChangeRequestStore) GetByID(_ context.Context, id string) (*models.ChangeRequest, error) {
	request, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &request, nil
}

func (m *memoryChangeRequestStore) Update(_ context.Context, request *models.ChangeRequest) error {
	if _, ok := m.requests[request.ID]; !ok {
		return sql.ErrNoRows
	}
	m.requests[request.ID] = *request
	return nil
}

func (m *memoryChangeRequestStore) List(_ context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	var result []models.ChangeRequest
	for _, request := range m.requests {
		if len(filter.Status) > 0 {
			match := false
			for _, status := range filter.Status {
				if request.Status == status {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if filter.ResourceType != "" && request.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != nil && request.ResourceID != *filter.ResourceID {
			continue
		}
		if filter.SubmittedByID != nil && request.SubmittedByID != *filter.SubmittedByID {
			continue
		}
		if filter.UnseenOnly && request.StatusChangeSeenBySubmitter {
			continue
		}
		result = append(result, request)
	}
	return result, nil
}

func (m *memoryChangeRequestStore) CountByStatus(_ context.Context) (models.StatusCounts, error) {
	var counts models.StatusCounts
	for _, request := range m.requests {
		switch request.Status {
		case models.ChangeRequestPending:
			counts.Pending++
		case models.ChangeRequestApproved:
			counts.Approved++
		case models.ChangeRequestRejected:
			counts.Rejected++
		case models.ChangeRequestConflict:
			counts.Conflict++
		case models.ChangeRequestNeedsRevision:
			counts.NeedsRevision++
		case models.ChangeRequestSuperseded:
			counts.Superseded++
		}
	}
	return counts, nil
}

func (m *memoryChangeRequestStore) MarkSeen(_ context.Context, ids []string, submitterID int64) (int64, error) {
	var updated int64
	for _, id := range ids {
		request, ok := m.requests[id]
		if !ok || request.SubmittedByID != submitterID || request.StatusChangeSeenBySubmitter {
			continue
		}
		request.StatusChangeSeenBySubmitter = true
		m.requests[id] = request
		updated++
	}
	return updated, nil
}

type auditStub struct {
	entries []*models.AuditLog
}

func (a *auditStub) Record(_ context.Context, entry *models.AuditLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

func (a *auditStub) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

type liveStub struct {
	data json.RawMessage
	err  error
}

func (l *liveStub) Snapshot(context.Context, models.ResourceKind, int64) (json.RawMessage, error) {
	return l.data, l.err
}

var (
	encoder  = models.Actor{ID: 1, Name: "Encoder One"}
	reviewer = models.Actor{ID: 2, Name: "Reviewer Two"}
)

func newWorkflowFixture(live json.RawMessage) (*ChangeRequestService, *memoryChangeRequestStore, *auditStub) {
	store := newMemoryChangeRequestStore()
	audit := &auditStub{}
	svc := NewChangeRequestService(store, &liveStub{data: live}, audit, nil, zap.NewNop())
	return svc, store, audit
}

func submitSample(t *testing.T, svc *ChangeRequestService, original, proposed string) *models.ChangeRequest {
	t.Helper()
	request, err := svc.Submit(context.Background(), SubmitChangeParams{
		ResourceType: models.ResourceSitio,
		ResourceID:   5,
		ResourceName: "Sitio Malipayon",
		OriginalData: json.RawMessage(original),
		ProposedData: json.RawMessage(proposed),
		Comment:      "update population",
		Actor:        encoder,
	})
	require.NoError(t, err)
	return request
}

func TestSubmitOpensPendingRequest(t *testing.T) {
	svc, _, audit := newWorkflowFixture(nil)

	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	assert.Equal(t, models.ChangeRequestPending, request.Status)
	assert.NotEmpty(t, request.ID)
	assert.NotEmpty(t, request.BaseVersionHash)
	assert.True(t, request.StatusChangeSeenBySubmitter)
	require.Len(t, request.RevisionHistory, 1)
	assert.Equal(t, models.RevisionSubmitted, request.RevisionHistory[0].Action)
	assert.Equal(t, []string{models.AuditActionChangeSubmit}, audit.actions())
}

func TestSubmitSupersedesEarlierPending(t *testing.T) {
	svc, store, _ := newWorkflowFixture(nil)

	first := submitSample(t, svc, `{"population":100}`, `{"population":110}`)
	second := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	stored, err := store.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestSuperseded, stored.Status)
	last := stored.RevisionHistory[len(stored.RevisionHistory)-1]
	assert.Equal(t, models.RevisionSuperseded, last.Action)

	active, err := svc.HasActiveForResource(context.Background(), models.ResourceSitio, 5)
	require.NoError(t, err)
	assert.True(t, active)

	// only the newest submission stays pending
	pending, err := svc.List(context.Background(), models.ChangeRequestFilter{
		Status: []models.ChangeRequestStatus{models.ChangeRequestPending},
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)

	_, err := svc.Submit(context.Background(), SubmitChangeParams{
		ResourceType: "household",
		ResourceID:   1,
		ProposedData: json.RawMessage(`{}`),
		Actor:        encoder,
	})
	requireErrorCode(t, err, appErrors.ErrValidation.Code)

	_, err = svc.Submit(context.Background(), SubmitChangeParams{
		ResourceType: models.ResourceSitio,
		ResourceID:   1,
		ProposedData: json.RawMessage(`{"population":`),
		Actor:        encoder,
	})
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestApproveMatchingBaseline(t *testing.T) {
	// key order differs from the submitted snapshot; the fingerprint must
	// not care
	svc, _, audit := newWorkflowFixture(json.RawMessage(`{"name":"Malipayon","population":100}`))

	request, err := svc.Submit(context.Background(), SubmitChangeParams{
		ResourceType: models.ResourceSitio,
		ResourceID:   5,
		ResourceName: "Sitio Malipayon",
		OriginalData: json.RawMessage(`{"population":100,"name":"Malipayon"}`),
		ProposedData: json.RawMessage(`{"population":120}`),
		Actor:        encoder,
	})
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), request.ID, "looks good", reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, approved.Status)
	require.NotNil(t, approved.ReviewedByID)
	assert.Equal(t, reviewer.ID, *approved.ReviewedByID)
	require.NotNil(t, approved.ReviewerComment)
	assert.Equal(t, "looks good", *approved.ReviewerComment)
	assert.False(t, approved.StatusChangeSeenBySubmitter)
	require.Len(t, approved.RevisionHistory, 2)
	assert.Equal(t, models.RevisionApproved, approved.RevisionHistory[1].Action)
	assert.Contains(t, audit.actions(), models.AuditActionChangeApprove)
}

func TestApproveForbidsSelfReview(t *testing.T) {
	svc, _, _ := newWorkflowFixture(json.RawMessage(`{"population":100}`))
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	_, err := svc.Approve(context.Background(), request.ID, "", encoder)
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)

	reloaded, err := svc.Get(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestPending, reloaded.Status)
}

func TestApproveDetectsBaselineDrift(t *testing.T) {
	svc, store, audit := newWorkflowFixture(json.RawMessage(`{"population":150}`))
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	conflicted, err := svc.Approve(context.Background(), request.ID, "", reviewer)
	requireErrorCode(t, err, appErrors.ErrStaleBaseline.Code)
	require.NotNil(t, conflicted)
	assert.Equal(t, models.ChangeRequestConflict, conflicted.Status)
	require.NotNil(t, conflicted.ConflictDetails)
	assert.Equal(t, request.BaseVersionHash, conflicted.ConflictDetails.BaseHash)
	assert.NotEqual(t, conflicted.ConflictDetails.BaseHash, conflicted.ConflictDetails.CurrentHash)
	assert.JSONEq(t, `{"population":150}`, string(conflicted.ConflictDetails.CurrentData))
	assert.JSONEq(t, `{"population":120}`, string(conflicted.ConflictDetails.ProposedData))
	assert.False(t, conflicted.StatusChangeSeenBySubmitter)
	last := conflicted.RevisionHistory[len(conflicted.RevisionHistory)-1]
	assert.Equal(t, models.RevisionConflictDetected, last.Action)
	assert.Contains(t, audit.actions(), models.AuditActionChangeConflict)

	stored, err := store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestConflict, stored.Status)
}

func TestApproveRequiresPendingStatus(t *testing.T) {
	svc, _, _ := newWorkflowFixture(json.RawMessage(`{"population":100}`))
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	_, err := svc.Approve(context.Background(), request.ID, "", reviewer)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), request.ID, "", reviewer)
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestRejectClearsConflictDetails(t *testing.T) {
	svc, _, _ := newWorkflowFixture(json.RawMessage(`{"population":150}`))
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	_, err := svc.Approve(context.Background(), request.ID, "", reviewer)
	requireErrorCode(t, err, appErrors.ErrStaleBaseline.Code)

	rejected, err := svc.Reject(context.Background(), request.ID, "out of date", reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestRejected, rejected.Status)
	assert.Nil(t, rejected.ConflictDetails)
	last := rejected.RevisionHistory[len(rejected.RevisionHistory)-1]
	assert.Equal(t, models.RevisionRejected, last.Action)
}

func TestRequestRevisionRequiresComment(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)

	_, err := svc.RequestRevision(context.Background(), request.ID, "   ", reviewer)
	requireErrorCode(t, err, appErrors.ErrValidation.Code)

	_, err = svc.RequestRevision(context.Background(), request.ID, "check the census source", encoder)
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)

	revised, err := svc.RequestRevision(context.Background(), request.ID, "check the census source", reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestNeedsRevision, revised.Status)
	assert.False(t, revised.StatusChangeSeenBySubmitter)
}

func TestResubmitNeedsRevisionMutatesInPlace(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)
	_, err := svc.RequestRevision(context.Background(), request.ID, "use 2024 numbers", reviewer)
	require.NoError(t, err)

	resubmitted, err := svc.Resubmit(context.Background(), request.ID, json.RawMessage(`{"population":118}`), "updated per 2024 census", encoder)
	require.NoError(t, err)
	assert.Equal(t, request.ID, resubmitted.ID)
	assert.Equal(t, models.ChangeRequestPending, resubmitted.Status)
	assert.JSONEq(t, `{"population":118}`, string(resubmitted.ProposedData))
	assert.Equal(t, 1, resubmitted.ResubmitCount)
	assert.Nil(t, resubmitted.ReviewedByID)
	assert.Nil(t, resubmitted.ReviewedAt)
	assert.Nil(t, resubmitted.ReviewerComment)
	assert.True(t, resubmitted.StatusChangeSeenBySubmitter)
	last := resubmitted.RevisionHistory[len(resubmitted.RevisionHistory)-1]
	assert.Equal(t, models.RevisionResubmitted, last.Action)
}

func TestResubmitRejectedCreatesLinkedRequest(t *testing.T) {
	svc, store, _ := newWorkflowFixture(nil)
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)
	_, err := svc.Reject(context.Background(), request.ID, "not credible", reviewer)
	require.NoError(t, err)

	successor, err := svc.Resubmit(context.Background(), request.ID, json.RawMessage(`{"population":115}`), "with barangay certification", encoder)
	require.NoError(t, err)
	assert.NotEqual(t, request.ID, successor.ID)
	assert.Equal(t, models.ChangeRequestPending, successor.Status)
	require.NotNil(t, successor.OriginalSubmissionID)
	assert.Equal(t, request.ID, *successor.OriginalSubmissionID)
	assert.Equal(t, 0, successor.ResubmitCount)

	// the rejected record stays terminal and untouched
	original, err := store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestRejected, original.Status)
}

func TestResubmitOnlyBySubmitter(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)
	_, err := svc.RequestRevision(context.Background(), request.ID, "needs source", reviewer)
	require.NoError(t, err)

	_, err = svc.Resubmit(context.Background(), request.ID, json.RawMessage(`{"population":118}`), "", reviewer)
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)
}

func TestResolveConflictStrategies(t *testing.T) {
	makeConflicted := func(t *testing.T) (*ChangeRequestService, string) {
		t.Helper()
		svc, _, _ := newWorkflowFixture(json.RawMessage(`{"population":150}`))
		request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)
		_, err := svc.Approve(context.Background(), request.ID, "", reviewer)
		requireErrorCode(t, err, appErrors.ErrStaleBaseline.Code)
		return svc, request.ID
	}

	t.Run("apply proposed", func(t *testing.T) {
		svc, id := makeConflicted(t)
		resolved, err := svc.ResolveConflict(context.Background(), id, models.StrategyApplyProposed, nil, reviewer)
		require.NoError(t, err)
		assert.Equal(t, models.ChangeRequestApproved, resolved.Status)
		assert.Nil(t, resolved.ConflictDetails)
		assert.JSONEq(t, `{"population":120}`, string(resolved.ProposedData))
	})

	t.Run("discard", func(t *testing.T) {
		svc, id := makeConflicted(t)
		resolved, err := svc.ResolveConflict(context.Background(), id, models.StrategyDiscard, nil, reviewer)
		require.NoError(t, err)
		assert.Equal(t, models.ChangeRequestRejected, resolved.Status)
		assert.Nil(t, resolved.ConflictDetails)
	})

	t.Run("manual merge", func(t *testing.T) {
		svc, id := makeConflicted(t)
		_, err := svc.ResolveConflict(context.Background(), id, models.StrategyManualMerge, nil, reviewer)
		requireErrorCode(t, err, appErrors.ErrValidation.Code)

		resolved, err := svc.ResolveConflict(context.Background(), id, models.StrategyManualMerge, json.RawMessage(`{"population":135}`), reviewer)
		require.NoError(t, err)
		assert.Equal(t, models.ChangeRequestApproved, resolved.Status)
		assert.JSONEq(t, `{"population":135}`, string(resolved.ProposedData))
		assert.Nil(t, resolved.ConflictDetails)
		last := resolved.RevisionHistory[len(resolved.RevisionHistory)-1]
		assert.Equal(t, models.RevisionConflictResolved, last.Action)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		svc, id := makeConflicted(t)
		_, err := svc.ResolveConflict(context.Background(), id, "coin_flip", nil, reviewer)
		requireErrorCode(t, err, appErrors.ErrValidation.Code)
	})
}

func TestRevisionHistoryGrowsMonotonically(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)
	lengths := []int{len(request.RevisionHistory)}

	revised, err := svc.RequestRevision(context.Background(), request.ID, "source needed", reviewer)
	require.NoError(t, err)
	lengths = append(lengths, len(revised.RevisionHistory))

	resubmitted, err := svc.Resubmit(context.Background(), request.ID, json.RawMessage(`{"population":118}`), "", encoder)
	require.NoError(t, err)
	lengths = append(lengths, len(resubmitted.RevisionHistory))

	rejected, err := svc.Reject(context.Background(), request.ID, "still unsourced", reviewer)
	require.NoError(t, err)
	lengths = append(lengths, len(rejected.RevisionHistory))

	for i := 1; i < len(lengths); i++ {
		assert.Equal(t, lengths[i-1]+1, lengths[i])
	}
}

func TestUnseenAndMarkSeen(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)
	request := submitSample(t, svc, `{"population":100}`, `{"population":120}`)
	_, err := svc.RequestRevision(context.Background(), request.ID, "needs source", reviewer)
	require.NoError(t, err)

	unseen, err := svc.UnseenForSubmitter(context.Background(), encoder.ID)
	require.NoError(t, err)
	require.Len(t, unseen, 1)

	// another submitter cannot acknowledge someone else's requests
	updated, err := svc.MarkSeen(context.Background(), []string{request.ID}, reviewer)
	require.NoError(t, err)
	assert.Zero(t, updated)

	updated, err = svc.MarkSeen(context.Background(), []string{request.ID}, encoder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	unseen, err = svc.UnseenForSubmitter(context.Background(), encoder.ID)
	require.NoError(t, err)
	assert.Empty(t, unseen)
}

func TestGetUnknownRequest(t *testing.T) {
	svc, _, _ := newWorkflowFixture(nil)
	_, err := svc.Get(context.Background(), "missing")
	requireErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestCounts(t *testing.T) {
	svc, _, _ := newWorkflowFixture(json.RawMessage(`{"population":100}`))
	first := submitSample(t, svc, `{"population":100}`, `{"population":110}`)
	_, err := svc.Approve(context.Background(), first.ID, "", reviewer)
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), SubmitChangeParams{
		ResourceType: models.ResourceProject,
		ResourceID:   9,
		ResourceName: "Water system",
		OriginalData: json.RawMessage(`{"budget":50000}`),
		ProposedData: json.RawMessage(`{"budget":75000}`),
		Actor:        encoder,
	})
	require.NoError(t, err)
	_ = second

	counts, err := svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Approved)
	assert.Equal(t, 1, counts.Pending)
}

type corruptStore struct {
	*memoryChangeRequestStore
}

func (c *corruptStore) GetByID(context.Context, string) (*models.ChangeRequest, error) {
	return nil, fmt.Errorf("decode revision history: %w: unexpected end of JSON input", models.ErrMalformedColumn)
}

func TestGetSurfacesCorruptRow(t *testing.T) {
	store := &corruptStore{memoryChangeRequestStore: newMemoryChangeRequestStore()}
	svc := NewChangeRequestService(store, &liveStub{}, &auditStub{}, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), "req-1")
	requireErrorCode(t, err, appErrors.ErrCorruptRecord.Code)
}

func requireErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, code, appErr.Code)
}
