package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

type memorySitioStore struct {
	seq     int64
	records map[int64]models.SitioRecord
}

func newMemorySitioStore(seed ...models.SitioRecord) *memorySitioStore {
	store := &memorySitioStore{records: make(map[int64]models.SitioRecord)}
	for _, record := range seed {
		if record.ID > store.seq {
			store.seq = record.ID
		}
		store.records[record.ID] = record
	}
	return store
}

func (m *memorySitioStore) GetByID(_ context.Context, id int64) (*models.SitioRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &record, nil
}

func (m *memorySitioStore) Create(_ context.Context, sitio *models.SitioRecord) error {
	m.seq++
	sitio.ID = m.seq
	m.records[sitio.ID] = *sitio
	return nil
}

func (m *memorySitioStore) Update(_ context.Context, sitio *models.SitioRecord) error {
	if _, ok := m.records[sitio.ID]; !ok {
		return sql.ErrNoRows
	}
	m.records[sitio.ID] = *sitio
	return nil
}

type memoryProjectStore struct {
	seq      int64
	projects map[int64]models.Project
}

func newMemoryProjectStore() *memoryProjectStore {
	return &memoryProjectStore{projects: make(map[int64]models.Project)}
}

func (m *memoryProjectStore) GetByID(_ context.Context, id int64) (*models.Project, error) {
	project, ok := m.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &project, nil
}

func (m *memoryProjectStore) Create(_ context.Context, project *models.Project) error {
	m.seq++
	project.ID = m.seq
	m.projects[project.ID] = *project
	return nil
}

func (m *memoryProjectStore) Update(_ context.Context, project *models.Project) error {
	if _, ok := m.projects[project.ID]; !ok {
		return sql.ErrNoRows
	}
	m.projects[project.ID] = *project
	return nil
}

type invalidatorStub struct {
	calls int
}

func (i *invalidatorStub) InvalidateAnalytics(context.Context) error {
	i.calls++
	return nil
}

func sampleSitio() models.SitioRecord {
	return models.SitioRecord{
		ID:             5,
		Name:           "Sitio Malipayon",
		Barangay:       "Poblacion",
		Municipality:   "San Isidro",
		Province:       "Leyte",
		AvailableYears: []string{"2024"},
		Profiles: models.ProfileMap{
			"2024": {
				Year:         "2024",
				Demographics: models.Demographics{Population: 100, Households: 20},
			},
		},
	}
}

func newReviewFixture(t *testing.T, sitios *memorySitioStore) (*ReviewService, *memorySitioStore, *invalidatorStub) {
	t.Helper()
	if sitios == nil {
		sitios = newMemorySitioStore(sampleSitio())
	}
	registry := NewAdapterRegistry(
		NewSitioAdapter(sitios),
		NewProjectAdapter(newMemoryProjectStore()),
	)
	workflow := NewChangeRequestService(newMemoryChangeRequestStore(), registry, &auditStub{}, nil, zap.NewNop())
	cache := &invalidatorStub{}
	return NewReviewService(workflow, registry, cache, zap.NewNop()), sitios, cache
}

func TestReviewApproveAppliesPatch(t *testing.T) {
	svc, sitios, cache := newReviewFixture(t, nil)

	proposed := json.RawMessage(`{"profiles":{"2024":{"year":"2024","demographics":{"population":120,"households":20}}}}`)
	request, err := svc.SubmitForReview(context.Background(), models.ResourceSitio, 5, proposed, "census correction", encoder)
	require.NoError(t, err)
	assert.Equal(t, "Sitio Malipayon", request.ResourceName)
	assert.Equal(t, models.ChangeRequestPending, request.Status)

	approved, err := svc.ApproveAndApply(context.Background(), request.ID, "verified", reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, approved.Status)

	updated, err := sitios.GetByID(context.Background(), 5)
	require.NoError(t, err)
	profile, ok := updated.ProfileFor("2024")
	require.True(t, ok)
	assert.Equal(t, 120, profile.Demographics.Population)
	assert.Equal(t, 1, cache.calls)
}

func TestReviewConcurrentEditConflictsAndMerges(t *testing.T) {
	svc, sitios, _ := newReviewFixture(t, nil)

	proposed := json.RawMessage(`{"profiles":{"2024":{"year":"2024","demographics":{"population":120}}}}`)
	request, err := svc.SubmitForReview(context.Background(), models.ResourceSitio, 5, proposed, "", encoder)
	require.NoError(t, err)

	// someone else updates the record while the request waits for review
	concurrent := sitios.records[5]
	profile := concurrent.Profiles["2024"]
	profile.Demographics.Population = 150
	concurrent.Profiles = models.ProfileMap{"2024": profile}
	sitios.records[5] = concurrent

	conflicted, err := svc.ApproveAndApply(context.Background(), request.ID, "", reviewer)
	requireErrorCode(t, err, appErrors.ErrStaleBaseline.Code)
	require.NotNil(t, conflicted)
	assert.Equal(t, models.ChangeRequestConflict, conflicted.Status)

	// the proposed value must not have leaked into the store
	current, err := sitios.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 150, current.Profiles["2024"].Demographics.Population)

	merged := json.RawMessage(`{"profiles":{"2024":{"year":"2024","demographics":{"population":135}}}}`)
	resolved, err := svc.ResolveAndApply(context.Background(), request.ID, models.StrategyManualMerge, merged, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, resolved.Status)

	current, err = sitios.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 135, current.Profiles["2024"].Demographics.Population)
}

func TestReviewDiscardLeavesRecordUntouched(t *testing.T) {
	svc, sitios, cache := newReviewFixture(t, nil)

	proposed := json.RawMessage(`{"name":"Sitio Bag-ong Malipayon"}`)
	request, err := svc.SubmitForReview(context.Background(), models.ResourceSitio, 5, proposed, "", encoder)
	require.NoError(t, err)

	renamed := sitios.records[5]
	renamed.Name = "Sitio Malipayon II"
	sitios.records[5] = renamed

	_, err = svc.ApproveAndApply(context.Background(), request.ID, "", reviewer)
	requireErrorCode(t, err, appErrors.ErrStaleBaseline.Code)

	resolved, err := svc.ResolveAndApply(context.Background(), request.ID, models.StrategyDiscard, nil, reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestRejected, resolved.Status)

	current, err := sitios.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Sitio Malipayon II", current.Name)
	assert.Zero(t, cache.calls)
}

func TestReviewNewRecordRoundTrip(t *testing.T) {
	sitios := newMemorySitioStore()
	svc, _, _ := newReviewFixture(t, sitios)

	proposed := json.RawMessage(`{"name":"Sitio Bag-o","barangay":"Riverside","municipality":"San Isidro"}`)
	request, err := svc.SubmitForReview(context.Background(), models.ResourceSitio, 0, proposed, "new settlement survey", encoder)
	require.NoError(t, err)
	assert.JSONEq(t, "null", string(request.OriginalData))

	approved, err := svc.ApproveAndApply(context.Background(), request.ID, "", reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestApproved, approved.Status)

	created, err := sitios.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Sitio Bag-o", created.Name)
	assert.Equal(t, "Riverside", created.Barangay)
}

func TestReviewSubmitUnknownResource(t *testing.T) {
	svc, _, _ := newReviewFixture(t, nil)
	_, err := svc.SubmitForReview(context.Background(), "household", 1, json.RawMessage(`{}`), "", encoder)
	requireErrorCode(t, err, appErrors.ErrValidation.Code)

	_, err = svc.SubmitForReview(context.Background(), models.ResourceSitio, 999, json.RawMessage(`{}`), "", encoder)
	requireErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestReviewHasPendingChanges(t *testing.T) {
	svc, _, _ := newReviewFixture(t, nil)

	locked, err := svc.HasPendingChanges(context.Background(), models.ResourceSitio, 5)
	require.NoError(t, err)
	assert.False(t, locked)

	_, err = svc.SubmitForReview(context.Background(), models.ResourceSitio, 5, json.RawMessage(`{"name":"x"}`), "", encoder)
	require.NoError(t, err)

	locked, err = svc.HasPendingChanges(context.Background(), models.ResourceSitio, 5)
	require.NoError(t, err)
	assert.True(t, locked)
}
