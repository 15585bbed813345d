package service

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

func (m *memorySitioStore) List(_ context.Context, filter repository.SitioListFilter) ([]models.SitioRecord, error) {
	var out []models.SitioRecord
	for _, record := range m.records {
		if filter.Municipality != "" && record.Municipality != filter.Municipality {
			continue
		}
		if filter.Barangay != "" && record.Barangay != filter.Barangay {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(record.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memorySitioStore) Delete(_ context.Context, id int64) error {
	delete(m.records, id)
	return nil
}

type activeCheckerStub struct {
	active bool
}

func (a *activeCheckerStub) HasActiveForResource(context.Context, models.ResourceKind, int64) (bool, error) {
	return a.active, nil
}

func newSitioServiceFixture(checker *activeCheckerStub) (*SitioService, *memorySitioStore, *auditStub, *invalidatorStub) {
	store := newMemorySitioStore(sampleSitio())
	audit := &auditStub{}
	invalidator := &invalidatorStub{}
	svc := NewSitioService(store, checker, invalidator, audit, zap.NewNop())
	return svc, store, audit, invalidator
}

func TestSitioServiceCreateRequiresName(t *testing.T) {
	svc, _, _, _ := newSitioServiceFixture(nil)
	_, err := svc.Create(context.Background(), models.SitioPatch{}, encoder)
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestSitioServiceCreateAuditsAndInvalidates(t *testing.T) {
	svc, store, audit, invalidator := newSitioServiceFixture(nil)
	name := "Sitio Bagong Silang"
	created, err := svc.Create(context.Background(), models.SitioPatch{Name: &name}, encoder)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Contains(t, store.records, created.ID)
	assert.Equal(t, []string{models.AuditActionRecordCreate}, audit.actions())
	assert.Equal(t, 1, invalidator.calls)
}

func TestSitioServiceUpdateMergesPatch(t *testing.T) {
	svc, store, audit, _ := newSitioServiceFixture(nil)
	barangay := "Canlusay"
	updated, err := svc.Update(context.Background(), 5, models.SitioPatch{Barangay: &barangay}, encoder)
	require.NoError(t, err)
	assert.Equal(t, "Canlusay", updated.Barangay)
	assert.Equal(t, "Sitio Malipayon", updated.Name)
	assert.Equal(t, "Canlusay", store.records[5].Barangay)
	assert.Equal(t, []string{models.AuditActionRecordUpdate}, audit.actions())
}

func TestSitioServiceDeleteBlockedByActiveRequest(t *testing.T) {
	svc, store, _, invalidator := newSitioServiceFixture(&activeCheckerStub{active: true})
	err := svc.Delete(context.Background(), 5, encoder)
	requireErrorCode(t, err, appErrors.ErrPreconditionFailed.Code)
	assert.Contains(t, store.records, int64(5))
	assert.Zero(t, invalidator.calls)
}

func TestSitioServiceDeleteRemovesRecord(t *testing.T) {
	svc, store, audit, invalidator := newSitioServiceFixture(&activeCheckerStub{})
	require.NoError(t, svc.Delete(context.Background(), 5, encoder))
	assert.NotContains(t, store.records, int64(5))
	assert.Equal(t, []string{models.AuditActionRecordDelete}, audit.actions())
	assert.Equal(t, 1, invalidator.calls)
}

func TestSitioServiceGetUnknown(t *testing.T) {
	svc, _, _, _ := newSitioServiceFixture(nil)
	_, err := svc.Get(context.Background(), 404)
	requireErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestSitioServiceListFilters(t *testing.T) {
	svc, store, _, _ := newSitioServiceFixture(nil)
	other := sampleSitio()
	other.ID = 6
	other.Name = "Sitio Ibabao"
	other.Municipality = "Carigara"
	store.records[other.ID] = other

	all, err := svc.List(context.Background(), repository.SitioListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := svc.List(context.Background(), repository.SitioListFilter{Municipality: "Carigara"})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "Sitio Ibabao", scoped[0].Name)
}
