package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

func (m *memoryProjectStore) List(_ context.Context, sitioID *int64) ([]models.Project, error) {
	var out []models.Project
	for _, project := range m.projects {
		if sitioID != nil && project.SitioID != *sitioID {
			continue
		}
		out = append(out, project)
	}
	return out, nil
}

func (m *memoryProjectStore) Delete(_ context.Context, id int64) error {
	delete(m.projects, id)
	return nil
}

func newProjectServiceFixture(checker *activeCheckerStub) (*ProjectService, *memoryProjectStore, *auditStub) {
	store := newMemoryProjectStore()
	audit := &auditStub{}
	svc := NewProjectService(store, checker, audit, zap.NewNop())
	return svc, store, audit
}

func TestProjectServiceCreateAndScopeList(t *testing.T) {
	svc, _, audit := newProjectServiceFixture(nil)
	name := "Solar street lighting"
	sitioID := int64(5)
	created, err := svc.Create(context.Background(), models.ProjectPatch{Name: &name, SitioID: &sitioID}, encoder)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, []string{models.AuditActionRecordCreate}, audit.actions())

	otherName := "Farm-to-market road"
	otherSitio := int64(9)
	_, err = svc.Create(context.Background(), models.ProjectPatch{Name: &otherName, SitioID: &otherSitio}, encoder)
	require.NoError(t, err)

	scoped, err := svc.List(context.Background(), &sitioID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "Solar street lighting", scoped[0].Name)
}

func TestProjectServiceUpdateUnknown(t *testing.T) {
	svc, _, _ := newProjectServiceFixture(nil)
	budget := 1_500_000.0
	_, err := svc.Update(context.Background(), 42, models.ProjectPatch{Budget: &budget}, encoder)
	requireErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestProjectServiceDeleteBlockedByActiveRequest(t *testing.T) {
	svc, store, _ := newProjectServiceFixture(&activeCheckerStub{active: true})
	name := "Water system upgrade"
	created, err := svc.Create(context.Background(), models.ProjectPatch{Name: &name}, encoder)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), created.ID, encoder)
	requireErrorCode(t, err, appErrors.ErrPreconditionFailed.Code)
	assert.Contains(t, store.projects, created.ID)
}
