package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitiograph/sitio-profile-api/internal/models"
)

func newChangeRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

func TestChangeRequestRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newChangeRequestRepoMock(t)
	defer cleanup()

	repo := NewChangeRequestRepository(db)
	mock.ExpectExec("INSERT INTO change_requests").
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.ChangeRequest{
		ResourceType:    models.ResourceSitio,
		ResourceID:      5,
		ResourceName:    "Sitio Malipayon",
		OriginalData:    []byte(`{"population":100}`),
		ProposedData:    []byte(`{"population":120}`),
		BaseVersionHash: "abc123",
		SubmittedByID:   1,
		SubmittedByName: "Encoder One",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.ChangeRequestPending, request.Status)
	assert.False(t, request.SubmittedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newChangeRequestRepoMock(t)
	defer cleanup()

	repo := NewChangeRequestRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "resource_type", "resource_id", "resource_name", "original_data", "proposed_data",
		"base_version_hash", "status", "submitted_by_id", "submitted_by_name", "submitted_at",
		"submitter_comment", "reviewed_by_id", "reviewed_by_name", "reviewed_at", "reviewer_comment",
		"conflict_details", "revision_history", "status_seen", "resubmit_count", "original_submission_id",
	}).AddRow(
		"req-1", "sitio", int64(5), "Sitio Malipayon", []byte(`{"population":100}`), []byte(`{"population":120}`),
		"abc123", "PENDING", int64(1), "Encoder One", now,
		"", nil, nil, nil, nil,
		nil, []byte(`[{"action":"submitted","timestamp":"2024-01-01T00:00:00Z","actor_id":1,"actor_name":"Encoder One"}]`),
		true, 0, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM change_requests WHERE id").
		WithArgs("req-1").
		WillReturnRows(rows)

	request, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeRequestPending, request.Status)
	assert.Equal(t, int64(5), request.ResourceID)
	require.Len(t, request.RevisionHistory, 1)
	assert.Equal(t, models.RevisionSubmitted, request.RevisionHistory[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryListStatusFilter(t *testing.T) {
	db, mock, cleanup := newChangeRequestRepoMock(t)
	defer cleanup()

	repo := NewChangeRequestRepository(db)
	rows := sqlmock.NewRows([]string{"id", "resource_type", "resource_id", "status"})
	mock.ExpectQuery("SELECT (.+) FROM change_requests WHERE status IN").
		WithArgs("PENDING", "CONFLICT", "sitio").
		WillReturnRows(rows)

	_, err := repo.List(context.Background(), models.ChangeRequestFilter{
		Status:       []models.ChangeRequestStatus{models.ChangeRequestPending, models.ChangeRequestConflict},
		ResourceType: models.ResourceSitio,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRequestRepositoryMarkSeenScopedToSubmitter(t *testing.T) {
	db, mock, cleanup := newChangeRequestRepoMock(t)
	defer cleanup()

	repo := NewChangeRequestRepository(db)
	mock.ExpectExec("UPDATE change_requests SET status_seen = TRUE").
		WithArgs(int64(7), "req-1", "req-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	updated, err := repo.MarkSeen(context.Background(), []string{"req-1", "req-2"}, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	require.NoError(t, mock.ExpectationsWereMet())
}
