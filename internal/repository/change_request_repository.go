package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sitiograph/sitio-profile-api/internal/models"
)

const changeRequestColumns = `id, resource_type, resource_id, resource_name, original_data, proposed_data,
       base_version_hash, status, submitted_by_id, submitted_by_name, submitted_at, submitter_comment,
       reviewed_by_id, reviewed_by_name, reviewed_at, reviewer_comment, conflict_details,
       revision_history, status_seen, resubmit_count, original_submission_id`

// ChangeRequestRepository persists review workflow data.
type ChangeRequestRepository struct {
	db *sqlx.DB
}

// NewChangeRequestRepository constructs the repository.
func NewChangeRequestRepository(db *sqlx.DB) *ChangeRequestRepository {
	return &ChangeRequestRepository{db: db}
}

// Create inserts a new change request row.
func (r *ChangeRequestRepository) Create(ctx context.Context, request *models.ChangeRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ChangeRequestPending
	}
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_requests
	(id, resource_type, resource_id, resource_name, original_data, proposed_data, base_version_hash,
	 status, submitted_by_id, submitted_by_name, submitted_at, submitter_comment,
	 reviewed_by_id, reviewed_by_name, reviewed_at, reviewer_comment, conflict_details,
	 revision_history, status_seen, resubmit_count, original_submission_id)
	VALUES (:id, :resource_type, :resource_id, :resource_name, :original_data, :proposed_data, :base_version_hash,
	 :status, :submitted_by_id, :submitted_by_name, :submitted_at, :submitter_comment,
	 :reviewed_by_id, :reviewed_by_name, :reviewed_at, :reviewer_comment, :conflict_details,
	 :revision_history, :status_seen, :resubmit_count, :original_submission_id)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

// GetByID fetches a change request by identifier.
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id string) (*models.ChangeRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM change_requests WHERE id = $1", changeRequestColumns)
	var request models.ChangeRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// Update persists every mutable column of an existing request.
func (r *ChangeRequestRepository) Update(ctx context.Context, request *models.ChangeRequest) error {
	const query = `UPDATE change_requests SET
	 proposed_data = :proposed_data,
	 status = :status,
	 reviewed_by_id = :reviewed_by_id,
	 reviewed_by_name = :reviewed_by_name,
	 reviewed_at = :reviewed_at,
	 reviewer_comment = :reviewer_comment,
	 conflict_details = :conflict_details,
	 revision_history = :revision_history,
	 status_seen = :status_seen,
	 resubmit_count = :resubmit_count
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, request)
	if err != nil {
		return fmt.Errorf("update change request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check change request update rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("change request %s not found", request.ID)
	}
	return nil
}

// List returns change requests matching the filter (latest first).
func (r *ChangeRequestRepository) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM change_requests", changeRequestColumns))

	conditions := make([]string, 0, 6)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if filter.ResourceID != nil {
		args = append(args, *filter.ResourceID)
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)))
	}
	if filter.SubmittedByID != nil {
		args = append(args, *filter.SubmittedByID)
		conditions = append(conditions, fmt.Sprintf("submitted_by_id = $%d", len(args)))
	}
	if filter.SubmittedFrom != nil {
		args = append(args, *filter.SubmittedFrom)
		conditions = append(conditions, fmt.Sprintf("submitted_at >= $%d", len(args)))
	}
	if filter.SubmittedTo != nil {
		args = append(args, *filter.SubmittedTo)
		conditions = append(conditions, fmt.Sprintf("submitted_at <= $%d", len(args)))
	}
	if filter.UnseenOnly {
		conditions = append(conditions, "status_seen = FALSE")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ChangeRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return requests, nil
}

// CountByStatus returns the per-status ledger summary.
func (r *ChangeRequestRepository) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	const query = `SELECT status, COUNT(*) AS total FROM change_requests GROUP BY status`
	rows := []struct {
		Status models.ChangeRequestStatus `db:"status"`
		Total  int                        `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return models.StatusCounts{}, fmt.Errorf("count change requests: %w", err)
	}
	counts := models.StatusCounts{}
	for _, row := range rows {
		switch row.Status {
		case models.ChangeRequestPending:
			counts.Pending = row.Total
		case models.ChangeRequestApproved:
			counts.Approved = row.Total
		case models.ChangeRequestRejected:
			counts.Rejected = row.Total
		case models.ChangeRequestConflict:
			counts.Conflict = row.Total
		case models.ChangeRequestNeedsRevision:
			counts.NeedsRevision = row.Total
		case models.ChangeRequestSuperseded:
			counts.Superseded = row.Total
		}
	}
	return counts, nil
}

// MarkSeen flags status changes as acknowledged by their submitter. Only
// rows owned by the submitter are touched.
func (r *ChangeRequestRepository) MarkSeen(ctx context.Context, ids []string, submitterID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, submitterID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(
		"UPDATE change_requests SET status_seen = TRUE WHERE submitted_by_id = $1 AND id IN (%s)",
		strings.Join(placeholders, ","),
	)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark change requests seen: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check mark seen rows: %w", err)
	}
	return rows, nil
}
