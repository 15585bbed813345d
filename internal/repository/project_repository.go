package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sitiograph/sitio-profile-api/internal/models"
)

const projectColumns = `id, name, sitio_id, sector, status, budget, fund_source, years, description,
       created_at, updated_at`

// ProjectRepository persists development project records.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository constructs the repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// List returns all projects, optionally scoped to one sitio.
func (r *ProjectRepository) List(ctx context.Context, sitioID *int64) ([]models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects", projectColumns)
	args := []interface{}{}
	if sitioID != nil {
		query += " WHERE sitio_id = $1"
		args = append(args, *sitioID)
	}
	query += " ORDER BY name ASC"

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// GetByID fetches one project.
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*models.Project, error) {
	query := fmt.Sprintf("SELECT %s FROM projects WHERE id = $1", projectColumns)
	var project models.Project
	if err := r.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, err
	}
	return &project, nil
}

// Create inserts a new project and fills in the generated id.
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	if project.Status == "" {
		project.Status = models.ProjectProposed
	}
	const query = `INSERT INTO projects
	(name, sitio_id, sector, status, budget, fund_source, years, description, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		project.Name, project.SitioID, project.Sector, project.Status, project.Budget,
		project.FundSource, project.Years, project.Description, project.CreatedAt, project.UpdatedAt,
	)
	if err := row.Scan(&project.ID); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// Update persists the full project state.
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now().UTC()
	const query = `UPDATE projects SET
	 name = :name, sitio_id = :sitio_id, sector = :sector, status = :status, budget = :budget,
	 fund_source = :fund_source, years = :years, description = :description, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, project)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check project update rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project %d not found", project.ID)
	}
	return nil
}

// Delete removes a project.
func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check project delete rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("project %d not found", id)
	}
	return nil
}
