package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sitiograph/sitio-profile-api/internal/models"
)

const sitioColumns = `id, name, barangay, municipality, province, latitude, longitude,
       gida, indigenous, conflict_affected, available_years, profiles, created_at, updated_at`

// SitioRepository persists sitio records and their yearly profile snapshots.
type SitioRepository struct {
	db *sqlx.DB
}

// NewSitioRepository constructs the repository.
func NewSitioRepository(db *sqlx.DB) *SitioRepository {
	return &SitioRepository{db: db}
}

// SitioListFilter narrows geographic scope for list queries.
type SitioListFilter struct {
	Municipality string
	Barangay     string
	Search       string
}

// List returns sitio records matching the filter, ordered by name.
func (r *SitioRepository) List(ctx context.Context, filter SitioListFilter) ([]models.SitioRecord, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM sitios", sitioColumns))

	conditions := make([]string, 0, 3)
	if filter.Municipality != "" {
		args = append(args, filter.Municipality)
		conditions = append(conditions, fmt.Sprintf("municipality = $%d", len(args)))
	}
	if filter.Barangay != "" {
		args = append(args, filter.Barangay)
		conditions = append(conditions, fmt.Sprintf("barangay = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY name ASC")

	var sitios []models.SitioRecord
	if err := r.db.SelectContext(ctx, &sitios, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list sitios: %w", err)
	}
	return sitios, nil
}

// GetByID fetches one sitio record.
func (r *SitioRepository) GetByID(ctx context.Context, id int64) (*models.SitioRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM sitios WHERE id = $1", sitioColumns)
	var sitio models.SitioRecord
	if err := r.db.GetContext(ctx, &sitio, query, id); err != nil {
		return nil, err
	}
	return &sitio, nil
}

// Create inserts a new sitio record and fills in the generated id.
func (r *SitioRepository) Create(ctx context.Context, sitio *models.SitioRecord) error {
	now := time.Now().UTC()
	if sitio.CreatedAt.IsZero() {
		sitio.CreatedAt = now
	}
	sitio.UpdatedAt = now
	if sitio.Profiles == nil {
		sitio.Profiles = models.ProfileMap{}
	}
	const query = `INSERT INTO sitios
	(name, barangay, municipality, province, latitude, longitude, gida, indigenous, conflict_affected,
	 available_years, profiles, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id`
	row := r.db.QueryRowxContext(ctx, query,
		sitio.Name, sitio.Barangay, sitio.Municipality, sitio.Province,
		sitio.Latitude, sitio.Longitude, sitio.GIDA, sitio.Indigenous, sitio.ConflictAffected,
		sitio.AvailableYears, sitio.Profiles, sitio.CreatedAt, sitio.UpdatedAt,
	)
	if err := row.Scan(&sitio.ID); err != nil {
		return fmt.Errorf("create sitio: %w", err)
	}
	return nil
}

// Update persists the full record state.
func (r *SitioRepository) Update(ctx context.Context, sitio *models.SitioRecord) error {
	sitio.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sitios SET
	 name = :name, barangay = :barangay, municipality = :municipality, province = :province,
	 latitude = :latitude, longitude = :longitude, gida = :gida, indigenous = :indigenous,
	 conflict_affected = :conflict_affected, available_years = :available_years,
	 profiles = :profiles, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, sitio)
	if err != nil {
		return fmt.Errorf("update sitio: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check sitio update rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sitio %d not found", sitio.ID)
	}
	return nil
}

// Delete removes a sitio record.
func (r *SitioRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sitios WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete sitio: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check sitio delete rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sitio %d not found", id)
	}
	return nil
}
