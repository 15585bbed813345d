package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

type sitioRepository interface {
	List(ctx context.Context, filter repository.SitioListFilter) ([]models.SitioRecord, error)
	GetByID(ctx context.Context, id int64) (*models.SitioRecord, error)
	Create(ctx context.Context, sitio *models.SitioRecord) error
	Update(ctx context.Context, sitio *models.SitioRecord) error
	Delete(ctx context.Context, id int64) error
}

type activeChangeChecker interface {
	HasActiveForResource(ctx context.Context, kind models.ResourceKind, id int64) (bool, error)
}

// SitioService is the record store surface for sitio profiles. Direct writes
// are the privilege of admins; regular edits travel through the review
// workflow instead.
type SitioService struct {
	repo    sitioRepository
	changes activeChangeChecker
	cache   cacheInvalidator
	audit   auditLogger
	logger  *zap.Logger
}

// NewSitioService constructs the service. changes, cache and audit may be nil.
func NewSitioService(repo sitioRepository, changes activeChangeChecker, cache cacheInvalidator, audit auditLogger, logger *zap.Logger) *SitioService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitioService{repo: repo, changes: changes, cache: cache, audit: audit, logger: logger}
}

// List returns sitio records matching the geographic filter.
func (s *SitioService) List(ctx context.Context, filter repository.SitioListFilter) ([]models.SitioRecord, error) {
	sitios, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sitios")
	}
	return sitios, nil
}

// Get fetches one sitio record.
func (s *SitioService) Get(ctx context.Context, id int64) (*models.SitioRecord, error) {
	sitio, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("sitio %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sitio")
	}
	return sitio, nil
}

// Create inserts a new sitio record from the patch.
func (s *SitioService) Create(ctx context.Context, patch models.SitioPatch, actor models.Actor) (*models.SitioRecord, error) {
	if patch.Name == nil || *patch.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a new sitio requires a name")
	}
	sitio := &models.SitioRecord{}
	patch.Apply(sitio)
	if err := s.repo.Create(ctx, sitio); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sitio")
	}
	s.recordAudit(ctx, models.AuditActionRecordCreate, sitio.ID, sitio.Name, nil, sitio, actor)
	s.invalidate(ctx)
	return sitio, nil
}

// Update merges the patch into the stored record.
func (s *SitioService) Update(ctx context.Context, id int64, patch models.SitioPatch, actor models.Actor) (*models.SitioRecord, error) {
	sitio, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *sitio
	patch.Apply(sitio)
	if err := s.repo.Update(ctx, sitio); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update sitio")
	}
	s.recordAudit(ctx, models.AuditActionRecordUpdate, sitio.ID, sitio.Name, &before, sitio, actor)
	s.invalidate(ctx)
	return sitio, nil
}

// Delete removes a sitio record. Records with an active change request are
// protected until the request settles.
func (s *SitioService) Delete(ctx context.Context, id int64, actor models.Actor) error {
	sitio, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.changes != nil {
		active, err := s.changes.HasActiveForResource(ctx, models.ResourceSitio, id)
		if err != nil {
			return err
		}
		if active {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "sitio has an active change request")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete sitio")
	}
	s.recordAudit(ctx, models.AuditActionRecordDelete, id, sitio.Name, sitio, nil, actor)
	s.invalidate(ctx)
	return nil
}

func (s *SitioService) recordAudit(ctx context.Context, action string, id int64, name string, oldValue, newValue interface{}, actor models.Actor) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Action:       action,
		ResourceType: models.ResourceSitio,
		ResourceID:   &id,
		ResourceName: &name,
	}
	if oldValue != nil {
		entry.OldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		entry.NewValues, _ = json.Marshal(newValue)
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record sitio audit log", zap.Error(err))
	}
}

func (s *SitioService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAnalytics(ctx); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}
