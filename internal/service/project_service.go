package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

type projectRepository interface {
	List(ctx context.Context, sitioID *int64) ([]models.Project, error)
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	Create(ctx context.Context, project *models.Project) error
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id int64) error
}

// ProjectService is the record store surface for development projects.
type ProjectService struct {
	repo    projectRepository
	changes activeChangeChecker
	audit   auditLogger
	logger  *zap.Logger
}

// NewProjectService constructs the service. changes and audit may be nil.
func NewProjectService(repo projectRepository, changes activeChangeChecker, audit auditLogger, logger *zap.Logger) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{repo: repo, changes: changes, audit: audit, logger: logger}
}

// List returns projects, optionally scoped to one sitio.
func (s *ProjectService) List(ctx context.Context, sitioID *int64) ([]models.Project, error) {
	projects, err := s.repo.List(ctx, sitioID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	return projects, nil
}

// Get fetches one project.
func (s *ProjectService) Get(ctx context.Context, id int64) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("project %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

// Create inserts a new project from the patch.
func (s *ProjectService) Create(ctx context.Context, patch models.ProjectPatch, actor models.Actor) (*models.Project, error) {
	if patch.Name == nil || *patch.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a new project requires a name")
	}
	project := &models.Project{}
	patch.Apply(project)
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}
	s.recordAudit(ctx, models.AuditActionRecordCreate, project.ID, project.Name, nil, project, actor)
	return project, nil
}

// Update merges the patch into the stored project.
func (s *ProjectService) Update(ctx context.Context, id int64, patch models.ProjectPatch, actor models.Actor) (*models.Project, error) {
	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *project
	patch.Apply(project)
	if err := s.repo.Update(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}
	s.recordAudit(ctx, models.AuditActionRecordUpdate, project.ID, project.Name, &before, project, actor)
	return project, nil
}

// Delete removes a project unless an active change request targets it.
func (s *ProjectService) Delete(ctx context.Context, id int64, actor models.Actor) error {
	project, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.changes != nil {
		active, err := s.changes.HasActiveForResource(ctx, models.ResourceProject, id)
		if err != nil {
			return err
		}
		if active {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "project has an active change request")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	s.recordAudit(ctx, models.AuditActionRecordDelete, id, project.Name, project, nil, actor)
	return nil
}

func (s *ProjectService) recordAudit(ctx context.Context, action string, id int64, name string, oldValue, newValue interface{}, actor models.Actor) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Action:       action,
		ResourceType: models.ResourceProject,
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
		s.logger.Warn("failed to record project audit log", zap.Error(err))
	}
}
