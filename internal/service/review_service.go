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

// ResourceAdapter binds one reviewable resource kind to its record store.
// Each adapter knows how to snapshot the current state and how to apply an
// approved patch.
type ResourceAdapter interface {
	Kind() models.ResourceKind
	// Current returns the live snapshot and display name. For id 0 (a
	// request that creates a new record) it returns JSON null.
	Current(ctx context.Context, id int64) (json.RawMessage, string, error)
	// Apply merges the proposed patch into the record, creating it when id
	// is 0, and returns the record id.
	Apply(ctx context.Context, id int64, proposed json.RawMessage) (int64, error)
}

// AdapterRegistry dispatches on resource kind. It doubles as the live
// snapshot provider for conflict detection.
type AdapterRegistry struct {
	adapters map[models.ResourceKind]ResourceAdapter
}

// NewAdapterRegistry indexes the given adapters by kind.
func NewAdapterRegistry(adapters ...ResourceAdapter) *AdapterRegistry {
	registry := &AdapterRegistry{adapters: make(map[models.ResourceKind]ResourceAdapter, len(adapters))}
	for _, adapter := range adapters {
		registry.adapters[adapter.Kind()] = adapter
	}
	return registry
}

// Adapter resolves the adapter for a kind.
func (r *AdapterRegistry) Adapter(kind models.ResourceKind) (ResourceAdapter, error) {
	adapter, ok := r.adapters[kind]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resource type: %s", kind))
	}
	return adapter, nil
}

// Snapshot implements LiveSnapshotProvider.
func (r *AdapterRegistry) Snapshot(ctx context.Context, kind models.ResourceKind, id int64) (json.RawMessage, error) {
	adapter, err := r.Adapter(kind)
	if err != nil {
		return nil, err
	}
	current, _, err := adapter.Current(ctx, id)
	return current, err
}

type sitioStore interface {
	GetByID(ctx context.Context, id int64) (*models.SitioRecord, error)
	Create(ctx context.Context, sitio *models.SitioRecord) error
	Update(ctx context.Context, sitio *models.SitioRecord) error
}

// SitioAdapter reviews changes against sitio records.
type SitioAdapter struct {
	store sitioStore
}

// NewSitioAdapter constructs the adapter.
func NewSitioAdapter(store sitioStore) *SitioAdapter {
	return &SitioAdapter{store: store}
}

// Kind implements ResourceAdapter.
func (a *SitioAdapter) Kind() models.ResourceKind { return models.ResourceSitio }

// Current implements ResourceAdapter.
func (a *SitioAdapter) Current(ctx context.Context, id int64) (json.RawMessage, string, error) {
	if id == 0 {
		return json.RawMessage("null"), "", nil
	}
	sitio, err := a.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("sitio %d not found", id))
		}
		return nil, "", fmt.Errorf("load sitio %d: %w", id, err)
	}
	raw, err := json.Marshal(sitio)
	if err != nil {
		return nil, "", fmt.Errorf("marshal sitio %d: %w", id, err)
	}
	return raw, sitio.Name, nil
}

// Apply implements ResourceAdapter.
func (a *SitioAdapter) Apply(ctx context.Context, id int64, proposed json.RawMessage) (int64, error) {
	var patch models.SitioPatch
	if err := json.Unmarshal(proposed, &patch); err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("malformed sitio patch: %v", err))
	}
	if id == 0 {
		if patch.Name == nil || *patch.Name == "" {
			return 0, appErrors.Clone(appErrors.ErrValidation, "a new sitio requires a name")
		}
		sitio := &models.SitioRecord{}
		patch.Apply(sitio)
		if err := a.store.Create(ctx, sitio); err != nil {
			return 0, fmt.Errorf("create sitio: %w", err)
		}
		return sitio.ID, nil
	}
	sitio, err := a.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("sitio %d not found", id))
		}
		return 0, fmt.Errorf("load sitio %d: %w", id, err)
	}
	patch.Apply(sitio)
	if err := a.store.Update(ctx, sitio); err != nil {
		return 0, fmt.Errorf("update sitio %d: %w", id, err)
	}
	return sitio.ID, nil
}

type projectStore interface {
	GetByID(ctx context.Context, id int64) (*models.Project, error)
	Create(ctx context.Context, project *models.Project) error
	Update(ctx context.Context, project *models.Project) error
}

// ProjectAdapter reviews changes against development projects.
type ProjectAdapter struct {
	store projectStore
}

// NewProjectAdapter constructs the adapter.
func NewProjectAdapter(store projectStore) *ProjectAdapter {
	return &ProjectAdapter{store: store}
}

// Kind implements ResourceAdapter.
func (a *ProjectAdapter) Kind() models.ResourceKind { return models.ResourceProject }

// Current implements ResourceAdapter.
func (a *ProjectAdapter) Current(ctx context.Context, id int64) (json.RawMessage, string, error) {
	if id == 0 {
		return json.RawMessage("null"), "", nil
	}
	project, err := a.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("project %d not found", id))
		}
		return nil, "", fmt.Errorf("load project %d: %w", id, err)
	}
	raw, err := json.Marshal(project)
	if err != nil {
		return nil, "", fmt.Errorf("marshal project %d: %w", id, err)
	}
	return raw, project.Name, nil
}

// Apply implements ResourceAdapter.
func (a *ProjectAdapter) Apply(ctx context.Context, id int64, proposed json.RawMessage) (int64, error) {
	var patch models.ProjectPatch
	if err := json.Unmarshal(proposed, &patch); err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("malformed project patch: %v", err))
	}
	if id == 0 {
		if patch.Name == nil || *patch.Name == "" {
			return 0, appErrors.Clone(appErrors.ErrValidation, "a new project requires a name")
		}
		project := &models.Project{}
		patch.Apply(project)
		if err := a.store.Create(ctx, project); err != nil {
			return 0, fmt.Errorf("create project: %w", err)
		}
		return project.ID, nil
	}
	project, err := a.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("project %d not found", id))
		}
		return 0, fmt.Errorf("load project %d: %w", id, err)
	}
	patch.Apply(project)
	if err := a.store.Update(ctx, project); err != nil {
		return 0, fmt.Errorf("update project %d: %w", id, err)
	}
	return project.ID, nil
}

type changeWorkflow interface {
	Submit(ctx context.Context, params SubmitChangeParams) (*models.ChangeRequest, error)
	Approve(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error)
	ResolveConflict(ctx context.Context, id string, strategy models.ConflictStrategy, merged json.RawMessage, actor models.Actor) (*models.ChangeRequest, error)
	HasActiveForResource(ctx context.Context, kind models.ResourceKind, id int64) (bool, error)
}

type cacheInvalidator interface {
	InvalidateAnalytics(ctx context.Context) error
}

// ReviewService glues the change-request ledger to the record stores: it
// snapshots resources at submission, and applies approved patches through
// the right adapter.
type ReviewService struct {
	workflow changeWorkflow
	registry *AdapterRegistry
	cache    cacheInvalidator
	logger   *zap.Logger
}

// NewReviewService constructs the service. cache may be nil.
func NewReviewService(workflow changeWorkflow, registry *AdapterRegistry, cache cacheInvalidator, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{workflow: workflow, registry: registry, cache: cache, logger: logger}
}

// SubmitForReview snapshots the resource and opens a change request.
func (s *ReviewService) SubmitForReview(ctx context.Context, kind models.ResourceKind, id int64, proposed json.RawMessage, comment string, actor models.Actor) (*models.ChangeRequest, error) {
	adapter, err := s.registry.Adapter(kind)
	if err != nil {
		return nil, err
	}
	original, name, err := adapter.Current(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.workflow.Submit(ctx, SubmitChangeParams{
		ResourceType: kind,
		ResourceID:   id,
		ResourceName: name,
		OriginalData: original,
		ProposedData: proposed,
		Comment:      comment,
		Actor:        actor,
	})
}

// ApproveAndApply approves a request and, when the baseline still holds,
// writes the proposed patch through to the record store. A conflicted
// request is returned together with the stale-baseline error and nothing is
// written.
func (s *ReviewService) ApproveAndApply(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error) {
	request, err := s.workflow.Approve(ctx, id, comment, actor)
	if err != nil {
		return request, err
	}
	if err := s.applyApproved(ctx, request); err != nil {
		return request, err
	}
	return request, nil
}

// ResolveAndApply settles a conflict; approving strategies also write the
// surviving patch through.
func (s *ReviewService) ResolveAndApply(ctx context.Context, id string, strategy models.ConflictStrategy, merged json.RawMessage, actor models.Actor) (*models.ChangeRequest, error) {
	request, err := s.workflow.ResolveConflict(ctx, id, strategy, merged, actor)
	if err != nil {
		return request, err
	}
	if request.Status == models.ChangeRequestApproved {
		if err := s.applyApproved(ctx, request); err != nil {
			return request, err
		}
	}
	return request, nil
}

// HasPendingChanges reports whether a resource is locked by an active
// request.
func (s *ReviewService) HasPendingChanges(ctx context.Context, kind models.ResourceKind, id int64) (bool, error) {
	return s.workflow.HasActiveForResource(ctx, kind, id)
}

func (s *ReviewService) applyApproved(ctx context.Context, request *models.ChangeRequest) error {
	adapter, err := s.registry.Adapter(request.ResourceType)
	if err != nil {
		return err
	}
	if _, err := adapter.Apply(ctx, request.ResourceID, request.ProposedData); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "approved change could not be applied")
	}
	if s.cache != nil {
		if err := s.cache.InvalidateAnalytics(ctx); err != nil {
			s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
		}
	}
	return nil
}
