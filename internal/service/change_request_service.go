package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/fingerprint"
)

type changeRequestStore interface {
	Create(ctx context.Context, request *models.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*models.ChangeRequest, error)
	Update(ctx context.Context, request *models.ChangeRequest) error
	List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error)
	CountByStatus(ctx context.Context) (models.StatusCounts, error)
	MarkSeen(ctx context.Context, ids []string, submitterID int64) (int64, error)
}

type auditLogger interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

// LiveSnapshotProvider re-fetches the current persisted state of a resource
// so approval can detect baseline drift.
type LiveSnapshotProvider interface {
	Snapshot(ctx context.Context, kind models.ResourceKind, id int64) (json.RawMessage, error)
}

// LiveSnapshotProviderFunc allows using plain functions as providers.
type LiveSnapshotProviderFunc func(ctx context.Context, kind models.ResourceKind, id int64) (json.RawMessage, error)

// Snapshot implements LiveSnapshotProvider.
func (f LiveSnapshotProviderFunc) Snapshot(ctx context.Context, kind models.ResourceKind, id int64) (json.RawMessage, error) {
	return f(ctx, kind, id)
}

// SubmitChangeParams groups everything needed to open a change request.
type SubmitChangeParams struct {
	ResourceType models.ResourceKind
	ResourceID   int64
	ResourceName string
	OriginalData json.RawMessage
	ProposedData json.RawMessage
	Comment      string
	Actor        models.Actor
}

// ChangeRequestService is the ledger of proposed data changes: it owns the
// status state machine, the supersession rule, and fingerprint-based
// conflict detection. Writes to the underlying records are left to the
// caller once approval succeeds.
type ChangeRequestService struct {
	repo    changeRequestStore
	audit   auditLogger
	live    LiveSnapshotProvider
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewChangeRequestService constructs the service. metrics may be nil.
func NewChangeRequestService(repo changeRequestStore, live LiveSnapshotProvider, audit auditLogger, metrics *MetricsService, logger *zap.Logger) *ChangeRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChangeRequestService{
		repo:    repo,
		audit:   audit,
		live:    live,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	if svc.live == nil {
		svc.live = LiveSnapshotProviderFunc(func(context.Context, models.ResourceKind, int64) (json.RawMessage, error) {
			return json.RawMessage("null"), nil
		})
	}
	return svc
}

// Submit opens a new change request, superseding any pending request for the
// same resource so at most one stays active per (type, id) pair.
func (s *ChangeRequestService) Submit(ctx context.Context, params SubmitChangeParams) (*models.ChangeRequest, error) {
	if params.ResourceType != models.ResourceSitio && params.ResourceType != models.ResourceProject {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported resource type: %s", params.ResourceType))
	}
	if len(params.ProposedData) == 0 || !json.Valid(params.ProposedData) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposed data must be valid JSON")
	}
	original := params.OriginalData
	if len(original) == 0 {
		original = json.RawMessage("null")
	}

	if err := s.supersedePending(ctx, params.ResourceType, params.ResourceID, params.Actor); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	request := &models.ChangeRequest{
		ResourceType:     params.ResourceType,
		ResourceID:       params.ResourceID,
		ResourceName:     params.ResourceName,
		OriginalData:     append(json.RawMessage(nil), original...),
		ProposedData:     append(json.RawMessage(nil), params.ProposedData...),
		BaseVersionHash:  fingerprint.Hash(original),
		Status:           models.ChangeRequestPending,
		SubmittedByID:    params.Actor.ID,
		SubmittedByName:  params.Actor.Name,
		SubmittedAt:      now,
		SubmitterComment: strings.TrimSpace(params.Comment),
		RevisionHistory: models.RevisionHistory{{
			Action:    models.RevisionSubmitted,
			Comment:   strings.TrimSpace(params.Comment),
			Timestamp: now,
			ActorID:   params.Actor.ID,
			ActorName: params.Actor.Name,
		}},
		StatusChangeSeenBySubmitter: true,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change request")
	}

	s.emitAudit(ctx, &models.AuditLog{
		ActorID:      params.Actor.ID,
		ActorName:    params.Actor.Name,
		Action:       models.AuditActionChangeSubmit,
		ResourceType: request.ResourceType,
		ResourceID:   &request.ResourceID,
		ResourceName: &request.ResourceName,
		NewValues:    request.ProposedData,
	})
	s.metrics.ObserveReviewOutcome("submitted")
	return request, nil
}

// Approve moves a pending request to approved after verifying the live
// resource still matches the submission baseline. On drift the request
// transitions to CONFLICT and a stale-baseline error is returned alongside
// the updated request; the proposed data must not be applied.
func (s *ChangeRequestService) Approve(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ChangeRequestPending {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("only pending requests can be approved (current status: %s)", request.Status))
	}
	if request.SubmittedByID == actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submitters cannot approve their own change request")
	}

	current, err := s.live.Snapshot(ctx, request.ResourceType, request.ResourceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current resource state")
	}
	if len(current) == 0 {
		current = json.RawMessage("null")
	}
	currentHash := fingerprint.Hash(current)
	now := s.now().UTC()

	if currentHash != request.BaseVersionHash {
		request.Status = models.ChangeRequestConflict
		request.ConflictDetails = &models.ConflictDetails{
			DetectedAt:   now,
			BaseHash:     request.BaseVersionHash,
			CurrentHash:  currentHash,
			CurrentData:  append(json.RawMessage(nil), current...),
			ProposedData: append(json.RawMessage(nil), request.ProposedData...),
		}
		request.StatusChangeSeenBySubmitter = false
		s.appendHistory(request, models.RevisionConflictDetected, "baseline drift detected during approval", actor)
		if err := s.repo.Update(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record conflict")
		}
		s.emitAudit(ctx, &models.AuditLog{
			ActorID:      actor.ID,
			ActorName:    actor.Name,
			Action:       models.AuditActionChangeConflict,
			ResourceType: request.ResourceType,
			ResourceID:   &request.ResourceID,
			ResourceName: &request.ResourceName,
			OldValues:    request.OriginalData,
			NewValues:    current,
		})
		s.metrics.ObserveReviewOutcome("conflict")
		return request, appErrors.Clone(appErrors.ErrStaleBaseline, "")
	}

	s.stampReviewer(request, comment, actor, now)
	request.Status = models.ChangeRequestApproved
	request.StatusChangeSeenBySubmitter = false
	s.appendHistory(request, models.RevisionApproved, comment, actor)
	if err := s.repo.Update(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve change request")
	}
	s.emitAudit(ctx, &models.AuditLog{
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Action:       models.AuditActionChangeApprove,
		ResourceType: request.ResourceType,
		ResourceID:   &request.ResourceID,
		ResourceName: &request.ResourceName,
		OldValues:    request.OriginalData,
		NewValues:    request.ProposedData,
	})
	s.metrics.ObserveReviewOutcome("approved")
	return request, nil
}

// Reject finalises a request from pending or conflict.
func (s *ChangeRequestService) Reject(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ChangeRequestPending && request.Status != models.ChangeRequestConflict {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot reject a request in status %s", request.Status))
	}

	now := s.now().UTC()
	s.stampReviewer(request, comment, actor, now)
	request.Status = models.ChangeRequestRejected
	request.ConflictDetails = nil
	request.StatusChangeSeenBySubmitter = false
	s.appendHistory(request, models.RevisionRejected, comment, actor)
	if err := s.repo.Update(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject change request")
	}
	s.emitAudit(ctx, &models.AuditLog{
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Action:       models.AuditActionChangeReject,
		ResourceType: request.ResourceType,
		ResourceID:   &request.ResourceID,
		ResourceName: &request.ResourceName,
	})
	s.metrics.ObserveReviewOutcome("rejected")
	return request, nil
}

// RequestRevision sends a request back to its submitter with a mandatory
// explanation.
func (s *ChangeRequestService) RequestRevision(ctx context.Context, id, comment string, actor models.Actor) (*models.ChangeRequest, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a comment is required when requesting revision")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ChangeRequestPending && request.Status != models.ChangeRequestConflict {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot request revision for a request in status %s", request.Status))
	}
	if request.SubmittedByID == actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submitters cannot review their own change request")
	}

	now := s.now().UTC()
	s.stampReviewer(request, comment, actor, now)
	request.Status = models.ChangeRequestNeedsRevision
	request.ConflictDetails = nil
	request.StatusChangeSeenBySubmitter = false
	s.appendHistory(request, models.RevisionRevisionRequested, comment, actor)
	if err := s.repo.Update(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request revision")
	}
	s.emitAudit(ctx, &models.AuditLog{
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Action:       models.AuditActionChangeRevision,
		ResourceType: request.ResourceType,
		ResourceID:   &request.ResourceID,
		ResourceName: &request.ResourceName,
	})
	s.metrics.ObserveReviewOutcome("revision_requested")
	return request, nil
}

// Resubmit re-opens a returned request. A needs-revision request is mutated
// in place; a rejected one spawns a brand-new linked request and the
// rejected record is left untouched. The asymmetry is deliberate: rejections
// stay terminal and separately trackable in the ledger.
func (s *ChangeRequestService) Resubmit(ctx context.Context, id string, proposed json.RawMessage, comment string, actor models.Actor) (*models.ChangeRequest, error) {
	if len(proposed) == 0 || !json.Valid(proposed) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposed data must be valid JSON")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.SubmittedByID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the original submitter can resubmit")
	}

	now := s.now().UTC()
	switch request.Status {
	case models.ChangeRequestNeedsRevision:
		request.Status = models.ChangeRequestPending
		request.ProposedData = append(json.RawMessage(nil), proposed...)
		request.ReviewedByID = nil
		request.ReviewedByName = nil
		request.ReviewedAt = nil
		request.ReviewerComment = nil
		request.ResubmitCount++
		request.StatusChangeSeenBySubmitter = true
		s.appendHistory(request, models.RevisionResubmitted, comment, actor)
		if err := s.repo.Update(ctx, request); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit change request")
		}
		s.emitAudit(ctx, &models.AuditLog{
			ActorID:      actor.ID,
			ActorName:    actor.Name,
			Action:       models.AuditActionChangeResubmit,
			ResourceType: request.ResourceType,
			ResourceID:   &request.ResourceID,
			ResourceName: &request.ResourceName,
			NewValues:    request.ProposedData,
		})
		s.metrics.ObserveReviewOutcome("resubmitted")
		return request, nil

	case models.ChangeRequestRejected:
		if err := s.supersedePending(ctx, request.ResourceType, request.ResourceID, actor); err != nil {
			return nil, err
		}
		successor := &models.ChangeRequest{
			ResourceType:     request.ResourceType,
			ResourceID:       request.ResourceID,
			ResourceName:     request.ResourceName,
			OriginalData:     append(json.RawMessage(nil), request.OriginalData...),
			ProposedData:     append(json.RawMessage(nil), proposed...),
			BaseVersionHash:  fingerprint.Hash(request.OriginalData),
			Status:           models.ChangeRequestPending,
			SubmittedByID:    actor.ID,
			SubmittedByName:  actor.Name,
			SubmittedAt:      now,
			SubmitterComment: strings.TrimSpace(comment),
			RevisionHistory: models.RevisionHistory{{
				Action:    models.RevisionSubmitted,
				Comment:   strings.TrimSpace(comment),
				Timestamp: now,
				ActorID:   actor.ID,
				ActorName: actor.Name,
			}},
			StatusChangeSeenBySubmitter: true,
			OriginalSubmissionID:        &request.ID,
		}
		if err := s.repo.Create(ctx, successor); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create resubmitted change request")
		}
		s.emitAudit(ctx, &models.AuditLog{
			ActorID:      actor.ID,
			ActorName:    actor.Name,
			Action:       models.AuditActionChangeResubmit,
			ResourceType: successor.ResourceType,
			ResourceID:   &successor.ResourceID,
			ResourceName: &successor.ResourceName,
			NewValues:    successor.ProposedData,
		})
		s.metrics.ObserveReviewOutcome("resubmitted")
		return successor, nil

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot resubmit a request in status %s", request.Status))
	}
}

// ResolveConflict settles a conflicted request with an explicit strategy.
func (s *ChangeRequestService) ResolveConflict(ctx context.Context, id string, strategy models.ConflictStrategy, merged json.RawMessage, actor models.Actor) (*models.ChangeRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ChangeRequestConflict {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot resolve a request in status %s", request.Status))
	}

	now := s.now().UTC()
	switch strategy {
	case models.StrategyApplyProposed:
		if request.SubmittedByID == actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "submitters cannot force-approve their own change request")
		}
		request.Status = models.ChangeRequestApproved
	case models.StrategyDiscard:
		request.Status = models.ChangeRequestRejected
	case models.StrategyManualMerge:
		if request.SubmittedByID == actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "submitters cannot merge their own change request")
		}
		if len(merged) == 0 || !json.Valid(merged) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "manual merge requires merged data")
		}
		request.ProposedData = append(json.RawMessage(nil), merged...)
		request.Status = models.ChangeRequestApproved
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown conflict strategy: %s", strategy))
	}

	s.stampReviewer(request, string(strategy), actor, now)
	request.ConflictDetails = nil
	request.StatusChangeSeenBySubmitter = false
	s.appendHistory(request, models.RevisionConflictResolved, string(strategy), actor)
	if err := s.repo.Update(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve conflict")
	}
	s.emitAudit(ctx, &models.AuditLog{
		ActorID:      actor.ID,
		ActorName:    actor.Name,
		Action:       models.AuditActionChangeResolve,
		ResourceType: request.ResourceType,
		ResourceID:   &request.ResourceID,
		ResourceName: &request.ResourceName,
		NewValues:    request.ProposedData,
	})
	s.metrics.ObserveReviewOutcome("resolved")
	return request, nil
}

// List returns requests matching the filter.
func (s *ChangeRequestService) List(ctx context.Context, filter models.ChangeRequestFilter) ([]models.ChangeRequest, error) {
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		if errors.Is(err, models.ErrMalformedColumn) {
			s.logger.Warn("change request listing hit a corrupt row", zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCorruptRecord.Code, appErrors.ErrCorruptRecord.Status, "a stored change request is corrupt")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change requests")
	}
	return requests, nil
}

// Get returns one request by id.
func (s *ChangeRequestService) Get(ctx context.Context, id string) (*models.ChangeRequest, error) {
	return s.load(ctx, id)
}

// Counts summarises the ledger per status.
func (s *ChangeRequestService) Counts(ctx context.Context) (models.StatusCounts, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return models.StatusCounts{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count change requests")
	}
	return counts, nil
}

// UnseenForSubmitter lists status changes the submitter has not acknowledged.
func (s *ChangeRequestService) UnseenForSubmitter(ctx context.Context, submitterID int64) ([]models.ChangeRequest, error) {
	return s.List(ctx, models.ChangeRequestFilter{
		SubmittedByID: &submitterID,
		UnseenOnly:    true,
	})
}

// MarkSeen acknowledges status changes for the submitter's own requests.
func (s *ChangeRequestService) MarkSeen(ctx context.Context, ids []string, actor models.Actor) (int64, error) {
	updated, err := s.repo.MarkSeen(ctx, ids, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark change requests seen")
	}
	return updated, nil
}

// HasActiveForResource reports whether a pending, conflicted, or
// needs-revision request blocks edits to the resource.
func (s *ChangeRequestService) HasActiveForResource(ctx context.Context, kind models.ResourceKind, id int64) (bool, error) {
	requests, err := s.List(ctx, models.ChangeRequestFilter{
		Status: []models.ChangeRequestStatus{
			models.ChangeRequestPending,
			models.ChangeRequestConflict,
			models.ChangeRequestNeedsRevision,
		},
		ResourceType: kind,
		ResourceID:   &id,
		Limit:        1,
	})
	if err != nil {
		return false, err
	}
	return len(requests) > 0, nil
}

func (s *ChangeRequestService) supersedePending(ctx context.Context, kind models.ResourceKind, resourceID int64, actor models.Actor) error {
	pending, err := s.repo.List(ctx, models.ChangeRequestFilter{
		Status:       []models.ChangeRequestStatus{models.ChangeRequestPending},
		ResourceType: kind,
		ResourceID:   &resourceID,
		Limit:        200,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending change requests")
	}
	for i := range pending {
		request := &pending[i]
		request.Status = models.ChangeRequestSuperseded
		request.StatusChangeSeenBySubmitter = false
		s.appendHistory(request, models.RevisionSuperseded, "superseded by a newer change request", actor)
		if err := s.repo.Update(ctx, request); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede pending change request")
		}
		s.metrics.ObserveReviewOutcome("superseded")
	}
	return nil
}

func (s *ChangeRequestService) load(ctx context.Context, id string) (*models.ChangeRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("change request %s not found", id))
		}
		if errors.Is(err, models.ErrMalformedColumn) {
			s.logger.Warn("change request row is corrupt", zap.String("id", id), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrCorruptRecord.Code, appErrors.ErrCorruptRecord.Status, fmt.Sprintf("change request %s is corrupt", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change request")
	}
	return request, nil
}

func (s *ChangeRequestService) stampReviewer(request *models.ChangeRequest, comment string, actor models.Actor, at time.Time) {
	request.ReviewedByID = &actor.ID
	name := actor.Name
	request.ReviewedByName = &name
	reviewedAt := at
	request.ReviewedAt = &reviewedAt
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		request.ReviewerComment = &trimmed
	} else {
		request.ReviewerComment = nil
	}
}

func (s *ChangeRequestService) appendHistory(request *models.ChangeRequest, action models.RevisionAction, comment string, actor models.Actor) {
	request.RevisionHistory = append(request.RevisionHistory, models.RevisionEntry{
		Action:    action,
		Comment:   strings.TrimSpace(comment),
		Timestamp: s.now().UTC(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
	})
}

func (s *ChangeRequestService) emitAudit(ctx context.Context, entry *models.AuditLog) {
	if s.audit == nil || entry == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
