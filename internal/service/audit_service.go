package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
)

type auditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// AuditService records who did what to which record. Failures are surfaced
// to the caller but never block the operation being audited.
type AuditService struct {
	repo   auditStore
	logger *zap.Logger
}

// NewAuditService constructs the service.
func NewAuditService(repo auditStore, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record persists one audit entry.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) error {
	if entry.ActorName == "" {
		entry.ActorID = models.SystemActor.ID
		entry.ActorName = models.SystemActor.Name
	}
	return s.repo.Create(ctx, entry)
}

// Recent returns the newest audit entries.
func (s *AuditService) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	entries, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return entries, nil
}
