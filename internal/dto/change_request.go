package dto

import (
	"encoding/json"

	"github.com/sitiograph/sitio-profile-api/internal/models"
)

// SubmitChangeRequest payload for proposing a data change.
type SubmitChangeRequest struct {
	ResourceType models.ResourceKind `json:"resource_type" binding:"required"`
	// ResourceID 0 proposes a new record.
	ResourceID int64           `json:"resource_id"`
	Proposed   json.RawMessage `json:"proposed" binding:"required"`
	Comment    string          `json:"comment"`
}

// ReviewDecisionRequest carries an optional reviewer comment for approve and
// reject operations.
type ReviewDecisionRequest struct {
	Comment string `json:"comment"`
}

// RevisionRequest carries the mandatory reviewer comment for a
// request-revision decision.
type RevisionRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// ResubmitRequest replaces the proposed patch of a returned request.
type ResubmitRequest struct {
	Proposed json.RawMessage `json:"proposed" binding:"required"`
	Comment  string          `json:"comment"`
}

// ResolveConflictRequest selects a conflict-resolution strategy.
type ResolveConflictRequest struct {
	Strategy models.ConflictStrategy `json:"strategy" binding:"required"`
	// MergedData is mandatory for the manual_merge strategy.
	MergedData json.RawMessage `json:"merged_data,omitempty"`
}

// MarkSeenRequest acknowledges status changes for the listed requests.
type MarkSeenRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}
