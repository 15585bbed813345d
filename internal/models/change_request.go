package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedColumn marks stored JSON that no longer parses. Callers match
// it with errors.Is to distinguish corruption from transient DB failures.
var ErrMalformedColumn = errors.New("malformed stored JSON")

// ResourceKind tags which record collection a change request targets.
type ResourceKind string

const (
	ResourceSitio   ResourceKind = "sitio"
	ResourceProject ResourceKind = "project"
)

// ChangeRequestStatus captures workflow states for change requests.
type ChangeRequestStatus string

const (
	ChangeRequestPending       ChangeRequestStatus = "PENDING"
	ChangeRequestApproved      ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected      ChangeRequestStatus = "REJECTED"
	ChangeRequestConflict      ChangeRequestStatus = "CONFLICT"
	ChangeRequestNeedsRevision ChangeRequestStatus = "NEEDS_REVISION"
	ChangeRequestSuperseded    ChangeRequestStatus = "SUPERSEDED"
)

// RevisionAction labels entries in the revision history.
type RevisionAction string

const (
	RevisionSubmitted         RevisionAction = "submitted"
	RevisionApproved          RevisionAction = "approved"
	RevisionRejected          RevisionAction = "rejected"
	RevisionRevisionRequested RevisionAction = "revision_requested"
	RevisionResubmitted       RevisionAction = "resubmitted"
	RevisionConflictDetected  RevisionAction = "conflict_detected"
	RevisionConflictResolved  RevisionAction = "conflict_resolved"
	RevisionSuperseded        RevisionAction = "superseded"
)

// ConflictStrategy selects how a conflicted request is resolved.
type ConflictStrategy string

const (
	StrategyApplyProposed ConflictStrategy = "apply_proposed"
	StrategyDiscard       ConflictStrategy = "discard"
	StrategyManualMerge   ConflictStrategy = "manual_merge"
)

// RevisionEntry is one immutable step in a request's history.
type RevisionEntry struct {
	Action    RevisionAction `json:"action"`
	Comment   string         `json:"comment,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   int64          `json:"actor_id"`
	ActorName string         `json:"actor_name"`
}

// RevisionHistory is the append-only log of status transitions, stored as a
// JSONB column.
type RevisionHistory []RevisionEntry

// Value implements driver.Valuer.
func (h RevisionHistory) Value() (driver.Value, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner.
func (h *RevisionHistory) Scan(src interface{}) error {
	return scanJSON(src, h, "revision history")
}

// ConflictDetails captures the divergence detected at approval time. Present
// only while the request status is CONFLICT.
type ConflictDetails struct {
	DetectedAt   time.Time       `json:"detected_at"`
	BaseHash     string          `json:"base_hash"`
	CurrentHash  string          `json:"current_hash"`
	CurrentData  json.RawMessage `json:"current_data,omitempty"`
	ProposedData json.RawMessage `json:"proposed_data,omitempty"`
}

// Value implements driver.Valuer.
func (d *ConflictDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *ConflictDetails) Scan(src interface{}) error {
	return scanJSON(src, d, "conflict details")
}

// ChangeRequest is the unit of the review workflow: a proposed patch against
// one resource, carrying the baseline snapshot it was authored from.
type ChangeRequest struct {
	ID           string       `db:"id" json:"id"`
	ResourceType ResourceKind `db:"resource_type" json:"resource_type"`
	// ResourceID is 0 when the request creates a new record.
	ResourceID   int64  `db:"resource_id" json:"resource_id"`
	ResourceName string `db:"resource_name" json:"resource_name"`

	// OriginalData is the resource snapshot at submission time. Immutable.
	OriginalData json.RawMessage `db:"original_data" json:"original_data"`
	// ProposedData is the partial patch applied on approval. Mutable only
	// during resubmission.
	ProposedData    json.RawMessage `db:"proposed_data" json:"proposed_data"`
	BaseVersionHash string          `db:"base_version_hash" json:"base_version_hash"`

	Status ChangeRequestStatus `db:"status" json:"status"`

	SubmittedByID    int64     `db:"submitted_by_id" json:"submitted_by_id"`
	SubmittedByName  string    `db:"submitted_by_name" json:"submitted_by_name"`
	SubmittedAt      time.Time `db:"submitted_at" json:"submitted_at"`
	SubmitterComment string    `db:"submitter_comment" json:"submitter_comment,omitempty"`

	ReviewedByID    *int64     `db:"reviewed_by_id" json:"reviewed_by_id,omitempty"`
	ReviewedByName  *string    `db:"reviewed_by_name" json:"reviewed_by_name,omitempty"`
	ReviewedAt      *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewerComment *string    `db:"reviewer_comment" json:"reviewer_comment,omitempty"`

	ConflictDetails *ConflictDetails `db:"conflict_details" json:"conflict_details,omitempty"`
	RevisionHistory RevisionHistory  `db:"revision_history" json:"revision_history"`

	// StatusChangeSeenBySubmitter is the submitter's read receipt for the
	// latest reviewer action.
	StatusChangeSeenBySubmitter bool `db:"status_seen" json:"status_change_seen_by_submitter"`
	ResubmitCount               int  `db:"resubmit_count" json:"resubmit_count"`
	// OriginalSubmissionID links a request created by resubmitting a
	// rejected one back to its predecessor.
	OriginalSubmissionID *string `db:"original_submission_id" json:"original_submission_id,omitempty"`
}

// Active reports whether the request still blocks edits to its resource.
func (c *ChangeRequest) Active() bool {
	switch c.Status {
	case ChangeRequestPending, ChangeRequestConflict, ChangeRequestNeedsRevision:
		return true
	default:
		return false
	}
}

// ChangeRequestFilter constrains listing queries.
type ChangeRequestFilter struct {
	Status        []ChangeRequestStatus
	ResourceType  ResourceKind
	ResourceID    *int64
	SubmittedByID *int64
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
	UnseenOnly    bool
	Limit         int
	Offset        int
}

// StatusCounts summarises the ledger per workflow state.
type StatusCounts struct {
	Pending       int `json:"pending"`
	Approved      int `json:"approved"`
	Rejected      int `json:"rejected"`
	Conflict      int `json:"conflict"`
	NeedsRevision int `json:"needs_revision"`
	Superseded    int `json:"superseded"`
}

func scanJSON(src, dest interface{}, what string) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch value := src.(type) {
	case []byte:
		raw = value
	case string:
		raw = []byte(value)
	default:
		return fmt.Errorf("unsupported %s column type %T", what, src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w: %v", what, ErrMalformedColumn, err)
	}
	return nil
}
