package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionChangeSubmit   = "CHANGE_REQUEST_SUBMIT"
	AuditActionChangeApprove  = "CHANGE_REQUEST_APPROVE"
	AuditActionChangeReject   = "CHANGE_REQUEST_REJECT"
	AuditActionChangeRevision = "CHANGE_REQUEST_REVISION"
	AuditActionChangeResubmit = "CHANGE_REQUEST_RESUBMIT"
	AuditActionChangeConflict = "CHANGE_REQUEST_CONFLICT"
	AuditActionChangeResolve  = "CHANGE_REQUEST_RESOLVE"
	AuditActionRecordCreate   = "RECORD_CREATE"
	AuditActionRecordUpdate   = "RECORD_UPDATE"
	AuditActionRecordDelete   = "RECORD_DELETE"
	AuditActionReportGenerate = "REPORT_GENERATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID           string       `db:"id" json:"id"`
	ActorID      int64        `db:"actor_id" json:"actor_id"`
	ActorName    string       `db:"actor_name" json:"actor_name"`
	Action       string       `db:"action" json:"action"`
	ResourceType ResourceKind `db:"resource_type" json:"resource_type"`
	ResourceID   *int64       `db:"resource_id" json:"resource_id,omitempty"`
	ResourceName *string      `db:"resource_name" json:"resource_name,omitempty"`
	Details      *string      `db:"details" json:"details,omitempty"`
	OldValues    []byte       `db:"old_values" json:"old_values,omitempty"`
	NewValues    []byte       `db:"new_values" json:"new_values,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}
