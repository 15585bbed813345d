package models

import (
	"time"

	"github.com/lib/pq"
)

// ProjectStatus tracks implementation progress.
type ProjectStatus string

const (
	ProjectProposed  ProjectStatus = "PROPOSED"
	ProjectOngoing   ProjectStatus = "ONGOING"
	ProjectCompleted ProjectStatus = "COMPLETED"
	ProjectSuspended ProjectStatus = "SUSPENDED"
)

// Project is a development intervention targeting one sitio. It is the
// second reviewable resource kind alongside sitio records.
type Project struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	SitioID     int64          `db:"sitio_id" json:"sitio_id"`
	Sector      string         `db:"sector" json:"sector"`
	Status      ProjectStatus  `db:"status" json:"status"`
	Budget      float64        `db:"budget" json:"budget"`
	FundSource  string         `db:"fund_source" json:"fund_source"`
	Years       pq.StringArray `db:"years" json:"years"`
	Description string         `db:"description" json:"description"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ProjectPatch is an explicit partial update; nil fields are left unchanged.
type ProjectPatch struct {
	Name        *string        `json:"name,omitempty"`
	SitioID     *int64         `json:"sitio_id,omitempty"`
	Sector      *string        `json:"sector,omitempty"`
	Status      *ProjectStatus `json:"status,omitempty"`
	Budget      *float64       `json:"budget,omitempty"`
	FundSource  *string        `json:"fund_source,omitempty"`
	Years       []string       `json:"years,omitempty"`
	Description *string        `json:"description,omitempty"`
}

// Apply merges the patch into the project field by field.
func (p ProjectPatch) Apply(project *Project) {
	if p.Name != nil {
		project.Name = *p.Name
	}
	if p.SitioID != nil {
		project.SitioID = *p.SitioID
	}
	if p.Sector != nil {
		project.Sector = *p.Sector
	}
	if p.Status != nil {
		project.Status = *p.Status
	}
	if p.Budget != nil {
		project.Budget = *p.Budget
	}
	if p.FundSource != nil {
		project.FundSource = *p.FundSource
	}
	if p.Years != nil {
		project.Years = pq.StringArray(p.Years)
	}
	if p.Description != nil {
		project.Description = *p.Description
	}
}
