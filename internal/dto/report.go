package dto

import "time"

// ReportFormat selects the rendered output type.
type ReportFormat string

const (
	ReportPDF ReportFormat = "pdf"
	ReportCSV ReportFormat = "csv"
)

// GenerateReportRequest asks for an aggregation snapshot export.
type GenerateReportRequest struct {
	Year         string       `json:"year"`
	Municipality string       `json:"municipality"`
	Format       ReportFormat `json:"format" binding:"required"`
}

// ReportJobResponse describes a queued or finished export.
type ReportJobResponse struct {
	JobID       string     `json:"job_id"`
	Status      string     `json:"status"`
	DownloadURL string     `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
