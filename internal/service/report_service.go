package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	"github.com/sitiograph/sitio-profile-api/internal/repository"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/export"
	"github.com/sitiograph/sitio-profile-api/pkg/jobs"
	"github.com/sitiograph/sitio-profile-api/pkg/storage"
)

// ReportJobStatus tracks an export job through its lifecycle.
type ReportJobStatus string

const (
	ReportJobQueued     ReportJobStatus = "queued"
	ReportJobProcessing ReportJobStatus = "processing"
	ReportJobCompleted  ReportJobStatus = "completed"
	ReportJobFailed     ReportJobStatus = "failed"
)

type reportJob struct {
	ID        string
	Status    ReportJobStatus
	Request   dto.GenerateReportRequest
	Actor     models.Actor
	FilePath  string
	Token     string
	ExpiresAt time.Time
	Err       string
}

// ReportConfig tunes the export worker pool.
type ReportConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
}

// ReportService renders aggregation snapshots to PDF or CSV in the
// background and hands out signed download links.
type ReportService struct {
	agg    *AggregationService
	pdf    *export.PDFExporter
	store  *storage.ReportStore
	signer *storage.TokenSigner
	audit  auditLogger
	logger *zap.Logger

	queue *jobs.Queue

	mu      sync.RWMutex
	records map[string]*reportJob
}

// NewReportService constructs the service and its worker queue.
func NewReportService(agg *AggregationService, store *storage.ReportStore, signer *storage.TokenSigner, audit auditLogger, logger *zap.Logger, cfg ReportConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		agg:     agg,
		pdf:     export.NewPDFExporter(),
		store:   store,
		signer:  signer,
		audit:   audit,
		logger:  logger,
		records: make(map[string]*reportJob),
	}
	s.queue = jobs.NewQueue("report-exports", s.process, jobs.Options{
		Workers: cfg.WorkerConcurrency,
		Retries: cfg.WorkerRetries,
		Logger:  logger,
	})
	return s
}

// Start launches the export workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Generate queues an export job and returns its handle.
func (s *ReportService) Generate(ctx context.Context, req dto.GenerateReportRequest, actor models.Actor) (*dto.ReportJobResponse, error) {
	if req.Format != dto.ReportPDF && req.Format != dto.ReportCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format: %s", req.Format))
	}

	record := &reportJob{
		ID:      uuid.NewString(),
		Status:  ReportJobQueued,
		Request: req,
		Actor:   actor,
	}
	s.mu.Lock()
	s.records[record.ID] = record
	s.mu.Unlock()

	if err := s.queue.Push(jobs.Task{ID: record.ID, Kind: "overview-" + string(req.Format)}); err != nil {
		s.mu.Lock()
		delete(s.records, record.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report job")
	}
	return &dto.ReportJobResponse{JobID: record.ID, Status: string(ReportJobQueued)}, nil
}

// Status reports the current state of an export job, including the signed
// download link once completed.
func (s *ReportService) Status(jobID string) (*dto.ReportJobResponse, error) {
	s.mu.RLock()
	record, ok := s.records[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("report job %s not found", jobID))
	}

	resp := &dto.ReportJobResponse{JobID: record.ID, Status: string(record.Status)}
	if record.Status == ReportJobCompleted {
		resp.DownloadURL = fmt.Sprintf("/api/v1/reports/download/%s", record.Token)
		expires := record.ExpiresAt
		resp.ExpiresAt = &expires
	}
	return resp, nil
}

// Download validates the signed token and opens the rendered file.
func (s *ReportService) Download(token string) (*os.File, string, error) {
	grant, err := s.signer.Verify(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	file, err := s.store.Open(grant.Path)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report file no longer exists")
	}
	return file, grant.Path, nil
}

func (s *ReportService) process(ctx context.Context, task jobs.Task) error {
	s.mu.Lock()
	record, ok := s.records[task.ID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	record.Status = ReportJobProcessing
	req := record.Request
	actor := record.Actor
	s.mu.Unlock()

	overview, err := s.agg.Overview(ctx, repository.SitioListFilter{Municipality: req.Municipality}, req.Year)
	if err != nil {
		s.fail(task.ID, err)
		return err
	}

	var payload []byte
	var ext string
	switch req.Format {
	case dto.ReportCSV:
		ext = "csv"
		payload, err = export.RenderCSV(overviewDataset(overview))
	default:
		ext = "pdf"
		payload, err = s.pdf.Render(overviewReport(overview, req))
	}
	if err != nil {
		s.fail(task.ID, err)
		return err
	}

	filename := fmt.Sprintf("reports/%s.%s", task.ID, ext)
	relPath, err := s.store.Save(filename, payload)
	if err != nil {
		s.fail(task.ID, err)
		return err
	}
	token, expiresAt, err := s.signer.Issue(task.ID, relPath)
	if err != nil {
		if cleanupErr := s.store.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned report file", zap.Error(cleanupErr))
		}
		s.fail(task.ID, err)
		return err
	}

	s.mu.Lock()
	record.Status = ReportJobCompleted
	record.FilePath = relPath
	record.Token = token
	record.ExpiresAt = expiresAt
	s.mu.Unlock()

	if s.audit != nil {
		if err := s.audit.Record(ctx, &models.AuditLog{
			ActorID:   actor.ID,
			ActorName: actor.Name,
			Action:    models.AuditActionReportGenerate,
			Details:   &relPath,
		}); err != nil {
			s.logger.Warn("failed to record report audit log", zap.Error(err))
		}
	}
	return nil
}

func (s *ReportService) fail(jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[jobID]; ok {
		record.Status = ReportJobFailed
		record.Err = err.Error()
	}
}

func overviewReport(overview *models.AggregationOverview, req dto.GenerateReportRequest) export.Report {
	subtitle := "All municipalities"
	if req.Municipality != "" {
		subtitle = req.Municipality
	}
	if req.Year != "" {
		subtitle += " — " + req.Year
	}

	demo := overview.Demographics
	util := overview.Utilities
	live := overview.Livelihood

	report := export.Report{
		Title:    "Sitio Profile Summary",
		Subtitle: subtitle,
		Sections: []export.Section{
			{
				Heading: "Demographics",
				Summary: []export.KeyValue{
					{Label: "Sitios covered", Value: strconv.Itoa(demo.SitioCount)},
					{Label: "Population", Value: strconv.Itoa(demo.Population)},
					{Label: "Households", Value: strconv.Itoa(demo.Households)},
					{Label: "Average household size", Value: formatFloat(demo.AverageHouseholdSize)},
					{Label: "Unemployment rate", Value: formatFloat(demo.UnemploymentRate) + "%"},
				},
			},
			{
				Heading: "Utilities coverage",
				Summary: []export.KeyValue{
					{Label: "Electricity", Value: formatFloat(util.ElectricityRate) + "%"},
					{Label: "Water", Value: formatFloat(util.WaterRate) + "%"},
					{Label: "Internet", Value: formatFloat(util.InternetRate) + "%"},
					{Label: "Sanitation", Value: formatFloat(util.SanitationRate) + "%"},
				},
			},
			{
				Heading: "Livelihood",
				Summary: []export.KeyValue{
					{Label: "Average daily income", Value: formatFloat(live.AverageDailyIncome)},
					{Label: "Poverty incidence", Value: formatFloat(live.PovertyIncidence) + "%"},
				},
			},
		},
	}

	if len(overview.Priorities.Ranked) > 0 {
		table := &export.Dataset{Columns: []string{"Need", "Sitios", "Score"}}
		for _, score := range overview.Priorities.Ranked {
			table.Rows = append(table.Rows, map[string]string{
				"Need":   score.Need,
				"Sitios": strconv.Itoa(score.Count),
				"Score":  formatFloat(score.Score),
			})
		}
		report.Sections = append(report.Sections, export.Section{
			Heading: "Priority needs",
			Table:   table,
		})
	}
	return report
}

func overviewDataset(overview *models.AggregationOverview) export.Dataset {
	demo := overview.Demographics
	util := overview.Utilities
	live := overview.Livelihood
	rows := []map[string]string{
		{"Metric": "Sitios covered", "Value": strconv.Itoa(demo.SitioCount)},
		{"Metric": "Population", "Value": strconv.Itoa(demo.Population)},
		{"Metric": "Households", "Value": strconv.Itoa(demo.Households)},
		{"Metric": "Average household size", "Value": formatFloat(demo.AverageHouseholdSize)},
		{"Metric": "Unemployment rate", "Value": formatFloat(demo.UnemploymentRate)},
		{"Metric": "Electricity rate", "Value": formatFloat(util.ElectricityRate)},
		{"Metric": "Water rate", "Value": formatFloat(util.WaterRate)},
		{"Metric": "Internet rate", "Value": formatFloat(util.InternetRate)},
		{"Metric": "Sanitation rate", "Value": formatFloat(util.SanitationRate)},
		{"Metric": "Average daily income", "Value": formatFloat(live.AverageDailyIncome)},
		{"Metric": "Poverty incidence", "Value": formatFloat(live.PovertyIncidence)},
	}
	for _, score := range overview.Priorities.Ranked {
		rows = append(rows, map[string]string{
			"Metric": "Priority: " + score.Need,
			"Value":  formatFloat(score.Score),
		})
	}
	return export.Dataset{Columns: []string{"Metric", "Value"}, Rows: rows}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
