package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sitiograph/sitio-profile-api/internal/dto"
	"github.com/sitiograph/sitio-profile-api/internal/models"
	appErrors "github.com/sitiograph/sitio-profile-api/pkg/errors"
	"github.com/sitiograph/sitio-profile-api/pkg/storage"
)

func newReportFixture(t *testing.T, sitios []models.SitioRecord) *ReportService {
	t.Helper()
	agg := NewAggregationService(&sitioListerStub{sitios: sitios}, nil, nil, AggregationConfig{
		Enabled:          true,
		PovertyThreshold: 100.0,
	}, zap.NewNop())
	store, err := storage.NewReportStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewTokenSigner("test-secret", time.Hour)
	return NewReportService(agg, store, signer, &auditStub{}, zap.NewNop(), ReportConfig{
		WorkerConcurrency: 1,
		WorkerRetries:     1,
	})
}

func waitForStatus(t *testing.T, svc *ReportService, jobID string, want ReportJobStatus) *dto.ReportJobResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := svc.Status(jobID)
		require.NoError(t, err)
		if resp.Status == string(want) {
			return resp
		}
		if resp.Status == string(ReportJobFailed) && want != ReportJobFailed {
			t.Fatalf("report job failed while waiting for %s", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("report job never reached status %s", want)
	return nil
}

func TestReportGenerateCSVRoundTrip(t *testing.T) {
	sitios := []models.SitioRecord{
		surveyedSitio(1, "Sitio A", "San Isidro", "Poblacion", models.YearlyProfile{
			Year:         "2024",
			Demographics: models.Demographics{Population: 200, Households: 40},
			Priorities:   models.Priorities{Needs: []string{"water system"}},
		}),
	}
	svc := newReportFixture(t, sitios)
	svc.Start(context.Background())
	defer svc.Stop()

	queued, err := svc.Generate(context.Background(), dto.GenerateReportRequest{
		Year:   "2024",
		Format: dto.ReportCSV,
	}, encoder)
	require.NoError(t, err)
	assert.Equal(t, string(ReportJobQueued), queued.Status)

	done := waitForStatus(t, svc, queued.JobID, ReportJobCompleted)
	require.NotEmpty(t, done.DownloadURL)
	require.NotNil(t, done.ExpiresAt)

	token := strings.TrimPrefix(done.DownloadURL, "/api/v1/reports/download/")
	file, relPath, err := svc.Download(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Contains(t, relPath, queued.JobID)

	buf := make([]byte, 64)
	n, err := file.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "Metric,Value")
}

func TestReportGeneratePDF(t *testing.T) {
	sitios := []models.SitioRecord{
		surveyedSitio(1, "Sitio A", "San Isidro", "Poblacion", models.YearlyProfile{
			Year:         "2024",
			Demographics: models.Demographics{Population: 120, Households: 25},
		}),
	}
	svc := newReportFixture(t, sitios)
	svc.Start(context.Background())
	defer svc.Stop()

	queued, err := svc.Generate(context.Background(), dto.GenerateReportRequest{
		Format: dto.ReportPDF,
	}, encoder)
	require.NoError(t, err)
	waitForStatus(t, svc, queued.JobID, ReportJobCompleted)
}

func TestReportGenerateValidatesFormat(t *testing.T) {
	svc := newReportFixture(t, nil)
	_, err := svc.Generate(context.Background(), dto.GenerateReportRequest{Format: "xlsx"}, encoder)
	requireErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestReportStatusUnknownJob(t *testing.T) {
	svc := newReportFixture(t, nil)
	_, err := svc.Status("missing")
	requireErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestReportDownloadRejectsBadToken(t *testing.T) {
	svc := newReportFixture(t, nil)
	_, _, err := svc.Download("not.a.valid.token")
	requireErrorCode(t, err, appErrors.ErrForbidden.Code)
}

func TestOverviewDatasetIncludesPriorities(t *testing.T) {
	overview := &models.AggregationOverview{
		Demographics: models.DemographicsAggregation{SitioCount: 2, Population: 300},
		Priorities: models.PrioritiesAggregation{
			Ranked: []models.PriorityScore{{Need: "water system", Count: 2, Score: 2}},
		},
	}
	dataset := overviewDataset(overview)
	assert.Equal(t, []string{"Metric", "Value"}, dataset.Columns)

	var found bool
	for _, row := range dataset.Rows {
		if row["Metric"] == "Priority: water system" {
			found = true
			assert.Equal(t, "2", row["Value"])
		}
	}
	assert.True(t, found)
}
