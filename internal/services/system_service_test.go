package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/threadcraft/api/internal/domain"
)

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthReportFillsBuildMetadata(t *testing.T) {
	repo := &stubHealthRepo{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            testClock,
		Build:            BuildInfo{Version: "1.4.0", Environment: "production"},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Version != "1.4.0" || report.Environment != "production" {
		t.Fatalf("build metadata not applied: %#v", report)
	}
	if !report.GeneratedAt.Equal(testClock()) {
		t.Fatalf("generatedAt = %v", report.GeneratedAt)
	}
	if report.Checks["firestore"].Status != domain.HealthStatusOK {
		t.Fatalf("unexpected checks %#v", report.Checks)
	}
}
