package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pratik-mahalle/costlens/internal/detector"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/errors"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/testutil"
)

func newTestAnomalyService(t *testing.T) (*AnomalyService, *testutil.MockAnomalyRepository, *testutil.MockCostRepository) {
	t.Helper()
	anomalies := testutil.NewMockAnomalyRepository()
	costs := testutil.NewMockCostRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})

	now := testutil.Day(7).Add(12 * time.Hour)
	det := detector.New(detector.DefaultConfig(), log,
		detector.WithClock(func() time.Time { return now }),
		detector.WithIDGenerator(func() string { return "run-1" }),
	)
	svc := NewAnomalyService(anomalies, costs, det, log)
	svc.now = func() time.Time { return now }
	return svc, anomalies, costs
}

func seedSpike(t *testing.T, costs *testutil.MockCostRepository) {
	t.Helper()
	rows := testutil.DailyCosts(1, cost.ProviderAWS, "EC2", testutil.Day(0), 100, 98, 102, 101, 500, 99, 103)
	if _, err := costs.UpsertCosts(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
}

func TestAnomalyService_Detect(t *testing.T) {
	svc, anomalies, costs := newTestAnomalyService(t)
	seedSpike(t, costs)
	ctx := context.Background()

	req := anomaly.DetectRequest{Days: 30, Threshold: 2, Method: anomaly.MethodZScore, AnalyzeRootCause: true}
	result, err := svc.Detect(ctx, 1, req)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !result.Success || result.AnomalyCount != 1 || result.RunID != "run-1" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(anomalies.Anomalies) != 1 {
		t.Fatalf("stored %d anomalies, want 1", len(anomalies.Anomalies))
	}
	for _, a := range anomalies.Anomalies {
		if a.Service != "EC2" || !a.CostDate.Equal(testutil.Day(4)) || a.Severity != anomaly.SeverityCritical {
			t.Errorf("stored anomaly = %+v", a)
		}
		if len(a.CloudContext) == 0 || a.RootCause == "" {
			t.Errorf("expected cloud context to be stored, got %q / %q", a.CloudContext, a.RootCause)
		}
	}

	// A second run over the same window updates the stored row instead of duplicating it
	if _, err := svc.Detect(ctx, 1, req); err != nil {
		t.Fatalf("second Detect() error = %v", err)
	}
	if len(anomalies.Anomalies) != 1 {
		t.Errorf("stored %d anomalies after re-run, want 1", len(anomalies.Anomalies))
	}
}

func TestAnomalyService_DetectValidation(t *testing.T) {
	svc, _, _ := newTestAnomalyService(t)

	tests := []struct {
		name string
		req  anomaly.DetectRequest
	}{
		{name: "window too long", req: anomaly.DetectRequest{Days: 400}},
		{name: "unknown method", req: anomaly.DetectRequest{Method: "lstm"}},
		{name: "negative threshold", req: anomaly.DetectRequest{Threshold: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Detect(context.Background(), 1, tt.req)
			appErr := errors.As(err, "")
			if err == nil || appErr.Code != errors.ErrCodeBadRequest {
				t.Errorf("Detect() error = %v, want bad request", err)
			}
		})
	}
}

func TestAnomalyService_DetectInsufficientData(t *testing.T) {
	svc, anomalies, costs := newTestAnomalyService(t)
	costs.UpsertCosts(context.Background(), testutil.DailyCosts(1, cost.ProviderAWS, "EC2", testutil.Day(3), 100, 500))

	result, err := svc.Detect(context.Background(), 1, anomaly.DetectRequest{})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !result.Success || result.Note != detector.NoteInsufficientData || len(anomalies.Anomalies) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestAnomalyService_DetectPropagatesStoreErrors(t *testing.T) {
	svc, anomalies, costs := newTestAnomalyService(t)
	seedSpike(t, costs)
	anomalies.UpsertError = errors.DatabaseError("Failed to create anomaly", fmt.Errorf("disk full"))

	_, err := svc.Detect(context.Background(), 1, anomaly.DetectRequest{Threshold: 2, Method: anomaly.MethodZScore})
	if appErr := errors.As(err, ""); err == nil || appErr.Code != errors.ErrCodeDatabase {
		t.Errorf("Detect() error = %v, want database error", err)
	}

	costs.QueryError = fmt.Errorf("connection reset")
	_, err = svc.Detect(context.Background(), 1, anomaly.DetectRequest{})
	if appErr := errors.As(err, ""); err == nil || appErr.Code != errors.ErrCodeInternal {
		t.Errorf("Detect() error = %v, want internal error", err)
	}
}

func TestAnomalyService_Workflow(t *testing.T) {
	svc, anomalies, _ := newTestAnomalyService(t)
	ctx := context.Background()

	a := testutil.SampleAnomaly(1, "EC2", testutil.Day(4))
	anomalies.Upsert(ctx, a)
	b := testutil.SampleAnomaly(1, "S3", testutil.Day(5))
	b.Severity = anomaly.SeverityLow
	anomalies.Upsert(ctx, b)

	tests := []struct {
		name    string
		id      string
		status  string
		wantErr bool
	}{
		{name: "acknowledge", id: a.ID, status: anomaly.StatusAcknowledged},
		{name: "invalid status", id: a.ID, status: "closed", wantErr: true},
		{name: "unknown id", id: "missing", status: anomaly.StatusResolved, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UpdateStatus(ctx, 1, tt.id, tt.status)
			if (err != nil) != tt.wantErr {
				t.Errorf("UpdateStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	summary, err := svc.GetSummary(ctx, 1)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if summary.Total != 2 || summary.BySeverity[anomaly.SeverityLow] != 1 || summary.ByStatus[anomaly.StatusAcknowledged] != 1 {
		t.Errorf("summary = %+v", summary)
	}

	if err := svc.Delete(ctx, 1, b.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.GetByID(ctx, 1, b.ID); !errors.IsNotFound(err) {
		t.Errorf("GetByID() after delete error = %v", err)
	}

	list, total, err := svc.List(ctx, 1, anomaly.Filter{}, 10, 0)
	if err != nil || total != 1 || list[0].ID != a.ID {
		t.Errorf("List() = %v, %d, %v", list, total, err)
	}
}
