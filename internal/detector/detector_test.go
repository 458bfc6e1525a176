package detector

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func dailySeries(costs []float64, service, provider string) []anomaly.CostObservation {
	obs := make([]anomaly.CostObservation, len(costs))
	for i, c := range costs {
		obs[i] = anomaly.NewCostObservation(testStart.AddDate(0, 0, i), c, service, provider)
	}
	return obs
}

func newTestDetector() *Detector {
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	return New(DefaultConfig(), log,
		WithClock(func() time.Time { return testStart.AddDate(0, 1, 0) }),
		WithIDGenerator(func() string { return "run-1" }),
	)
}

var spikeCosts = []float64{100, 98, 102, 101, 500, 99, 103}

func TestDetector_ZScoreScenario(t *testing.T) {
	d := newTestDetector()

	res := d.Detect(context.Background(), Request{
		Observations: dailySeries(spikeCosts, "EC2", "AWS"),
		Method:       anomaly.MethodZScore,
		Threshold:    2.0,
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(res.Anomalies))
	}

	a := res.Anomalies[0]
	if !a.Date.Equal(testStart.AddDate(0, 0, 4)) {
		t.Errorf("flagged wrong date: %s", a.Date)
	}
	if a.Cost != 500 {
		t.Errorf("cost = %v, want 500", a.Cost)
	}
	if math.Abs(a.BaselineCost-100.5) > 0.2 {
		t.Errorf("baseline = %v, want about 100.5", a.BaselineCost)
	}
	if math.Abs(a.PercentageIncrease-397.5) > 1 {
		t.Errorf("percentage increase = %v, want about 397.5", a.PercentageIncrease)
	}
	if a.DetectionMethod != "zscore" {
		t.Errorf("detection method = %s, want zscore", a.DetectionMethod)
	}
	if a.MethodsAgreement != 1 || a.MethodsTotal != 1 || a.Confidence != 1.0 {
		t.Errorf("unexpected agreement %d/%d confidence %v", a.MethodsAgreement, a.MethodsTotal, a.Confidence)
	}
	if a.Severity != anomaly.SeverityCritical {
		t.Errorf("severity = %s, want critical", a.Severity)
	}
	if a.AnomalyType != anomaly.TypeCostSpike {
		t.Errorf("anomaly type = %s, want cost_spike", a.AnomalyType)
	}
	if res.RunID != "run-1" {
		t.Errorf("run id = %s", res.RunID)
	}
	if res.AnomalyCount != 1 || res.DataPoints != 7 {
		t.Errorf("anomaly count %d data points %d", res.AnomalyCount, res.DataPoints)
	}
}

func TestDetector_EnsembleShortSeriesUsesOnlyZScore(t *testing.T) {
	d := newTestDetector()

	res := d.Detect(context.Background(), Request{
		Observations: dailySeries(spikeCosts, "EC2", "AWS"),
		Method:       anomaly.MethodEnsemble,
		Threshold:    2.0,
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if !reflect.DeepEqual(res.MethodsUsed, []anomaly.Method{anomaly.MethodZScore}) {
		t.Errorf("methods used = %v, want [zscore]", res.MethodsUsed)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(res.Anomalies))
	}
	a := res.Anomalies[0]
	if a.MethodsTotal != 1 || a.Confidence != 1.0 {
		t.Errorf("methods total %d confidence %v, want 1 and 1.0", a.MethodsTotal, a.Confidence)
	}
	if a.DetectionMethod != "ensemble" {
		t.Errorf("detection method = %s, want ensemble", a.DetectionMethod)
	}
}

func TestDetector_EnsembleConsensus(t *testing.T) {
	d := newTestDetector()
	costs := []float64{100, 101, 102, 100, 101, 102, 100, 101, 800, 102, 100, 101}

	res := d.Detect(context.Background(), Request{
		Observations: dailySeries(costs, "EC2", "AWS"),
		Method:       anomaly.MethodEnsemble,
	})

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if len(res.MethodsUsed) != 3 {
		t.Fatalf("methods used = %v, want zscore, isolation and density", res.MethodsUsed)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("expected 1 confirmed anomaly, got %d", len(res.Anomalies))
	}
	a := res.Anomalies[0]
	if a.Cost != 800 {
		t.Errorf("cost = %v, want 800", a.Cost)
	}
	if a.MethodsTotal != 3 || a.MethodsAgreement < 2 {
		t.Errorf("agreement %d/%d, want at least 2/3", a.MethodsAgreement, a.MethodsTotal)
	}
	if want := float64(a.MethodsAgreement) / float64(a.MethodsTotal); a.Confidence != want {
		t.Errorf("confidence = %v, want %v", a.Confidence, want)
	}
}

func TestDetector_ZeroVariance(t *testing.T) {
	d := newTestDetector()
	flat := []float64{50, 50, 50, 50, 50, 50, 50, 50}

	for _, m := range []anomaly.Method{anomaly.MethodZScore, anomaly.MethodEnsemble} {
		t.Run(string(m), func(t *testing.T) {
			res := d.Detect(context.Background(), Request{
				Observations: dailySeries(flat, "S3", "AWS"),
				Method:       m,
				Threshold:    2.0,
			})
			if !res.Success {
				t.Fatalf("expected success, got error %q", res.Error)
			}
			if len(res.Anomalies) != 0 {
				t.Errorf("expected no anomalies, got %d", len(res.Anomalies))
			}
		})
	}
}

func TestDetector_InsufficientData(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name  string
		costs []float64
	}{
		{name: "empty", costs: nil},
		{name: "four points", costs: []float64{1, 2, 3, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Detect(context.Background(), Request{
				Observations: dailySeries(tt.costs, "EC2", "AWS"),
				Method:       anomaly.MethodEnsemble,
			})
			if !res.Success {
				t.Errorf("expected success for insufficient data")
			}
			if len(res.Anomalies) != 0 {
				t.Errorf("expected empty anomalies")
			}
			if res.Note != NoteInsufficientData {
				t.Errorf("note = %q", res.Note)
			}
			if res.Error != "" {
				t.Errorf("unexpected error %q", res.Error)
			}
		})
	}
}

func TestDetector_TotalFailureEnvelope(t *testing.T) {
	d := newTestDetector()

	obs := dailySeries([]float64{100, 101, 99, 100, 102, 98}, "EC2", "AWS")
	obs = append(obs, anomaly.CostObservation{
		Date:     testStart.AddDate(0, 0, 6),
		Cost:     decimal.NewNullDecimal(decimal.RequireFromString("1e400")),
		Service:  "EC2",
		Provider: "AWS",
	})

	res := d.Detect(context.Background(), Request{
		Observations: obs,
		Method:       anomaly.MethodIsolation,
	})
	if res.Success {
		t.Fatal("expected failure envelope")
	}
	if res.Error == "" {
		t.Error("expected error message")
	}
	if res.Anomalies == nil || len(res.Anomalies) != 0 {
		t.Errorf("expected empty non-nil anomalies, got %v", res.Anomalies)
	}

	ens := d.Detect(context.Background(), Request{Observations: obs, Method: anomaly.MethodEnsemble})
	if !ens.Success || ens.Note != NoteAllMethodsFailed {
		t.Errorf("ensemble with every slot failing: success=%v note=%q", ens.Success, ens.Note)
	}
}

func TestDetector_UnsupportedMethod(t *testing.T) {
	d := newTestDetector()

	res := d.Detect(context.Background(), Request{
		Observations: dailySeries(spikeCosts, "EC2", "AWS"),
		Method:       anomaly.Method("prophet"),
	})
	if res.Success || res.Error == "" {
		t.Errorf("expected failure for unsupported method, got %+v", res)
	}
}

func TestDetector_FallbackToZScore(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name   string
		method anomaly.Method
		costs  []float64
	}{
		{
			name:   "isolation with too few points",
			method: anomaly.MethodIsolation,
			costs:  spikeCosts,
		},
		{
			name:   "decomposition without seasonality",
			method: anomaly.MethodDecomposition,
			costs:  []float64{100, 101, 102, 100, 101, 102, 100, 101, 102, 500, 101, 102, 100, 101, 102, 100, 101, 102, 100, 101},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Detect(context.Background(), Request{
				Observations: dailySeries(tt.costs, "EC2", "AWS"),
				Method:       tt.method,
				Threshold:    2.0,
			})
			if !res.Success {
				t.Fatalf("expected success, got error %q", res.Error)
			}
			if len(res.Fallbacks) != 1 || res.Fallbacks[0].Method != tt.method || res.Fallbacks[0].Fallback != anomaly.MethodZScore {
				t.Errorf("unexpected fallbacks %+v", res.Fallbacks)
			}
			if len(res.Anomalies) == 0 {
				t.Fatal("expected the spike to be flagged by the fallback")
			}
			if res.Anomalies[0].DetectionMethod != "zscore" {
				t.Errorf("detection method = %s, want zscore", res.Anomalies[0].DetectionMethod)
			}
		})
	}
}

func TestDetector_Idempotent(t *testing.T) {
	d := newTestDetector()
	costs := []float64{100, 101, 102, 100, 101, 102, 100, 101, 800, 102, 100, 101, 99, 100, 180, 101}
	req := Request{
		Observations:     dailySeries(costs, "EC2", "AWS"),
		Method:           anomaly.MethodEnsemble,
		Threshold:        2.0,
		AnalyzeRootCause: true,
	}

	first := d.Detect(context.Background(), req)
	second := d.Detect(context.Background(), req)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated runs differ:\n%+v\n%+v", first, second)
	}
}

func TestDetector_RoundTripInvariant(t *testing.T) {
	d := newTestDetector()
	costs := []float64{120.37, 118.21, 121.93, 119.48, 402.11, 117.64, 122.05, 40.12, 120.88, 119.99, 121.42, 118.73}

	for _, m := range []anomaly.Method{anomaly.MethodZScore, anomaly.MethodIsolation, anomaly.MethodDensity, anomaly.MethodEnsemble} {
		t.Run(string(m), func(t *testing.T) {
			res := d.Detect(context.Background(), Request{
				Observations: dailySeries(costs, "Compute Engine", "GCP"),
				Method:       m,
				Threshold:    2.0,
			})
			if !res.Success {
				t.Fatalf("expected success, got error %q", res.Error)
			}
			for _, a := range res.Anomalies {
				if math.Abs(a.CostDifference-(a.Cost-a.BaselineCost)) > 0.01 {
					t.Errorf("cost difference %v != cost %v - baseline %v", a.CostDifference, a.Cost, a.BaselineCost)
				}
				want := 0.0
				if a.BaselineCost != 0 {
					want = a.CostDifference / a.BaselineCost * 100
				}
				if math.Abs(a.PercentageIncrease-want) > 0.01 {
					t.Errorf("percentage %v, want %v", a.PercentageIncrease, want)
				}
				if a.Confidence < 0 || a.Confidence > 1 {
					t.Errorf("confidence %v out of range", a.Confidence)
				}
				if a.MethodsAgreement > a.MethodsTotal {
					t.Errorf("agreement %d exceeds total %d", a.MethodsAgreement, a.MethodsTotal)
				}
			}
		})
	}
}

func TestDetector_CustomEventRankedFirst(t *testing.T) {
	d := newTestDetector()
	spikeDay := testStart.AddDate(0, 0, 4)

	res := d.Detect(context.Background(), Request{
		Observations:     dailySeries(spikeCosts, "EC2", "AWS"),
		Method:           anomaly.MethodZScore,
		Threshold:        2.0,
		AnalyzeRootCause: true,
		CustomEvents: []anomaly.CustomEvent{
			{Date: spikeDay.AddDate(0, 0, -1), Name: "Batch fleet deployment", Services: []string{"ec2"}},
			{Date: spikeDay.AddDate(0, 0, -5), Name: "Old migration"},
		},
	})

	if !res.Success || len(res.Anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %+v", res)
	}
	a := res.Anomalies[0]
	if a.CloudContext == nil || len(a.CloudContext.ProbableCauses) < 2 {
		t.Fatalf("expected custom and taxonomy causes, got %+v", a.CloudContext)
	}
	top := a.CloudContext.ProbableCauses[0]
	if top.Cause != "Batch fleet deployment" || top.Confidence != anomaly.ConfidenceVeryHigh {
		t.Errorf("top cause = %+v", top)
	}
	if a.RootCause != "Batch fleet deployment" {
		t.Errorf("root cause = %q", a.RootCause)
	}
	for _, c := range a.CloudContext.ProbableCauses[1:] {
		if c.Cause == "Old migration" {
			t.Error("event outside the one day window matched")
		}
	}
}

func TestDetector_ContextSkippedOnShortSeries(t *testing.T) {
	d := New(Config{MinPoints: 5, ContextMinPoints: 10}, nil)

	res := d.Detect(context.Background(), Request{
		Observations:     dailySeries(spikeCosts, "EC2", "AWS"),
		Method:           anomaly.MethodZScore,
		Threshold:        2.0,
		AnalyzeRootCause: true,
	})
	if !res.Success || len(res.Anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %+v", res)
	}
	if res.Anomalies[0].CloudContext != nil {
		t.Error("expected no cloud context")
	}
	if res.Note != NoteContextSkipped {
		t.Errorf("note = %q", res.Note)
	}
}

func TestDetector_SequentialMatchesParallel(t *testing.T) {
	costs := []float64{100, 101, 102, 100, 101, 102, 100, 101, 800, 102, 100, 101, 99, 100, 180, 101}
	req := Request{Observations: dailySeries(costs, "EC2", "AWS"), Method: anomaly.MethodEnsemble}

	cfg := DefaultConfig()
	cfg.Parallel = false
	seq := New(cfg, nil, WithIDGenerator(func() string { return "x" }), WithClock(func() time.Time { return testStart }))
	par := New(DefaultConfig(), nil, WithIDGenerator(func() string { return "x" }), WithClock(func() time.Time { return testStart }))

	a := seq.Detect(context.Background(), req)
	b := par.Detect(context.Background(), req)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("sequential and parallel runs differ:\n%+v\n%+v", a, b)
	}
}
