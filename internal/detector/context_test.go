package detector

import (
	"reflect"
	"testing"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

func spikeRecord(service, provider string, day int, cost float64) anomaly.AnomalyRecord {
	return anomaly.AnomalyRecord{
		Date:     testStart.AddDate(0, 0, day),
		Service:  service,
		Provider: provider,
		Cost:     cost,
	}
}

func TestAnalyzer_ClassifyPattern(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)

	tests := []struct {
		name  string
		costs []float64
		day   int
		want  anomaly.PatternType
	}{
		{
			name:  "one day spike that reverts",
			costs: spikeCosts,
			day:   4,
			want:  anomaly.PatternTemporarySpike,
		},
		{
			name:  "level shift that persists",
			costs: []float64{100, 100, 100, 100, 160, 165, 160, 162},
			day:   4,
			want:  anomaly.PatternStepIncrease,
		},
		{
			name:  "jump at the end of the series",
			costs: []float64{100, 100, 100, 100, 100, 100, 200},
			day:   6,
			want:  anomaly.PatternSuddenIncrease,
		},
		{
			name:  "same weekday runs hot",
			costs: []float64{180, 100, 100, 100, 100, 100, 100, 180, 100, 100, 100, 100, 100, 100, 140},
			day:   14,
			want:  anomaly.PatternCyclicalSpike,
		},
		{
			name:  "flat",
			costs: []float64{100, 100, 100, 100, 100, 100, 100},
			day:   3,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seriesOf(tt.costs)
			got := a.classifyPattern(s.Daily(EntityKey{Provider: "AWS", Service: "EC2"}), testStart.AddDate(0, 0, tt.day))
			if got != tt.want {
				t.Errorf("classifyPattern = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		rec      anomaly.AnomalyRecord
		pattern  anomaly.PatternType
		wantName string
		wantConf string
	}{
		{
			name:     "service listed explicitly",
			rec:      spikeRecord("EC2", "AWS", 0, 0),
			pattern:  anomaly.PatternTemporarySpike,
			wantName: "Data transfer spike",
			wantConf: anomaly.ConfidenceHigh,
		},
		{
			name:     "event applies to all services",
			rec:      spikeRecord("Amazon Route 53", "aws", 0, 0),
			pattern:  anomaly.PatternCyclicalSpike,
			wantName: "Monthly support and subscription charges",
			wantConf: anomaly.ConfidenceMedium,
		},
		{
			name:     "provider alias",
			rec:      spikeRecord("BigQuery", "Google Cloud", 0, 0),
			pattern:  anomaly.PatternTemporarySpike,
			wantName: "BigQuery on-demand query burst",
			wantConf: anomaly.ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			causes := matchTaxonomy(tt.rec, tt.pattern)
			if len(causes) == 0 {
				t.Fatal("expected a taxonomy match")
			}
			if causes[0].Cause != tt.wantName || causes[0].Confidence != tt.wantConf {
				t.Errorf("got %+v", causes[0])
			}
			if causes[0].Source != anomaly.SourceCloudEvent {
				t.Errorf("source = %s", causes[0].Source)
			}
		})
	}

	if causes := matchTaxonomy(spikeRecord("EC2", "AWS", 0, 0), ""); causes != nil {
		t.Errorf("expected no match without a pattern, got %+v", causes)
	}
	if causes := matchTaxonomy(spikeRecord("EC2", "oracle", 0, 0), anomaly.PatternStepIncrease); causes != nil {
		t.Errorf("expected no match for an unknown provider, got %+v", causes)
	}
}

func TestCorrelateUtilization(t *testing.T) {
	rec := spikeRecord("EC2", "AWS", 4, 500)
	var rows []anomaly.UtilizationObservation
	instances := []float64{10, 10, 10, 10, 40, 10, 10}
	storage := []float64{1, 1, 1, 1, 10, 1, 1}
	network := []float64{5, 5, 5, 5, 5, 5, 5}
	for i := range instances {
		date := testStart.AddDate(0, 0, i)
		rows = append(rows,
			anomaly.UtilizationObservation{Date: date, Service: "EC2", Metric: "instance_count", Value: instances[i], ResourceID: "asg-web"},
			anomaly.UtilizationObservation{Date: date, Service: "EC2", Metric: "storage_gb", Value: storage[i]},
			anomaly.UtilizationObservation{Date: date, Service: "EC2", Metric: "network_egress_gb", Value: network[i]},
			anomaly.UtilizationObservation{Date: date, Service: "S3", Metric: "storage_gb", Value: 1000},
		)
	}

	causes, resources := correlateUtilization(rec, rows)

	if len(causes) != 2 {
		t.Fatalf("expected 2 causes, got %+v", causes)
	}
	for _, c := range causes {
		if c.Confidence != anomaly.ConfidenceHigh {
			t.Errorf("cause %s confidence = %s, want high", c.Cause, c.Confidence)
		}
		if c.Source != anomaly.SourceResourcePattern {
			t.Errorf("cause %s source = %s", c.Cause, c.Source)
		}
	}
	if causes[0].Cause != "Instance count surge" || causes[1].Cause != "Storage volume growth" {
		t.Errorf("unexpected causes %s, %s", causes[0].Cause, causes[1].Cause)
	}
	if !reflect.DeepEqual(resources, []string{"asg-web"}) {
		t.Errorf("affected resources = %v", resources)
	}

	single, _ := correlateUtilization(rec, rows[:0:0])
	if len(single) != 0 {
		t.Errorf("expected no causes without utilization data")
	}
}

func TestRelatedServices(t *testing.T) {
	obs := dailySeries(spikeCosts, "EC2", "AWS")
	obs = append(obs, dailySeries([]float64{50, 50, 50, 50, 90, 50, 50}, "S3", "AWS")...)
	obs = append(obs, dailySeries([]float64{20, 20, 20, 20, 22, 20, 20}, "CloudWatch", "AWS")...)
	obs = append(obs, dailySeries([]float64{10, 10, 10, 10, 7, 10, 10}, "Cloud Storage", "GCP")...)

	related := relatedServices(spikeRecord("EC2", "AWS", 4, 500), Normalize(obs))

	if len(related) != 2 {
		t.Fatalf("expected 2 related services, got %+v", related)
	}
	// Entities are sorted by provider then service: AWS/S3 before GCP/Cloud Storage
	if related[0].Service != "S3" || related[0].ChangePercent != 80 || related[0].Correlation != anomaly.CorrelationStrong {
		t.Errorf("S3 = %+v", related[0])
	}
	if related[1].Service != "Cloud Storage" || related[1].ChangePercent != -30 || related[1].Correlation != anomaly.CorrelationModerate {
		t.Errorf("Cloud Storage = %+v", related[1])
	}
}

func TestMitigations(t *testing.T) {
	causes := []anomaly.ProbableCause{
		{Cause: "Reserved Instance expiration", Description: "Usage is billed at on-demand rates"},
		{Cause: "Instance count surge"},
	}

	got := mitigations("Amazon Elastic Compute Cloud - Compute", causes)

	want := append([]string{}, categoryMitigations[categoryCompute]...)
	want = append(want, keywordMitigations[0].suggestions...)
	want = append(want, keywordMitigations[1].suggestions...)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mitigations =\n%v\nwant\n%v", got, want)
	}

	if got := mitigations("Unknown", nil); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}

func TestServiceCategory(t *testing.T) {
	tests := map[string]string{
		"EC2":                                categoryCompute,
		"Amazon Relational Database Service": categoryDatabase,
		"Cloud SQL":                          categoryDatabase,
		"Amazon Simple Storage Service":      categoryStorage,
		"Virtual Machines":                   categoryCompute,
		"Support":                            "",
	}
	for svc, want := range tests {
		if got := serviceCategory(svc); got != want {
			t.Errorf("serviceCategory(%q) = %q, want %q", svc, got, want)
		}
	}
}

func TestAnalyzer_EmptyContextOnFailure(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)

	ctx := a.Analyze(spikeRecord("EC2", "AWS", 4, 500), ContextInput{})

	if !reflect.DeepEqual(ctx, anomaly.EmptyCloudContext()) {
		t.Errorf("expected empty context, got %+v", ctx)
	}
}

func TestAnalyzer_Enrich(t *testing.T) {
	a := NewAnalyzer(DefaultConfig(), nil)
	s := seriesOf(spikeCosts)
	rec := spikeRecord("EC2", "AWS", 4, 500)

	out := a.Enrich(rec, ContextInput{Series: s})

	if rec.CloudContext != nil {
		t.Error("input record was modified")
	}
	if out.CloudContext == nil || out.CloudContext.PatternType != anomaly.PatternTemporarySpike {
		t.Fatalf("unexpected context %+v", out.CloudContext)
	}
	if out.RootCause != "Data transfer spike" {
		t.Errorf("root cause = %q", out.RootCause)
	}
	if len(out.CloudContext.MitigationSuggestions) == 0 {
		t.Error("expected mitigation suggestions")
	}
}
