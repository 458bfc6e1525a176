package detector

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

func TestNormalize(t *testing.T) {
	d0 := time.Date(2024, 5, 1, 13, 45, 0, 0, time.UTC)
	obs := []anomaly.CostObservation{
		anomaly.NewCostObservation(d0.AddDate(0, 0, 2), 30, "S3", "AWS"),
		anomaly.NewCostObservation(d0, 10, "EC2", "AWS"),
		{Date: d0.AddDate(0, 0, 1), Service: "EC2", Provider: "AWS"},
		anomaly.NewCostObservation(time.Time{}, 999, "EC2", "AWS"),
		anomaly.NewCostObservation(d0.AddDate(0, 0, 1), 20, "", " "),
	}

	s := Normalize(obs)

	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
	if s.Imputed() != 1 {
		t.Errorf("Imputed() = %d, want 1", s.Imputed())
	}

	first := s.At(0)
	if first.Service != "EC2" || first.Cost != 10 || first.DayOffset != 0 {
		t.Errorf("first point = %+v", first)
	}
	if first.Date.Hour() != 0 {
		t.Errorf("date not truncated to the day: %s", first.Date)
	}

	// Same date: AWS/EC2 sorts before Unknown/Unknown
	imputed := s.At(1)
	if !imputed.Imputed || imputed.Cost != 20 {
		t.Errorf("imputed point = %+v, want median cost 20", imputed)
	}
	unknown := s.At(2)
	if unknown.Service != anomaly.UnknownLabel || unknown.Provider != anomaly.UnknownLabel {
		t.Errorf("missing labels not replaced: %+v", unknown)
	}
	if s.At(3).DayOffset != 2 {
		t.Errorf("day offset = %v, want 2", s.At(3).DayOffset)
	}
	if s.DistinctDates() != 3 {
		t.Errorf("DistinctDates() = %d, want 3", s.DistinctDates())
	}
}

func TestNormalize_AllCostsMissing(t *testing.T) {
	obs := []anomaly.CostObservation{
		{Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Service: "EC2", Provider: "AWS", Cost: decimal.NullDecimal{}},
	}

	s := Normalize(obs)
	if s.Len() != 1 || s.At(0).Cost != 0 {
		t.Errorf("expected a single zero-filled point, got %+v", s.points)
	}
}

func TestSeries_Daily(t *testing.T) {
	d0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a := anomaly.NewCostObservation(d0, 10, "EC2", "AWS")
	a.ResourceID = "i-1"
	b := anomaly.NewCostObservation(d0, 5, "EC2", "AWS")
	b.ResourceID = "i-2"
	c := anomaly.NewCostObservation(d0.AddDate(0, 0, 1), 7, "EC2", "AWS")
	other := anomaly.NewCostObservation(d0, 100, "S3", "AWS")

	s := Normalize([]anomaly.CostObservation{c, b, other, a})

	daily := s.Daily(EntityKey{Provider: "AWS", Service: "EC2"})
	if len(daily) != 2 {
		t.Fatalf("expected 2 days, got %d", len(daily))
	}
	if daily[0].Cost != 15 || daily[1].Cost != 7 {
		t.Errorf("daily totals = %+v", daily)
	}

	keys := s.Entities()
	if len(keys) != 2 || keys[0].Service != "EC2" || keys[1].Service != "S3" {
		t.Errorf("entities = %+v", keys)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{name: "empty", in: nil, want: 0},
		{name: "odd", in: []float64{3, 1, 2}, want: 2},
		{name: "even", in: []float64{100, 98, 102, 101, 99, 103}, want: 100.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := median(tt.in); got != tt.want {
				t.Errorf("median(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 397.5124, want: 397.51},
		{in: 1.005, want: 1.01},
		{in: -2.345, want: -2.35},
		{in: 10, want: 10},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
