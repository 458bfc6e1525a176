package testutil

import (
	"database/sql"
	"io/fs"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/migrations"
	_ "modernc.org/sqlite"
)

// NewTestDB creates an in-memory SQLite database with the embedded schema applied
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	entries, err := fs.ReadDir(migrations.Files, ".")
	if err != nil {
		t.Fatalf("Failed to read migrations: %v", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		schema, err := fs.ReadFile(migrations.Files, name)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", name, err)
		}
		if _, err := db.Exec(string(schema)); err != nil {
			t.Fatalf("Failed to apply %s: %v", name, err)
		}
	}

	return db
}

// CleanupDB closes the test database
func CleanupDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}

// Day returns midnight UTC of 2024-03-01 plus offset days
func Day(offset int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

// DailyCosts builds one cost row per value on consecutive days starting at start
func DailyCosts(userID int64, provider, service string, start time.Time, values ...float64) []*cost.Cost {
	out := make([]*cost.Cost, 0, len(values))
	for i, v := range values {
		out = append(out, &cost.Cost{
			UserID:      userID,
			Provider:    provider,
			ServiceName: service,
			CostDate:    start.AddDate(0, 0, i),
			DailyCost:   cost.Amount(v),
			Currency:    "USD",
		})
	}
	return out
}

// SampleAnomaly returns a persisted-shape anomaly for repository and handler tests
func SampleAnomaly(userID int64, service string, day time.Time) *anomaly.Anomaly {
	return &anomaly.Anomaly{
		UserID:             userID,
		Provider:           "aws",
		Service:            service,
		CostDate:           day,
		Cost:               500,
		BaselineCost:       100.5,
		CostDifference:     399.5,
		PercentageIncrease: 397.51,
		DetectionMethod:    string(anomaly.MethodZScore),
		MethodsAgreement:   1,
		MethodsTotal:       1,
		Confidence:         1,
		AnomalyType:        anomaly.TypeCostSpike,
		Severity:           anomaly.SeverityCritical,
		Status:             anomaly.StatusDetected,
		DetectedAt:         day.Add(6 * time.Hour),
	}
}
