package postgres

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/testutil"
)

func TestCostRepository_UpsertAndQuery(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	repo := NewCostRepository(Wrap(db, DriverSQLite))
	ctx := context.Background()

	rows := testutil.DailyCosts(1, cost.ProviderAWS, "EC2", testutil.Day(0), 100, 98, 102)
	rows = append(rows, testutil.DailyCosts(1, cost.ProviderGCP, "BigQuery", testutil.Day(0), 10, 12)...)
	rows = append(rows, testutil.DailyCosts(2, cost.ProviderAWS, "EC2", testutil.Day(0), 1)...)
	rows[1].DailyCost = nil

	n, err := repo.UpsertCosts(ctx, rows)
	if err != nil || n != len(rows) {
		t.Fatalf("UpsertCosts() = %d, %v", n, err)
	}

	// Re-sync of one day replaces the amount instead of duplicating the row
	if _, err := repo.UpsertCosts(ctx, testutil.DailyCosts(1, cost.ProviderAWS, "EC2", testutil.Day(2), 150)); err != nil {
		t.Fatalf("UpsertCosts() error = %v", err)
	}

	got, err := repo.GetCostsByDateRange(ctx, 1, cost.Filter{Provider: cost.ProviderAWS}, testutil.Day(0), testutil.Day(2))
	if err != nil {
		t.Fatalf("GetCostsByDateRange() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	if got[1].DailyCost != nil {
		t.Errorf("null cost was read back as %v", *got[1].DailyCost)
	}
	if got[2].DailyCost == nil || *got[2].DailyCost != 150 {
		t.Errorf("re-synced cost not applied: %+v", got[2])
	}
	if !got[0].CostDate.Equal(testutil.Day(0)) {
		t.Errorf("rows not ordered by date: %v", got[0].CostDate)
	}

	summary, err := repo.GetCostSummary(ctx, 1, cost.Filter{}, testutil.Day(0), testutil.Day(2))
	if err != nil {
		t.Fatalf("GetCostSummary() error = %v", err)
	}
	if summary.TotalCost != 272 {
		t.Errorf("total = %v, want 272", summary.TotalCost)
	}
	if summary.ByProvider[cost.ProviderGCP] != 22 || summary.ByService["EC2"] != 250 {
		t.Errorf("summary = %+v", summary)
	}

	removed, err := repo.DeleteCostsByDate(ctx, 1, testutil.Day(1))
	if err != nil {
		t.Fatalf("DeleteCostsByDate() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d rows, want 2", removed)
	}
}

func TestDB_Rebind(t *testing.T) {
	tests := []struct {
		driver string
		in     string
		want   string
	}{
		{DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DriverPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		if got := Wrap(nil, tt.driver).Rebind(tt.in); got != tt.want {
			t.Errorf("Rebind(%q) on %s = %q, want %q", tt.in, tt.driver, got, tt.want)
		}
	}
}

func TestRunMigrations(t *testing.T) {
	db := testutil.NewTestDB(t)
	defer testutil.CleanupDB(db)

	wrapped := Wrap(db, DriverSQLite)
	fsys := fstest.MapFS{
		"001_initial_schema.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS resource_costs (id TEXT)")},
		"002_notes.sql":          {Data: []byte("CREATE TABLE anomaly_notes (id TEXT PRIMARY KEY, body TEXT)")},
		"README.md":              {Data: []byte("not a migration")},
	}

	applied, err := RunMigrations(wrapped, fsys)
	if err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if applied != 2 {
		t.Errorf("applied %d, want 2", applied)
	}

	applied, err = RunMigrations(wrapped, fsys)
	if err != nil || applied != 0 {
		t.Errorf("second run applied %d, %v; want 0, nil", applied, err)
	}
}
