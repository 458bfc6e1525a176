package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pratik-mahalle/costlens/internal/auth"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
)

// run executes the CLI with an isolated home directory
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func spikeCSV(days int, spikeAt int) string {
	var b strings.Builder
	b.WriteString("date,cost,service,provider\n")
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		cost := 100 + float64(i%3)
		if i == spikeAt {
			cost = 500
		}
		fmt.Fprintf(&b, "%s,%.2f,EC2,aws\n", start.AddDate(0, 0, i).Format(dateLayout), cost)
	}
	return b.String()
}

func TestReadCSV(t *testing.T) {
	rows, err := readCSV(strings.NewReader("Date, Cost ,Service,Provider,resource_id\n2024-03-01,10.50,EC2,aws,i-1\n2024-03-02,,EC2,aws,\n2024-03-03,null,S3,aws,\n"))
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Cost == nil || *rows[0].Cost != 10.5 || rows[0].ResourceID != "i-1" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Cost != nil || rows[2].Cost != nil {
		t.Error("empty and null cost cells should be missing")
	}

	tests := []struct {
		name  string
		input string
	}{
		{"no date column", "cost,service\n1,EC2\n"},
		{"no cost column", "date,service\n2024-03-01,EC2\n"},
		{"bad cost", "date,cost\n2024-03-01,abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readCSV(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadObservations(t *testing.T) {
	jsonPath := writeFile(t, "costs.json", `[
		{"date": "2024-03-01", "cost": 12.5, "service": "BigQuery", "provider": "gcp"},
		{"date": "2024-03-02T00:00:00Z", "cost": null, "service": "BigQuery", "provider": "gcp"}
	]`)
	yamlPath := writeFile(t, "costs.yaml", "- date: \"2024-03-01\"\n  cost: 3\n  service: Storage\n  provider: azure\n")

	obs, err := loadObservations(jsonPath, yamlPath)
	if err != nil {
		t.Fatalf("loadObservations: %v", err)
	}
	if len(obs) != 3 {
		t.Fatalf("observations = %d, want 3", len(obs))
	}
	if !obs[0].Cost.Valid || obs[0].Cost.Decimal.InexactFloat64() != 12.5 {
		t.Errorf("obs[0].Cost = %v", obs[0].Cost)
	}
	if obs[1].Cost.Valid {
		t.Error("null cost should stay missing")
	}
	if obs[1].Date.Day() != 2 || obs[2].Provider != "azure" {
		t.Errorf("unexpected observations %+v", obs)
	}

	bad := writeFile(t, "bad.json", `[{"date": "March 1", "cost": 1}]`)
	if _, err := loadObservations(bad); err == nil {
		t.Error("expected error for invalid date")
	}
}

func TestLoadEventsAndUtilization(t *testing.T) {
	events, err := loadEvents(writeFile(t, "events.yaml", "- date: \"2024-03-10\"\n  name: Launch\n  services: [EC2]\n"))
	if err != nil || len(events) != 1 || events[0].Name != "Launch" || events[0].Services[0] != "EC2" {
		t.Fatalf("loadEvents = %+v, %v", events, err)
	}

	util, err := loadUtilization(writeFile(t, "util.json", `[{"date": "2024-03-10", "metric": "cpu", "value": 91.5}]`))
	if err != nil || len(util) != 1 || util[0].Value != 91.5 {
		t.Fatalf("loadUtilization = %+v, %v", util, err)
	}

	if events, err := loadEvents(""); err != nil || events != nil {
		t.Errorf("empty path = %v, %v", events, err)
	}
}

func TestDetectCommand_JSON(t *testing.T) {
	path := writeFile(t, "costs.csv", spikeCSV(14, 10))

	out, err := run(t, "detect", path, "--method", "zscore", "--threshold", "2", "-o", "json")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	var result anomaly.DetectionResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if !result.Success || result.DataPoints != 14 {
		t.Fatalf("result = %+v", result)
	}
	if result.AnomalyCount != 1 || result.Anomalies[0].Cost != 500 {
		t.Fatalf("anomalies = %+v", result.Anomalies)
	}
	if result.Anomalies[0].CloudContext == nil {
		t.Error("expected cloud context")
	}
}

func TestDetectCommand_Table(t *testing.T) {
	path := writeFile(t, "costs.csv", spikeCSV(14, 10))

	out, err := run(t, "detect", path, "--method", "zscore", "--threshold", "2", "--no-root-cause")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !strings.Contains(out, "2024-03-11") || !strings.Contains(out, "500.00") {
		t.Errorf("table output missing anomaly:\n%s", out)
	}
}

func TestDetectCommand_TooFewPoints(t *testing.T) {
	path := writeFile(t, "costs.csv", spikeCSV(3, -1))

	out, err := run(t, "detect", path)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !strings.Contains(out, "No anomalies found.") {
		t.Errorf("output = %q", out)
	}
}

func TestDetectCommand_UnknownMethod(t *testing.T) {
	path := writeFile(t, "costs.csv", spikeCSV(14, 10))

	out, err := run(t, "detect", path, "--method", "bogus")
	if err == nil {
		t.Fatal("expected error for an unknown method")
	}
	if !strings.Contains(out, "Detection failed") {
		t.Errorf("output = %q", out)
	}
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("COSTLENS_TOKEN", "tok")
	return srv.URL
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": data})
}

func TestAnomaliesList(t *testing.T) {
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/anomalies" || r.URL.Query().Get("severity") != "high" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		writeData(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{{
				"id": "a-1", "cost_date": "2024-03-11", "provider": "aws", "service": "EC2",
				"cost": 500, "percentage_increase": 390.2, "severity": "high", "status": "detected",
			}},
			"page": 1, "page_size": 20, "total_items": 1, "total_pages": 1,
		})
	})

	out, err := run(t, "--server", url, "anomalies", "list", "--severity", "high")
	if err != nil {
		t.Fatalf("anomalies list: %v", err)
	}
	for _, want := range []string{"a-1", "EC2", "500.00", "+390.2%", "HIGH", "Page 1 of 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnomaliesAck(t *testing.T) {
	var gotStatus string
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/v1/anomalies/a-1/status" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct{ Status string }
		json.NewDecoder(r.Body).Decode(&body)
		gotStatus = body.Status
		writeData(w, http.StatusOK, map[string]string{"id": "a-1", "status": body.Status})
	})

	out, err := run(t, "--server", url, "anomalies", "ack", "a-1")
	if err != nil {
		t.Fatalf("anomalies ack: %v", err)
	}
	if gotStatus != "acknowledged" || !strings.Contains(out, "acknowledged") {
		t.Errorf("status = %q, output = %q", gotStatus, out)
	}
}

func TestAnomaliesDetect_Failure(t *testing.T) {
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error": map[string]interface{}{
				"code":    "DETECTION_FAILED",
				"message": "Insufficient data",
				"details": map[string]interface{}{"success": false, "error": "Insufficient data: 2 points"},
			},
		})
	})

	out, err := run(t, "--server", url, "anomalies", "detect", "--days", "7")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out, "Insufficient data: 2 points") {
		t.Errorf("output = %q", out)
	}
}

func TestCostsIngest(t *testing.T) {
	var received int
	url := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/costs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Costs []map[string]interface{} `json:"costs"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		received = len(body.Costs)
		writeData(w, http.StatusCreated, map[string]int{"stored": received})
	})
	path := writeFile(t, "costs.csv", spikeCSV(5, -1))

	out, err := run(t, "--server", url, "costs", "ingest", path)
	if err != nil {
		t.Fatalf("costs ingest: %v", err)
	}
	if received != 5 || !strings.Contains(out, "Stored 5 of 5") {
		t.Errorf("received = %d, output = %q", received, out)
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "token", "--secret", "s3cret", "--user-id", "42", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims, err := auth.ParseClaims(strings.TrimSpace(out), "s3cret")
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("UserID = %d, want 42", claims.UserID)
	}

	if _, err := run(t, "token", "--secret", "s3cret"); err == nil {
		t.Error("expected error without --user-id")
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]float64{"b": 1, "a": 1, "c": 5})
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("sortedKeys = %v", got)
	}
}
