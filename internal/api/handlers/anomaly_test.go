package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pratik-mahalle/costlens/internal/api/middleware"
	"github.com/pratik-mahalle/costlens/internal/detector"
	"github.com/pratik-mahalle/costlens/internal/domain/cost"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/pratik-mahalle/costlens/internal/pkg/validator"
	"github.com/pratik-mahalle/costlens/internal/services"
	"github.com/pratik-mahalle/costlens/internal/testutil"
)

type anomalyFixture struct {
	handler   *AnomalyHandler
	anomalies *testutil.MockAnomalyRepository
	costs     *testutil.MockCostRepository
}

func newAnomalyFixture(t *testing.T) anomalyFixture {
	t.Helper()
	anomalies := testutil.NewMockAnomalyRepository()
	costs := testutil.NewMockCostRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	det := detector.New(detector.DefaultConfig(), log)
	svc := services.NewAnomalyService(anomalies, costs, det, log)
	return anomalyFixture{
		handler:   NewAnomalyHandler(svc, log, validator.New()),
		anomalies: anomalies,
		costs:     costs,
	}
}

// seedRecentSpike stores a week of EC2 costs ending yesterday, with a spike four days in
func seedRecentSpike(t *testing.T, costs *testutil.MockCostRepository) time.Time {
	t.Helper()
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -7)
	rows := testutil.DailyCosts(1, cost.ProviderAWS, "EC2", start, 100, 98, 102, 101, 500, 99, 103)
	if _, err := costs.UpsertCosts(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	return start.AddDate(0, 0, 4)
}

func withUser(req *http.Request, userID int64) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dst); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
}

func TestAnomalyHandler_Detect(t *testing.T) {
	tests := []struct {
		name           string
		userID         int64
		query          string
		body           string
		expectedStatus int
		expectedCount  int
	}{
		{
			name:           "zscore over stored costs",
			userID:         1,
			query:          "?days=30&threshold=2&method=zscore",
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:           "with custom events body",
			userID:         1,
			query:          "?threshold=2&method=zscore",
			body:           `{"custom_events":[{"date":"2024-03-05","name":"Black Friday sale"}]}`,
			expectedStatus: http.StatusOK,
			expectedCount:  1,
		},
		{
			name:           "other user sees no data",
			userID:         2,
			query:          "?threshold=2&method=zscore",
			expectedStatus: http.StatusOK,
			expectedCount:  0,
		},
		{
			name:           "unknown method",
			userID:         1,
			query:          "?method=prophet",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "non numeric threshold",
			userID:         1,
			query:          "?threshold=high",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "window too long",
			userID:         1,
			query:          "?days=400",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid event date",
			userID:         1,
			body:           `{"custom_events":[{"date":"05/03/2024","name":"launch"}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unauthenticated",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAnomalyFixture(t)
			seedRecentSpike(t, f.costs)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/anomalies/detect"+tt.query, bytes.NewBufferString(tt.body))
			if tt.userID != 0 {
				req = withUser(req, tt.userID)
			}
			rr := httptest.NewRecorder()

			f.handler.Detect(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v, body: %s", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if rr.Code != http.StatusOK {
				return
			}
			var result struct {
				Success      bool `json:"success"`
				AnomalyCount int  `json:"anomaly_count"`
			}
			decodeData(t, rr, &result)
			if !result.Success || result.AnomalyCount != tt.expectedCount {
				t.Errorf("result = %+v, want %d anomalies", result, tt.expectedCount)
			}
			if len(f.anomalies.Anomalies) != tt.expectedCount {
				t.Errorf("stored %d anomalies, want %d", len(f.anomalies.Anomalies), tt.expectedCount)
			}
		})
	}
}

func TestAnomalyHandler_ListAndGet(t *testing.T) {
	f := newAnomalyFixture(t)
	ctx := context.Background()

	a := testutil.SampleAnomaly(1, "EC2", testutil.Day(4))
	if _, err := f.anomalies.Upsert(ctx, a); err != nil {
		t.Fatal(err)
	}
	low := testutil.SampleAnomaly(1, "S3", testutil.Day(5))
	low.Severity = "low"
	if _, err := f.anomalies.Upsert(ctx, low); err != nil {
		t.Fatal(err)
	}

	listTests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  int
	}{
		{name: "list all", expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "filter severity", query: "?severity=critical", expectedStatus: http.StatusOK, expectedCount: 1},
		{name: "paginate", query: "?page=2&page_size=1", expectedStatus: http.StatusOK, expectedCount: 1},
		{name: "bad date", query: "?start_date=yesterday", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range listTests {
		t.Run(tt.name, func(t *testing.T) {
			req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/anomalies"+tt.query, nil), 1)
			rr := httptest.NewRecorder()

			f.handler.List(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if rr.Code != http.StatusOK {
				return
			}
			var page struct {
				Data       []map[string]interface{} `json:"data"`
				TotalItems int64                    `json:"total_items"`
			}
			decodeData(t, rr, &page)
			if len(page.Data) != tt.expectedCount {
				t.Errorf("got %d items, want %d", len(page.Data), tt.expectedCount)
			}
		})
	}

	getTests := []struct {
		name           string
		userID         int64
		id             string
		expectedStatus int
	}{
		{name: "existing", userID: 1, id: a.ID, expectedStatus: http.StatusOK},
		{name: "other user", userID: 2, id: a.ID, expectedStatus: http.StatusNotFound},
		{name: "missing", userID: 1, id: "does-not-exist", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range getTests {
		t.Run("get "+tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/"+tt.id, nil)
			req = withURLParam(withUser(req, tt.userID), "id", tt.id)
			rr := httptest.NewRecorder()

			f.handler.Get(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestAnomalyHandler_UpdateStatusAndDelete(t *testing.T) {
	f := newAnomalyFixture(t)
	a := testutil.SampleAnomaly(1, "EC2", testutil.Day(4))
	if _, err := f.anomalies.Upsert(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	statusTests := []struct {
		name           string
		id             string
		body           string
		expectedStatus int
	}{
		{name: "acknowledge", id: a.ID, body: `{"status":"acknowledged"}`, expectedStatus: http.StatusOK},
		{name: "unknown status", id: a.ID, body: `{"status":"closed"}`, expectedStatus: http.StatusBadRequest},
		{name: "empty body", id: a.ID, body: ``, expectedStatus: http.StatusBadRequest},
		{name: "missing anomaly", id: "nope", body: `{"status":"resolved"}`, expectedStatus: http.StatusNotFound},
	}

	for _, tt := range statusTests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/api/v1/anomalies/"+tt.id+"/status", bytes.NewBufferString(tt.body))
			req = withURLParam(withUser(req, 1), "id", tt.id)
			rr := httptest.NewRecorder()

			f.handler.UpdateStatus(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v, body: %s", rr.Code, tt.expectedStatus, rr.Body.String())
			}
		})
	}

	if got := f.anomalies.Anomalies[a.ID].Status; got != "acknowledged" {
		t.Errorf("status = %q, want acknowledged", got)
	}

	req := withURLParam(withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/anomalies/"+a.ID, nil), 1), "id", a.ID)
	rr := httptest.NewRecorder()
	f.handler.Delete(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.handler.Delete(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestAnomalyHandler_GetSummary(t *testing.T) {
	f := newAnomalyFixture(t)
	for i, svc := range []string{"EC2", "S3", "RDS"} {
		if _, err := f.anomalies.Upsert(context.Background(), testutil.SampleAnomaly(1, svc, testutil.Day(i))); err != nil {
			t.Fatal(err)
		}
	}

	rr := httptest.NewRecorder()
	f.handler.GetSummary(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/summary", nil), 1))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var summary struct {
		Total      int            `json:"total"`
		BySeverity map[string]int `json:"by_severity"`
	}
	decodeData(t, rr, &summary)
	if summary.Total != 3 || summary.BySeverity["critical"] != 3 {
		t.Errorf("summary = %+v", summary)
	}
}
