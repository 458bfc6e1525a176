package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pratik-mahalle/costlens/internal/auth"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
)

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	valid, err := auth.MintAccessToken(42, "ops@example.com", secret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("MintAccessToken() error = %v", err)
	}

	var gotUser int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})
	h := AuthMiddleware(secret)(next)

	tests := []struct {
		name           string
		header         string
		cookie         string
		expectedStatus int
		expectedUser   int64
	}{
		{name: "bearer token", header: "Bearer " + valid, expectedStatus: http.StatusOK, expectedUser: 42},
		{name: "lowercase scheme", header: "bearer " + valid, expectedStatus: http.StatusOK, expectedUser: 42},
		{name: "cookie token", cookie: valid, expectedStatus: http.StatusOK, expectedUser: 42},
		{name: "missing token", expectedStatus: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic Zm9vOmJhcg==", expectedStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", expectedStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = 0
			req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "accessToken", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if gotUser != tt.expectedUser {
				t.Errorf("user = %d, want %d", gotUser, tt.expectedUser)
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other keys keep their own bucket")
	}
}

func TestRateLimit_ByIP(t *testing.T) {
	h := RateLimit(0.001, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for _, port := range []string{"1111", "2222"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:" + port
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "req-123" || rr.Header().Get(RequestIDHeader) != "req-123" {
		t.Errorf("request id = %q, header = %q", seen, rr.Header().Get(RequestIDHeader))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "req-123" {
		t.Errorf("expected a generated request id, got %q", seen)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}
