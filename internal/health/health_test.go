package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveHealth(t *testing.T, handler *Handler) (int, Response) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, response
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
		return nil
	}))

	code, response := serveHealth(t, handler)

	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
		return errors.New("postgres unavailable")
	}))

	code, response := serveHealth(t, handler)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", response.Status)
	}
	if len(response.Failing) != 1 || response.Failing[0] != "snapshots" {
		t.Errorf("expected failing [snapshots], got %v", response.Failing)
	}
}

func TestHealthHandler_OptionalComponentDegrades(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
		return nil
	}))
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", func() error {
		return errors.New("broker down")
	}))

	code, response := serveHealth(t, handler)

	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if response.Status != StatusDegraded {
		t.Errorf("expected status degraded, got %s", response.Status)
	}
	if response.Checks["kafka"].Message != "broker down" {
		t.Errorf("expected kafka message, got %q", response.Checks["kafka"].Message)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("degraded service must stay ready, got %d", w.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "ready", wantCode: http.StatusOK, wantBody: "ready"},
		{name: "not ready", err: errors.New("snapshot dir missing"), wantCode: http.StatusServiceUnavailable, wantBody: "not ready: snapshots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v1.0.0")
			handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
				return tt.err
			}))

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestSimpleChecker(t *testing.T) {
	checker := NewSimpleChecker("snapshots", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	check := checker.Check()

	if check.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", check.Status)
	}
	if check.DurationMs < 10 {
		t.Errorf("expected duration >= 10ms, got %dms", check.DurationMs)
	}
}

func TestSimpleChecker_Error(t *testing.T) {
	checker := NewSimpleChecker("snapshots", func() error {
		return errors.New("test error")
	})

	check := checker.Check()

	if check.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", check.Status)
	}
	if check.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", check.Message)
	}
}

func TestReport_ListsAllFailingComponentsSorted(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
		return errors.New("dir missing")
	}))
	handler.RegisterChecker("api", NewSimpleChecker("api", func() error {
		return errors.New("timeout")
	}))
	handler.RegisterChecker("outbox", NewOptionalChecker("outbox", func() error {
		return errors.New("backlog")
	}))

	report := handler.Report()
	if report.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", report.Status)
	}
	if len(report.Failing) != 2 || report.Failing[0] != "api" || report.Failing[1] != "snapshots" {
		t.Fatalf("unexpected failing list %v", report.Failing)
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if got := w.Body.String(); got != "not ready: api,snapshots" {
		t.Fatalf("unexpected readiness body %q", got)
	}
}

func TestRegisterChecker_Replaces(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
		return errors.New("boom")
	}))
	handler.RegisterChecker("snapshots", NewSimpleChecker("snapshots", func() error {
		return nil
	}))

	if report := handler.Report(); report.Status != StatusHealthy || len(report.Checks) != 1 {
		t.Fatalf("expected single healthy check, got %+v", report)
	}
}
