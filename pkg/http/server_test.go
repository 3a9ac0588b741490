package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMetricsServedOnConfiguredPath(t *testing.T) {
	s := NewServer(nil, WithMetricsPath("/internal/metrics"))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("configured metrics path returned %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("default metrics path still routed, got %d", rec.Code)
	}
}

func TestEmptyMetricsPathDisablesRoute(t *testing.T) {
	s := NewServer(nil, WithMetricsPath(""))

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics route registered when disabled, got %d", rec.Code)
	}
}
