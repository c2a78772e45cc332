package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KashirApp/Kashir-sub002/pkg/logging"
	"github.com/KashirApp/Kashir-sub002/pkg/monitoring"
)

func TestSetupServiceRouter_HealthEndpoint(t *testing.T) {
	logger := logging.NewTestLogger()
	hc := monitoring.NewHealthChecker("lookout", "test")
	mc := monitoring.NewMetricsCollector("lookout", "test", "abc1234")

	router := SetupServiceRouter(logger, "lookout", hc, mc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSetupServiceRouter_MetricsEndpoint(t *testing.T) {
	logger := logging.NewTestLogger()
	mc := monitoring.NewMetricsCollector("lookout2", "test", "abc1234")

	router := SetupServiceRouter(logger, "lookout2", nil, mc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
