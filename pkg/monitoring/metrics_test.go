package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMetricsCollector_CustomMetricsExposed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollector("lookout", "test", "abc1234")
	counter := mc.NewCounter("pipeline_runs_total", "Pipeline runs", []string{"outcome"})
	counter.WithLabelValues("ok").Inc()

	router := gin.New()
	router.GET("/metrics", mc.Handler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "lookout_pipeline_runs_total") {
		t.Fatalf("expected custom metric in output, got:\n%s", body)
	}
	if !strings.Contains(body, "lookout_service_info") {
		t.Fatal("expected service info metric in output")
	}
}

func TestMetricsCollector_SanitizesServiceName(t *testing.T) {
	mc := NewMetricsCollector("look-out", "test", "abc1234")
	if mc.serviceName != "look_out" {
		t.Fatalf("expected look_out, got %s", mc.serviceName)
	}
}
