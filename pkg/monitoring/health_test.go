package monitoring

import (
	"testing"
)

func TestCheckHealth_AllHealthy(t *testing.T) {
	hc := NewHealthChecker("lookout", "test")
	hc.AddCheck("a", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("b", func() CheckResult { return CheckResult{Status: StatusHealthy} })

	status := hc.CheckHealth()
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", status.Status)
	}
	if len(status.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(status.Checks))
	}
}

func TestCheckHealth_DegradedWins(t *testing.T) {
	hc := NewHealthChecker("lookout", "test")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddCheck("slow", func() CheckResult { return CheckResult{Status: StatusDegraded} })

	if got := hc.CheckHealth().Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
}

func TestCheckHealth_UnhealthyWins(t *testing.T) {
	hc := NewHealthChecker("lookout", "test")
	hc.AddCheck("slow", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	hc.AddCheck("down", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}
}

func TestCheckHealth_UnknownStatusCountsUnhealthy(t *testing.T) {
	hc := NewHealthChecker("lookout", "test")
	hc.AddCheck("odd", func() CheckResult { return CheckResult{Status: "confused"} })

	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy for unknown status, got %s", got)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{"RELAY_URL": "wss://relay.example"})
	if got := check().Status; got != StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	check = ConfigurationHealthCheck(map[string]string{"RELAY_URL": ""})
	if got := check().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy for empty value, got %s", got)
	}
}

func TestWebSocketEndpointHealthCheck_Unreachable(t *testing.T) {
	check := WebSocketEndpointHealthCheck("ws://127.0.0.1:1/ws")
	if got := check().Status; got != StatusDegraded {
		t.Fatalf("expected degraded for unreachable endpoint, got %s", got)
	}
}
