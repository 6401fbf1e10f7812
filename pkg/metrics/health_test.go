package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func resetHealthChecker(version string) {
	healthChecker = newHealthChecker()
	healthChecker.version = version
}

func TestRegisterComponent(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "running")

	if len(healthChecker.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(healthChecker.components))
	}

	comp := healthChecker.components["broker"]
	if !comp.Healthy {
		t.Error("component should be healthy")
	}

	if comp.Message != "running" {
		t.Errorf("expected message 'running', got '%s'", comp.Message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	resetHealthChecker("1.0.0")

	RegisterComponent("broker", true, "")
	RegisterComponent("watch", true, "")

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}

	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}

	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "")
	RegisterComponent("watch", false, "not started")

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}

	if health.Components["watch"] != "unhealthy: not started" {
		t.Errorf("unexpected watch status: %s", health.Components["watch"])
	}
}

func TestGetReadiness_AllReady(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "")
	RegisterComponent("watch", true, "")

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_MissingCriticalComponent(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "")
	// watch not registered

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}

	if readiness.Message == "" {
		t.Error("expected message explaining why not ready")
	}
}

func TestGetReadiness_CriticalComponentUnhealthy(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "")
	RegisterComponent("watch", false, "watcher limit reached")

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealthChecker("test")

	RegisterComponent("test", true, "")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}

	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("test", false, "broken")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", health.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "")
	RegisterComponent("watch", true, "")

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("broker", true, "")
	// watch not registered

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	resetHealthChecker("")

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()

	handler := LivenessHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}

	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}

func TestRegisterComponent_Overwrites(t *testing.T) {
	resetHealthChecker("")

	RegisterComponent("test", true, "ok")
	RegisterComponent("test", false, "error")

	comp := healthChecker.components["test"]
	if comp.Healthy {
		t.Error("component should be unhealthy after update")
	}

	if comp.Message != "error" {
		t.Errorf("expected message 'error', got '%s'", comp.Message)
	}
}

func TestGetReadiness_IgnoresOtherComponents(t *testing.T) {
	resetHealthChecker("v1")
	RegisterComponent("broker", true, "")
	RegisterComponent("watch", true, "")
	RegisterComponent("feed", false, "stalled")

	readiness := GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
	if _, ok := readiness.Components["feed"]; ok {
		t.Error("readiness should only report critical components")
	}
	if readiness.Version != "v1" || readiness.Uptime == "" {
		t.Errorf("expected version and uptime, got %q and %q", readiness.Version, readiness.Uptime)
	}

	if GetHealth().Status != "unhealthy" {
		t.Error("health should still report the stalled component")
	}
}

func TestNewMux_Routes(t *testing.T) {
	resetHealthChecker("")
	RegisterComponent("broker", true, "")
	RegisterComponent("watch", true, "")

	mux := NewMux()
	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
	}
}

func TestRegisterProbe(t *testing.T) {
	resetHealthChecker("")

	var loopErr error
	RegisterProbe("broker", func() error { return loopErr })
	RegisterComponent("watch", true, "")

	if got := GetReadiness().Status; got != "ready" {
		t.Errorf("expected status 'ready', got '%s'", got)
	}

	loopErr = errors.New("loop exited")
	health := GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}
	if health.Components["broker"] != "unhealthy: loop exited" {
		t.Errorf("unexpected broker status '%s'", health.Components["broker"])
	}
	if got := GetReadiness().Status; got != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", got)
	}
}

func TestRegisterComponent_ReplacesProbe(t *testing.T) {
	resetHealthChecker("")

	RegisterProbe("broker", func() error { return errors.New("down") })
	RegisterComponent("broker", true, "static")

	if len(healthChecker.probes) != 0 {
		t.Errorf("expected probe to be replaced, got %d probes", len(healthChecker.probes))
	}
	if got := GetHealth().Components["broker"]; got != "healthy" {
		t.Errorf("expected 'healthy', got '%s'", got)
	}

	UnregisterComponent("broker")
	if len(GetHealth().Components) != 0 {
		t.Error("expected no components after unregister")
	}
}
