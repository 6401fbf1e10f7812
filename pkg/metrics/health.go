package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the body of every health endpoint.
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready", "alive"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

var healthChecker = newHealthChecker()

// criticalComponents must be registered and healthy before the process
// reports ready.
var criticalComponents = []string{"broker", "watch"}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// Probe reports the live state of a component; nil means healthy.
type Probe func() error

// HealthChecker tracks component health. A component is either set
// explicitly or backed by a Probe that is run on every check.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	probes     map[string]Probe
	startTime  time.Time
	version    string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		probes:     make(map[string]Probe),
		startTime:  time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterComponent records the health of a component, replacing any
// earlier state or probe under the same name.
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	delete(healthChecker.probes, name)
	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// RegisterProbe backs a component with probe. A later RegisterComponent
// for the same name replaces it.
func RegisterProbe(name string, probe Probe) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	delete(healthChecker.components, name)
	healthChecker.probes[name] = probe
}

// UnregisterComponent forgets a component and its probe.
func UnregisterComponent(name string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	delete(healthChecker.components, name)
	delete(healthChecker.probes, name)
}

// check copies the explicit components, runs every probe outside the lock
// and returns them with a response skeleton stamped with version and
// uptime.
func (h *HealthChecker) check() (map[string]ComponentHealth, HealthStatus) {
	h.mu.RLock()
	out := make(map[string]ComponentHealth, len(h.components)+len(h.probes))
	for name, comp := range h.components {
		out[name] = comp
	}
	probes := make([]string, 0, len(h.probes))
	fns := make([]Probe, 0, len(h.probes))
	for name, probe := range h.probes {
		probes = append(probes, name)
		fns = append(fns, probe)
	}
	base := h.base()
	h.mu.RUnlock()

	for i, name := range probes {
		comp := ComponentHealth{Name: name, Healthy: true, Updated: base.Timestamp}
		if err := fns[i](); err != nil {
			comp.Healthy = false
			comp.Message = err.Error()
		}
		out[name] = comp
	}
	base.Components = make(map[string]string, len(out))
	return out, base
}

// base must be called with h.mu held.
func (h *HealthChecker) base() HealthStatus {
	now := time.Now()
	return HealthStatus{
		Timestamp: now,
		Version:   h.version,
		Uptime:    now.Sub(h.startTime).String(),
	}
}

// GetHealth is healthy when every known component is.
func GetHealth() HealthStatus {
	comps, st := healthChecker.check()

	st.Status = "healthy"
	for name, comp := range comps {
		if comp.Healthy {
			st.Components[name] = "healthy"
			continue
		}
		st.Status = "unhealthy"
		st.Components[name] = "unhealthy: " + comp.Message
	}
	return st
}

// GetReadiness reports ready once every critical component is registered
// and healthy. Other components do not affect readiness.
func GetReadiness() HealthStatus {
	comps, st := healthChecker.check()

	st.Status = "ready"
	for _, name := range criticalComponents {
		comp, exists := comps[name]
		switch {
		case !exists:
			st.Status = "not_ready"
			st.Message = "waiting for " + name + " initialization"
			st.Components[name] = "not registered"
		case !comp.Healthy:
			st.Status = "not_ready"
			st.Message = "waiting for " + name
			st.Components[name] = "not ready: " + comp.Message
		default:
			st.Components[name] = "ready"
		}
	}
	return st
}

func getLiveness() HealthStatus {
	healthChecker.mu.RLock()
	defer healthChecker.mu.RUnlock()
	st := healthChecker.base()
	st.Status = "alive"
	return st
}

// statusHandler answers 200 while check reports want and 503 otherwise.
func statusHandler(check func() HealthStatus, want string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := check()
		code := http.StatusOK
		if st.Status != want {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, st)
	}
}

// HealthHandler serves /health.
func HealthHandler() http.HandlerFunc { return statusHandler(GetHealth, "healthy") }

// ReadyHandler serves /ready.
func ReadyHandler() http.HandlerFunc { return statusHandler(GetReadiness, "ready") }

// LivenessHandler serves /live, which answers 200 while the process runs.
func LivenessHandler() http.HandlerFunc { return statusHandler(getLiveness, "alive") }

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// NewMux wires /health, /ready, /live and /metrics onto one mux.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())
	mux.Handle("/metrics", Handler())
	return mux
}

// Serve runs the observability endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      NewMux(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
