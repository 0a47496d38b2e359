// Package health provides health check endpoints for the feedback service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	statusUp        = "up"
	statusDown      = "down"
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// ServiceCheck is the outcome of pinging one dependency
type ServiceCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                  `json:"status"`
	Timestamp string                  `json:"timestamp"`
	Services  map[string]ServiceCheck `json:"services"`
	Version   string                  `json:"version,omitempty"`
}

// ProbeResponse is the body of the readiness and liveness probes. Only the
// field matching the probe is set.
type ProbeResponse struct {
	Ready     *bool  `json:"ready,omitempty"`
	Alive     *bool  `json:"alive,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Config configures a Handler
type Config struct {
	Database Pinger
	// Optional services are reported but only degrade /health, never
	// readiness.
	Optional map[string]Pinger
	Version  string
	Timeout  time.Duration
}

// Handler serves the health, readiness and liveness endpoints
type Handler struct {
	cfg      Config
	draining atomic.Bool
}

// NewHandler returns a Handler that starts out ready. Timeout defaults to
// five seconds.
func NewHandler(cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Handler{cfg: cfg}
}

// SetReady toggles readiness; the server clears it before shutting down.
func (h *Handler) SetReady(ready bool) { h.draining.Store(!ready) }

// IsReady reports the readiness flag, ignoring the database
func (h *Handler) IsReady() bool { return !h.draining.Load() }

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// Health pings the database and every optional service concurrently. A
// down database makes the service unhealthy (503); a down optional service
// only degrades it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	targets := map[string]Pinger{"database": h.cfg.Database}
	for name, p := range h.cfg.Optional {
		targets[name] = p
	}

	var (
		lock     sync.Mutex
		pending  sync.WaitGroup
		services = make(map[string]ServiceCheck, len(targets))
	)
	for name, p := range targets {
		pending.Add(1)
		go func() {
			result := check(ctx, name, p)
			lock.Lock()
			services[name] = result
			lock.Unlock()
			pending.Done()
		}()
	}
	pending.Wait()

	overall, code := statusHealthy, http.StatusOK
	for name, s := range services {
		if s.Status == statusUp {
			continue
		}
		if name == "database" {
			overall, code = statusUnhealthy, http.StatusServiceUnavailable
			break
		}
		overall = statusDegraded
	}

	writeJSON(w, code, HealthResponse{Status: overall, Timestamp: now(), Services: services, Version: h.cfg.Version})
}

// Readiness reports whether the service accepts traffic
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	if ready {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
		ready = check(ctx, "database", h.cfg.Database).Status == statusUp
		cancel()
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ProbeResponse{Ready: &ready, Timestamp: now()})
}

// Liveness always answers 200 while the process runs
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	alive := true
	writeJSON(w, http.StatusOK, ProbeResponse{Alive: &alive, Timestamp: now()})
}

func check(ctx context.Context, name string, p Pinger) ServiceCheck {
	if p == nil {
		return ServiceCheck{Status: statusDown, Error: name + " not configured"}
	}

	start := time.Now()
	err := p.Ping(ctx)
	s := ServiceCheck{Status: statusUp, Latency: time.Since(start).Round(time.Microsecond).String()}
	if err != nil {
		s.Status, s.Error = statusDown, err.Error()
	}
	return s
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
