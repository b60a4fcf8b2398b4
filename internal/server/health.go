package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the health of one component or the whole service.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the result of probing one dependency.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthChecker probes one dependency.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthResponse is returned by the probe endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthState tracks readiness, liveness, and dependency checks.
type HealthState struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	version string
	ready   bool
	live    bool
}

// NewHealthState creates a HealthState: live but not yet ready.
func NewHealthState(version string) *HealthState {
	return &HealthState{
		checks:  make(map[string]HealthChecker),
		version: version,
		live:    true,
	}
}

// RegisterCheck adds a named dependency check.
func (h *HealthState) RegisterCheck(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// SetReady flips the readiness probe.
func (h *HealthState) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *HealthState) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make(map[string]HealthChecker, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	version := h.version
	h.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
	}
	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)
		switch check.Status {
		case HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if resp.Status == HealthStatusHealthy {
				resp.Status = HealthStatusDegraded
			}
		}
	}

	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeProbe(w, status, resp)
}

func (h *HealthState) handleReady(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	ready := h.ready
	h.mu.RUnlock()

	resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !ready {
		resp.Status = HealthStatusUnhealthy
		writeProbe(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeProbe(w, http.StatusOK, resp)
}

func (h *HealthState) handleLive(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	live := h.live
	h.mu.RUnlock()

	resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !live {
		resp.Status = HealthStatusUnhealthy
		writeProbe(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeProbe(w, http.StatusOK, resp)
}

func writeProbe(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
