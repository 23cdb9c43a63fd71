package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is any dependency that can report connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker probes the service's dependencies: the session store and
// the upstream IntentService
type HealthChecker struct {
	sessions    Pinger
	upstreamURL string
	httpClient  *http.Client
	version     string
}

// NewHealthChecker creates a health checker. Either dependency may be nil,
// in which case it is skipped.
func NewHealthChecker(sessions Pinger, upstreamURL, version string) *HealthChecker {
	return &HealthChecker{
		sessions:    sessions,
		upstreamURL: upstreamURL,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always 200 if the server runs)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe that checks all dependencies
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")

	// 503 only when unhealthy; degraded still serves traffic
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// Check performs a comprehensive health check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	// Session store loss blocks finalization, so it makes the service
	// unhealthy
	if h.sessions != nil {
		sessionStatus := h.checkSessions(ctx)
		status.Dependencies["session_store"] = sessionStatus
		if sessionStatus.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
	}

	// An unreachable IntentService degrades the service: in-flight gateway
	// completions still need to be accepted
	if h.upstreamURL != "" {
		upstreamStatus := h.checkUpstream(ctx)
		status.Dependencies["intent_service"] = upstreamStatus
		if upstreamStatus.Status == StatusUnhealthy && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

// checkSessions checks session store connectivity
func (h *HealthChecker) checkSessions(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	err := h.sessions.Ping(ctx)
	status.Latency = time.Since(start)

	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}

	return status
}

// checkUpstream checks that the IntentService answers HTTP at all; any
// response code counts as reachable
func (h *HealthChecker) checkUpstream(ctx context.Context) DependencyStatus {
	start := time.Now()
	status := DependencyStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.upstreamURL, nil)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}

	resp, err := h.httpClient.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
		return status
	}
	resp.Body.Close()

	return status
}
