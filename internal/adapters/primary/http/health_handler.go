package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthChecker defines the interface for health check dependencies
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports live WebSocket sessions. Satisfied by *websocket.Manager.
type SessionCounter interface {
	ActiveSessions() int
}

// SubscriberCounter reports bus subscriptions. Satisfied by *websocket.Bus.
type SubscriberCounter interface {
	SubscriberCount() int
}

// BreakerReporter reports a circuit breaker state. Satisfied by *userdir.Directory.
type BreakerReporter interface {
	State() string
}

// RealtimeStats groups the optional real-time components reported by /health.
type RealtimeStats struct {
	Sessions    SessionCounter
	Subscribers SubscriberCounter
	UserLookup  BreakerReporter
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db        HealthChecker
	realtime  RealtimeStats
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db HealthChecker, realtime RealtimeStats, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		realtime:  realtime,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// RealtimeResponse reports hub occupancy.
type RealtimeResponse struct {
	Sessions    int    `json:"sessions"`
	Subscribers int    `json:"subscribers"`
	UserLookup  string `json:"user_lookup_breaker,omitempty"`
}

// HandleLiveness handles liveness probe requests (is the service running?)
// Used by Kubernetes to know when to restart a container
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles readiness probe requests (can the service accept traffic?)
// Used by Kubernetes to know when to add the pod to the service
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	writeHealth(w, statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx)
	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "degraded", http.StatusServiceUnavailable
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Realtime RealtimeResponse `json:"realtime"`
		Memory   struct {
			Alloc      uint64 `json:"alloc_bytes"`
			TotalAlloc uint64 `json:"total_alloc_bytes"`
			Sys        uint64 `json:"sys_bytes"`
			NumGC      uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines int `json:"goroutines"`
	}{
		HealthResponse: HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Checks:    checks,
		},
		Realtime:   h.realtimeStats(),
		Goroutines: runtime.NumGoroutine(),
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	writeHealth(w, statusCode, response)
}

func (h *HealthHandler) runChecks(ctx context.Context) (map[string]Check, bool) {
	checks := map[string]Check{"database": h.checkDatabase(ctx)}
	healthy := checks["database"].Status == "healthy"

	// An open breaker means the gate is failing closed.
	if h.realtime.UserLookup != nil {
		state := h.realtime.UserLookup.State()
		check := Check{Status: "healthy", Message: "breaker " + state}
		if state == "open" {
			check.Status = "unhealthy"
			healthy = false
		}
		checks["user_lookup"] = check
	}
	return checks, healthy
}

func (h *HealthHandler) realtimeStats() RealtimeResponse {
	var stats RealtimeResponse
	if h.realtime.Sessions != nil {
		stats.Sessions = h.realtime.Sessions.ActiveSessions()
	}
	if h.realtime.Subscribers != nil {
		stats.Subscribers = h.realtime.Subscribers.SubscriberCount()
	}
	if h.realtime.UserLookup != nil {
		stats.UserLookup = h.realtime.UserLookup.State()
	}
	return stats
}

// checkDatabase checks the database connection
func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	start := time.Now()

	if h.db == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Database not configured",
		}
	}

	err := h.db.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}

	return Check{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

func writeHealth(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}
