package http

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

const checkTimeout = 5 * time.Second

// HealthChecker is anything that can be pinged, such as the pgx pool or the
// redis run lock.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name     string
	checker  HealthChecker
	critical bool
}

// HealthHandler serves liveness, readiness and a detailed status page.
type HealthHandler struct {
	deps    []dependency
	started time.Time
	version string
}

// NewHealthHandler registers db as the one dependency readiness depends on.
func NewHealthHandler(db HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		deps:    []dependency{{name: "database", checker: db, critical: true}},
		started: time.Now(),
		version: version,
	}
}

// WithDependency adds a dependency the job can run without. A failure shows
// up as degraded on /health and is ignored by /health/ready.
func (h *HealthHandler) WithDependency(name string, checker HealthChecker) *HealthHandler {
	if checker != nil {
		h.deps = append(h.deps, dependency{name: name, checker: checker})
	}
	return h
}

// HealthResponse is the body of every health endpoint.
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check is the result of pinging one dependency.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

func (c Check) ok() bool { return c.Status == "healthy" }

type runtimeStats struct {
	Alloc      uint64 `json:"alloc_bytes"`
	TotalAlloc uint64 `json:"total_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// RegisterRoutes mounts the health endpoints.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// HandleLiveness answers as long as the process serves HTTP.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: nowStamp()})
}

// HandleReadiness fails only when a critical dependency is down.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, criticalOK, _ := h.runChecks(r.Context())

	status, code := "healthy", http.StatusOK
	if !criticalOK {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	WriteJSON(w, code, h.response(status, checks))
}

// HandleHealth reports degraded when any dependency is down and adds
// runtime figures for debugging.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, _, allOK := h.runChecks(r.Context())

	status, code := "healthy", http.StatusOK
	if !allOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	WriteJSON(w, code, struct {
		HealthResponse
		Memory     runtimeStats `json:"memory"`
		Goroutines int          `json:"goroutines"`
	}{
		HealthResponse: h.response(status, checks),
		Memory:         runtimeStats{Alloc: ms.Alloc, TotalAlloc: ms.TotalAlloc, Sys: ms.Sys, NumGC: ms.NumGC},
		Goroutines:     runtime.NumGoroutine(),
	})
}

// runChecks pings every dependency once. criticalOK covers critical
// dependencies only; allOK covers all of them.
func (h *HealthHandler) runChecks(ctx context.Context) (checks map[string]Check, criticalOK, allOK bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	checks = make(map[string]Check, len(h.deps))
	criticalOK, allOK = true, true
	for _, dep := range h.deps {
		c := ping(ctx, dep.checker)
		checks[dep.name] = c
		if !c.ok() {
			allOK = false
			if dep.critical {
				criticalOK = false
			}
		}
	}
	return checks, criticalOK, allOK
}

func ping(ctx context.Context, checker HealthChecker) Check {
	if checker == nil {
		return Check{Status: "unhealthy", Message: "not configured"}
	}
	start := time.Now()
	err := checker.Ping(ctx)
	c := Check{Status: "healthy", Latency: time.Since(start).String()}
	if err != nil {
		c.Status, c.Message = "unhealthy", err.Error()
	}
	return c
}

func (h *HealthHandler) response(status string, checks map[string]Check) HealthResponse {
	return HealthResponse{
		Status:    status,
		Timestamp: nowStamp(),
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Checks:    checks,
	}
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }
