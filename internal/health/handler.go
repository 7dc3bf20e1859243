package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines    int    `json:"goroutines"`
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
	MemorySysMB   uint64 `json:"memory_sys_mb"`
	NumGC         uint32 `json:"num_gc"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	Session  voicesession.Status `json:"session"`
	Requests RequestStats        `json:"requests"`
	Runtime  RuntimeStats        `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

// Check reports on one dependency. Checks run concurrently.
type Check func(ctx context.Context) ComponentStatus

type Handler struct {
	session   *voicesession.Controller
	checks    map[string]Check
	version   string
	startTime time.Time

	totalRequests     uint64
	activeConnections int64
}

func NewHandler(session *voicesession.Controller, checks map[string]Check, version string) *Handler {
	h := &Handler{
		session:   session,
		checks:    map[string]Check{"session": SessionCheck(session)},
		version:   version,
		startTime: time.Now(),
	}
	for name, check := range checks {
		h.checks[name] = check
	}
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]ComponentStatus, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(h.checks))
	for name, check := range h.checks {
		go func(name string, fn Check) {
			defer wg.Done()
			start := time.Now()
			status := fn(ctx)
			status.LatencyMs = time.Since(start).Milliseconds()
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:        computeOverallStatus(components),
		Timestamp:     time.Now(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Session: h.session.Status(),
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
			},
			Runtime: RuntimeStats{
				Goroutines:    runtime.NumGoroutine(),
				MemoryAllocMB: mem.Alloc / 1024 / 1024,
				MemorySysMB:   mem.Sys / 1024 / 1024,
				NumGC:         mem.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

// SessionCheck is degraded while the last connection attempt has failed.
func SessionCheck(session *voicesession.Controller) Check {
	return func(context.Context) ComponentStatus {
		if session.State() == voicesession.StateError {
			st := ComponentStatus{Status: StatusDegraded}
			if err := session.Err(); err != nil {
				st.Error = err.Error()
			}
			return st
		}
		return ComponentStatus{Status: StatusHealthy}
	}
}

// CredentialCheck is unhealthy when no API key is configured, since no
// session can ever be opened.
func CredentialCheck(apiKey string) Check {
	return func(context.Context) ComponentStatus {
		if apiKey == "" {
			return ComponentStatus{Status: StatusUnhealthy, Error: "no API key configured"}
		}
		return ComponentStatus{Status: StatusHealthy}
	}
}

func computeOverallStatus(components map[string]ComponentStatus) Status {
	overall := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
