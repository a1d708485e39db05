package observability

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/httputil"
	"github.com/go-redis/redis/v8"
)

// Dependency is one backing service checked by readiness probes
type Dependency struct {
	Name string

	// Required dependencies make the service unhealthy when down; others only degrade it
	Required bool

	Ping func(ctx context.Context) error
}

// RedisDependency checks a Redis server
func RedisDependency(name string, client redis.UniversalClient, required bool) Dependency {
	return Dependency{
		Name:     name,
		Required: required,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// DatabaseDependency checks a SQL database with a ping and a trivial query
func DatabaseDependency(name string, db *sql.DB) Dependency {
	return Dependency{
		Name:     name,
		Required: true,
		Ping: func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			var one int
			return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
		},
	}
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	version string
	deps    []Dependency
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(version string, deps ...Dependency) *HealthChecker {
	return &HealthChecker{version: version, deps: deps}
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

// Liveness always reports healthy while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness checks every dependency; 503 when a required one is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, status)
}

// Check pings every dependency
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}

	for _, dep := range h.deps {
		ds := checkDependency(ctx, dep)
		status.Dependencies[dep.Name] = ds
		if ds.Status != StatusUnhealthy {
			continue
		}
		if dep.Required {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

func checkDependency(ctx context.Context, dep Dependency) DependencyStatus {
	start := time.Now()
	err := dep.Ping(ctx)

	ds := DependencyStatus{
		Status:    StatusHealthy,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		ds.Status = StatusUnhealthy
		ds.Message = err.Error()
	}
	return ds
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
