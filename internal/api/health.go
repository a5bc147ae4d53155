package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse follows Kubernetes health check conventions
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Version   string           `json:"version,omitempty"`
	Checks    map[string]Check `json:"checks"`
}

type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

// Health confirms the process is running
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    statusUp,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   s.version,
		Checks:    map[string]Check{"process": {Status: statusUp}},
	})
}

// Ready checks the store and the cache
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]Check{
		"database": checkDependency(ctx, "Database", s.store),
	}
	if s.cache != nil {
		checks["cache"] = checkDependency(ctx, "Cache", s.cache)
	}

	status, code := statusUp, http.StatusOK
	for _, c := range checks {
		if c.Status != statusUp {
			status, code = statusDown, http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}

// Live is an alias for Health
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	s.Health(w, r)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func checkDependency(ctx context.Context, name string, p pinger) Check {
	if p == nil {
		return Check{Status: statusDown, Message: name + " is not initialized"}
	}
	if err := p.Ping(ctx); err != nil {
		return Check{Status: statusDown, Message: name + " ping failed: " + err.Error()}
	}
	return Check{Status: statusUp, Message: name + " is reachable"}
}
