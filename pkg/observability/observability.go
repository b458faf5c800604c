// Package observability exposes one HTTP surface combining health,
// readiness, and Prometheus metrics for a running process: /health,
// /ready, and /metrics on a single mux.
//
// Grounded on _examples/cuemby-warren/pkg/api/health.go, with the
// critical-component set replaced by the reactor runtime's own
// subsystems (broker, game manager, client manager) in place of
// raft/containerd/api.
package observability

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mozaicserver/mozaic/pkg/metrics"
	"github.com/mozaicserver/mozaic/pkg/reactor"
)

// HealthStatus is the JSON body served by /health and /ready.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentHealth struct {
	healthy bool
	message string
}

// Critical names the subsystems the /ready check treats as required before
// the process reports ready.
var Critical = []string{"broker", "game_manager", "client_manager"}

// Server tracks component health and serves the observability mux.
type Server struct {
	mu         sync.RWMutex
	components map[string]componentHealth
	startTime  time.Time
	version    string
	broker     *reactor.Broker
}

// NewServer creates a Server reporting broker's live reactor count as
// part of /health's output.
func NewServer(broker *reactor.Broker, version string) *Server {
	return &Server{
		components: make(map[string]componentHealth),
		startTime:  time.Now(),
		version:    version,
		broker:     broker,
	}
}

// RegisterComponent sets (or replaces) one component's health.
func (s *Server) RegisterComponent(name string, healthy bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[name] = componentHealth{healthy: healthy, message: message}
}

func (s *Server) health() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(s.components)+1)
	for name, comp := range s.components {
		if !comp.healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.message
		} else {
			components[name] = "healthy"
		}
	}
	if s.broker != nil {
		components["reactors_live"] = strconv.Itoa(s.broker.Count())
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    s.version,
		Uptime:     time.Since(s.startTime).String(),
	}
}

func (s *Server) readiness() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(Critical))

	for _, name := range Critical {
		comp, ok := s.components[name]
		switch {
		case !ok:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.message
		default:
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    s.version,
		Uptime:     time.Since(s.startTime).String(),
	}
}

// Mux builds the /health, /ready, /live, /metrics handler.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health()
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	readiness := s.readiness()
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if readiness.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(readiness)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startTime).String(),
	})
}
