// Package server exposes HTTP and WebSocket endpoints for observing a
// running simulation: progress snapshots, the final score, prometheus
// metrics, and health probes.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatchsim/simulation"
)

var apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dispatchsim_api_latency_seconds",
	Help:    "Time spent serving HTTP handlers.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path", "status"})

func init() {
	prometheus.MustRegister(apiLatency)
}

// Server exposes HTTP and WebSocket endpoints for the simulation.
type Server struct {
	sim               *simulation.Simulator
	wsUpgrader        websocket.Upgrader
	wsInterval        time.Duration
	logger            *slog.Logger
	correlationHeader string
	adminEnabled      bool
}

// NewServer constructs a Server with sensible defaults for streaming.
func NewServer(sim *simulation.Simulator) *Server {
	return &Server{
		sim: sim,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsInterval:        2 * time.Second,
		logger:            slog.Default(),
		correlationHeader: "X-Correlation-ID",
	}
}

// WithAdminEnabled enables admin-only endpoints like pprof.
func (s *Server) WithAdminEnabled() *Server {
	s.adminEnabled = true
	return s
}

// WithLogger configures structured logging.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithStreamInterval configures the WebSocket snapshot interval.
func (s *Server) WithStreamInterval(interval time.Duration) *Server {
	if interval > 0 {
		s.wsInterval = interval
	}
	return s
}

// Routes returns an http.Handler that serves all endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.wrap(s.handleHealth))
	mux.HandleFunc("/readyz", s.wrap(s.handleReadiness))
	mux.HandleFunc("/api/progress", s.wrap(s.handleProgress))
	mux.HandleFunc("/ws/progress", s.wrap(s.handleProgressWebSocket))
	mux.Handle("/metrics", promhttp.Handler())

	if s.adminEnabled {
		mux.HandleFunc("/admin/debug/pprof/", pprof.Index)
		mux.HandleFunc("/admin/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/admin/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/admin/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/admin/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.sim == nil || !s.sim.Started() {
		http.Error(w, "simulation not started", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.sim.Snapshot())
}

func (s *Server) handleProgressWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.wsInterval)
	defer ticker.Stop()

	sendSnapshot := func() (bool, error) {
		snapshot := s.sim.Snapshot()
		return snapshot.Finished, conn.WriteJSON(snapshot)
	}

	if _, err := sendSnapshot(); err != nil {
		s.logger.Error("websocket initial send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			finished, err := sendSnapshot()
			if err != nil {
				s.logger.Error("websocket send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
				return
			}
			if finished {
				return
			}
		}
	}
}
