package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/rpc/budget"
)

// UsageSource exposes live usage. rpc.Client implements it.
type UsageSource interface {
	Snapshot() domain.UsageStats
	EstimatedCost() float64
	BudgetStatus() (budget.BudgetStatus, bool)
}

// UsageReport is the body of /usage.
type UsageReport struct {
	Usage         domain.UsageStats    `json:"usage"`
	SuccessRate   float64              `json:"success_rate"`
	AvgLatencyMs  int64                `json:"avg_latency_ms"`
	EstimatedCost float64              `json:"estimated_cost"`
	Budget        *budget.BudgetStatus `json:"budget,omitempty"`
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	usage   UsageSource
	server  *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, usage UsageSource, port int) *Server {
	s := &Server{
		monitor: monitor,
		usage:   usage,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.server.Handler = s.Handler()
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/usage", s.handleUsage)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	response := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	stats := s.usage.Snapshot()
	report := UsageReport{
		Usage:         stats,
		SuccessRate:   stats.SuccessRate(),
		AvgLatencyMs:  stats.AverageLatency().Milliseconds(),
		EstimatedCost: s.usage.EstimatedCost(),
	}
	if st, ok := s.usage.BudgetStatus(); ok {
		report.Budget = &st
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
