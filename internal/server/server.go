package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dangphuc2470/TrafficControlModel/internal/charts"
	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/metrics"
	"github.com/dangphuc2470/TrafficControlModel/internal/registry"
	"github.com/dangphuc2470/TrafficControlModel/internal/topology"
)

// Server is the coordination broker's HTTP surface. Every request is
// stateless: each call carries its full context (agent id, episode,
// measurements), so no session or handshake state exists here.
type Server struct {
	reg       *registry.Registry
	graph     *topology.Graph
	agg       *metrics.Aggregator
	charts    *charts.Watcher // may be nil when chart serving is disabled
	chartsDir string
	log       *logger.Logger
	httpSrv   *http.Server
}

// New creates the broker over the shared components
func New(reg *registry.Registry, graph *topology.Graph, agg *metrics.Aggregator, chartsWatcher *charts.Watcher, chartsDir string, log *logger.Logger) *Server {
	return &Server{
		reg:       reg,
		graph:     graph,
		agg:       agg,
		charts:    chartsWatcher,
		chartsDir: chartsDir,
		log:       log,
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", s.handleRegister)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/offset", s.handleOffset)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/data", s.handleData)
	mux.HandleFunc("/api/comparison", s.handleComparison)
	mux.HandleFunc("/api/latest_charts", s.handleLatestCharts)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.chartsDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.chartsDir))))
	}
	return mux
}

// Start binds the listener and serves until Shutdown. A failed bind is
// returned to the caller; it is the one startup failure that must abort
// the process rather than run degraded.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.log.Info("Listening on %s", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the listener
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// errorResponse is the machine-readable failure shape for every endpoint
type errorResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.LogError(err, "encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, reason, message string) {
	s.writeJSON(w, status, errorResponse{
		Status:  "error",
		Reason:  reason,
		Message: message,
	})
}

// writeDomainError maps registry/topology errors to HTTP responses.
// All errors resolve at the request boundary; none are fatal.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var ve *registry.ValidationError
	if errors.As(err, &ve) {
		s.writeError(w, http.StatusBadRequest, "validation_error", ve.Error())
		return
	}
	var ue *registry.UnknownAgentError
	if errors.As(err, &ue) {
		s.writeError(w, http.StatusNotFound, "unknown_agent", ue.Error())
		return
	}
	s.log.LogError(err, "request failed")
	s.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body: "+err.Error())
		return false
	}
	return true
}
