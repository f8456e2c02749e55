package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/execution"
	"github.com/dohr-michael/iast-gateway/internal/gateway/ws"
	"github.com/dohr-michael/iast-gateway/internal/scheduler"
	"github.com/dohr-michael/iast-gateway/internal/session"
)

// Server is the iastd gateway HTTP server: health, session/AST inspection,
// event history, and the `/session/{sessionId}` WebSocket upgrade.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	registry   *session.Registry
	asts       *ast.Registry
	scheduler  *scheduler.Scheduler
	host       string
	port       int
}

// NewServer creates a new gateway server wired to registry (live sessions),
// asts (the catalog of runnable ASTs), and runner (the execution engine).
// sched may be nil if the scheduler was disabled by config.
func NewServer(bus *events.Bus, registry *session.Registry, asts *ast.Registry, runner *execution.Runner, sched *scheduler.Scheduler, host string, port int) *Server {
	hub := ws.NewHub(bus, registry, runner)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:       hub,
		bus:       bus,
		registry:  registry,
		asts:      asts,
		scheduler: sched,
		host:      host,
		port:      port,
	}

	r.Get("/api/health", s.handleHealth)
	r.Get("/session/{sessionId}", s.handleSessionWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/asts", s.handleASTs)
	r.Get("/api/schedules", s.handleSchedulesList)
	r.Post("/api/schedules", s.handleSchedulesCreate)
	r.Delete("/api/schedules/{id}", s.handleSchedulesDelete)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("iastd gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server, the session registry, and the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.registry.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	s.hub.ServeWS(w, r, sessionID)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		fmt.Sscanf(limitStr, "%d", &limit)
	}

	history := s.bus.History(limit)

	w.Header().Set("Content-Type", "application/json")

	type eventJSON struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.List())
}

func (s *Server) handleASTs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.asts.Catalog())
}

func (s *Server) handleSchedulesList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.scheduler == nil {
		json.NewEncoder(w).Encode([]scheduler.ScheduledJob{})
		return
	}
	jobs := s.scheduler.ListJobs()
	out := make([]scheduler.ScheduledJob, len(jobs))
	for i, j := range jobs {
		out[i] = *j
	}
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleSchedulesCreate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.scheduler == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "scheduler disabled"})
		return
	}

	var job scheduler.ScheduledJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	if err := s.scheduler.AddJob(&job); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	json.NewEncoder(w).Encode(job)
}

func (s *Server) handleSchedulesDelete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.scheduler == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "scheduler disabled"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.scheduler.RemoveJob(id); err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
