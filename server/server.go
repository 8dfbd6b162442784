// Package server exposes the engine over HTTP: run kickoff, clarification,
// termination, session snapshots and a server-sent event stream of
// broadcast notifications.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/crucible/broadcast"
	"github.com/hupe1980/crucible/engine"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/metrics"
	"github.com/hupe1980/crucible/session"
)

// Runner is the part of *engine.Engine the API drives.
type Runner interface {
	StartRun(ctx context.Context, input map[string]any) (string, error)
	SubmitClarification(ctx context.Context, id, agentID, answer string) error
	Terminate(ctx context.Context, id string) error
	Snapshot(id string) (session.Record, error)
}

var _ Runner = (*engine.Engine)(nil)

// Options configures a Server.
type Options struct {
	// Hub feeds GET /api/events. Nil disables the stream.
	Hub *broadcast.Hub
	// Gatherer is served on GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// AllowedOrigins for CORS; "*" allows any.
	AllowedOrigins []string
	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server routes HTTP requests to a Runner.
type Server struct {
	runner Runner
	opts   Options
	logger logging.Logger
	router chi.Router
}

// New creates a Server and its routes.
func New(runner Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s := &Server{
		runner: runner,
		opts:   opts,
		logger: logging.With(opts.Logger, "component", "server"),
	}
	s.router = s.routes()

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Crucible API is running"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.opts.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/clarify", s.handleClarify)
		r.Post("/terminate/{id}", s.handleTerminate)
		r.Get("/sessions/{id}", s.handleSession)

		if s.opts.Hub != nil {
			r.Get("/events", s.handleEvents)
		}
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// AnalysisRequest starts a run.
type AnalysisRequest struct {
	PatientID   string `json:"patient_id"`
	SessionDate string `json:"session_date"`
	Transcript  string `json:"transcript"`
	SOAPNotes   string `json:"soap_notes,omitempty"`
}

// Input converts the request into the run input.
func (req AnalysisRequest) Input() map[string]any {
	input := map[string]any{
		"patient_id":   req.PatientID,
		"session_date": req.SessionDate,
		"transcript":   req.Transcript,
	}
	if req.SOAPNotes != "" {
		input["soap_notes"] = req.SOAPNotes
	}

	return input
}

// ClarificationRequest answers a paused agent.
type ClarificationRequest struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Answer    string `json:"answer"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, errors.New("transcript is required"))
		return
	}

	id, err := s.runner.StartRun(r.Context(), req.Input())
	if err != nil {
		s.logger.Error("start run failed", "error", err)
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "analysis_started",
		"message":    "Agents are running...",
		"session_id": id,
	})
}

func (s *Server) handleClarify(w http.ResponseWriter, r *http.Request) {
	var req ClarificationRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.runner.SubmitClarification(r.Context(), req.SessionID, req.AgentID, req.Answer); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "clarification_submitted",
		"message": "Agent workflow resuming...",
	})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.runner.Terminate(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated", "session_id": id})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runner.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleEvents streams notifications as server-sent events. The optional
// session_id query parameter filters to one session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.opts.Hub.Subscribe(r.URL.Query().Get("session_id"))
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}

			data, err := json.Marshal(n)
			if err != nil {
				s.logger.Warn("encode notification failed", "error", err)
				continue
			}

			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}

	return ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidClarification):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSessionTerminated):
		return http.StatusConflict
	case errors.Is(err, engine.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
