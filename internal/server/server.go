package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swarmhub/swarmgate/internal/config"
	"github.com/swarmhub/swarmgate/internal/executor"
	"github.com/swarmhub/swarmgate/internal/report"
	"github.com/swarmhub/swarmgate/internal/routing"
)

// Orchestrator is the core consumed by the HTTP surface.
type Orchestrator interface {
	SubmitTask(ctx context.Context, prompt, taskType string) (*executor.Answer, error)
	Status() report.StatusSnapshot
}

// Server represents the HTTP server.
type Server struct {
	cfg          *config.Config
	orchestrator Orchestrator
	httpServer   *http.Server
	upgrader     websocket.Upgrader
	startTime    time.Time
	logger       *slog.Logger
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Backends  int    `json:"backends"`
	Timestamp string `json:"timestamp"`
}

// TaskRequest represents a task submission.
type TaskRequest struct {
	Prompt   string `json:"prompt"`
	TaskType string `json:"task_type"`
}

// TaskResponse represents a completed task.
type TaskResponse struct {
	Content    string `json:"content"`
	Backend    string `json:"backend"`
	DurationMS int64  `json:"duration_ms"`
}

// ErrorResponse represents a structured task failure.
type ErrorResponse struct {
	Error    string                    `json:"error"`
	Message  string                    `json:"message"`
	Attempts []executor.AttemptFailure `json:"attempts,omitempty"`
}

// New creates a new HTTP server.
func New(cfg *config.Config, o Orchestrator, logger *slog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		orchestrator: o,
		upgrader:     websocket.Upgrader{},
		startTime:    time.Now(),
		logger:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/v1/status", s.statusHandler)
	mux.HandleFunc("/api/v1/tasks", s.tasksHandler)
	mux.HandleFunc("/api/v1/backends", s.backendsHandler)
	mux.HandleFunc("/ws/status", s.wsStatusHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // task submissions wait on inference
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles liveness requests.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.orchestrator.Status()
	response := HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Uptime:    time.Since(s.startTime).String(),
		Backends:  len(snap.Backends),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	writeJSON(w, http.StatusOK, response)
}

// statusHandler returns the full status snapshot.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.Status())
}

// tasksHandler submits a task and maps typed failures to structured bodies.
func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt required", http.StatusBadRequest)
		return
	}
	if req.TaskType == "" {
		req.TaskType = "general"
	}

	ans, err := s.orchestrator.SubmitTask(r.Context(), req.Prompt, req.TaskType)
	if err != nil {
		var nce *routing.NoCandidateError
		var exhausted *executor.ExhaustedRetriesError
		switch {
		case errors.As(err, &nce):
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "no_candidate",
				Message: nce.Error(),
			})
		case errors.As(err, &exhausted):
			writeJSON(w, http.StatusBadGateway, ErrorResponse{
				Error:    "exhausted_retries",
				Message:  exhausted.Error(),
				Attempts: exhausted.Attempts,
			})
		default:
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{
				Error:   "internal",
				Message: err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, TaskResponse{
		Content:    ans.Content,
		Backend:    ans.Backend,
		DurationMS: ans.Duration.Milliseconds(),
	})
}

// backendsHandler lists backends with their current health.
func (s *Server) backendsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.Status().Backends)
}

// wsStatusHandler streams status snapshots to dashboard clients.
func (s *Server) wsStatusHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.orchestrator.Status()); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
