// Package server exposes the pipeline's read surface: a polling endpoint
// for clients that do not stream, a WebSocket bridge onto the event bus for
// those that do, and worker statistics. It runs inside the worker process —
// the bus does not cross process boundaries. Authentication is handled
// upstream; the X-User-ID header carries the pre-authenticated identity.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/studygen-go/internal/db"
	"github.com/raphaelgruber/studygen-go/internal/events"
	"github.com/raphaelgruber/studygen-go/internal/metrics"
	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/raphaelgruber/studygen-go/internal/service"
)

// Server serves the polling and event-stream endpoints.
type Server struct {
	svc       *service.JobService
	bus       *events.Bus
	collector *metrics.Collector
	logger    *slog.Logger
	http      *http.Server
	upgrader  websocket.Upgrader
}

// New creates a server listening on addr.
func New(addr string, svc *service.JobService, bus *events.Bus, collector *metrics.Collector, logger *slog.Logger) *Server {
	s := &Server{
		svc:       svc,
		bus:       bus,
		collector: collector,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origin policy is enforced upstream
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// jobView is the client-facing projection of a job: snapshot and plan
// internals stay server-side.
type jobView struct {
	JobID        string              `json:"job_id"`
	Status       models.JobStatus    `json:"status"`
	Progress     int                 `json:"progress"`
	ArtifactType models.ArtifactType `json:"artifact_type"`
	NotebookID   string              `json:"notebook_id"`
	TokensUsed   int                 `json:"tokens_used"`
	TokenBudget  int                 `json:"token_budget"`
	Result       *models.Artifact    `json:"result,omitempty"`
	Error        *models.JobError    `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

func viewOf(job *models.Job) jobView {
	return jobView{
		JobID:        job.JobID(),
		Status:       job.Status,
		Progress:     job.Progress,
		ArtifactType: job.ArtifactType,
		NotebookID:   job.NotebookID,
		TokensUsed:   job.TokensUsed,
		TokenBudget:  job.TokenBudget,
		Result:       job.Result,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusBadRequest)
		return
	}

	job, err := s.svc.GetJob(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get job failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, viewOf(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "missing X-User-ID header", http.StatusBadRequest)
		return
	}

	jobs, err := s.svc.ListJobs(r.Context(), userID, 50)
	if err != nil {
		s.logger.Error("list jobs failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]jobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, viewOf(&jobs[i]))
	}
	writeJSON(w, views)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.GetSnapshot()
	writeJSON(w, map[string]any{
		"stats":          snap,
		"events_dropped": s.bus.Dropped(),
	})
}

// handleEvents upgrades to WebSocket and streams the caller's completion/
// failure events. Only events published while the connection is open are
// delivered; there is no replay.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		userID = r.URL.Query().Get("user_id")
	}
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(events.TopicArtifactCompleted, events.TopicArtifactFailed)
	defer sub.Close()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if ev.UserID != userID {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event write failed, dropping connection", "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
