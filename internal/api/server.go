// Package api exposes the agent's local HTTP surface: the endpoints
// foreground clients use to capture photos, edit slot metadata, trigger
// syncs and inspect the durable queue.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/config"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/domain"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/metrics"
	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/registry"
)

// SyncController is the part of the sync daemon the API needs.
type SyncController interface {
	ForceSync()
	Heartbeat(ctx context.Context)
	Online() bool
}

// Server is the local HTTP API.
type Server struct {
	cfg      config.APIConfig
	registry *registry.Registry
	queue    domain.QueueStore
	sync     SyncController
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

func NewServer(cfg config.APIConfig, reg *registry.Registry, queue domain.QueueStore, sync SyncController, logger *zerolog.Logger) *Server {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}

	srv := &Server{cfg: cfg, registry: reg, queue: queue, sync: sync, logger: l}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs/", srv.handleJobs)
	mux.HandleFunc("/api/v1/sync", srv.handleForceSync)
	mux.HandleFunc("/api/v1/heartbeat", srv.handleHeartbeat)
	mux.HandleFunc("/api/v1/queue", srv.handleQueue)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	// Health stays outside auth so probes don't need a key.
	root := http.NewServeMux()
	root.HandleFunc("/healthz", srv.handleHealthz)
	root.Handle("/", handler)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

// Handler exposes the full routing tree, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	online := true
	if s.sync != nil {
		online = s.sync.Online()
	}
	depth := 0
	if s.queue != nil {
		if n, err := s.queue.Len(r.Context()); err == nil {
			depth = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"online":      online,
		"queue_depth": depth,
	})
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sync.ForceSync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.sync.Heartbeat(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	records, err := s.queue.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}

	type queueItem struct {
		ID            string    `json:"id"`
		Kind          string    `json:"kind"`
		TargetURL     string    `json:"target_url"`
		CreatedAt     time.Time `json:"created_at"`
		Attempts      int       `json:"attempts"`
		LastStatus    int       `json:"last_status,omitempty"`
		LastError     string    `json:"last_error,omitempty"`
		LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	}
	items := make([]queueItem, 0, len(records))
	for _, rec := range records {
		items = append(items, queueItem{
			ID:            rec.ID,
			Kind:          rec.Kind,
			TargetURL:     rec.TargetURL,
			CreatedAt:     rec.CreatedAt,
			Attempts:      rec.Attempts,
			LastStatus:    rec.LastStatus,
			LastError:     rec.LastError,
			LastAttemptAt: rec.LastAttemptAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": len(items), "records": items})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
