package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when api.bind is empty; a nil server is inert.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logger.With(logging.String(logging.FieldComponent, "api-server")),
		daemon: d,
	}

	token := cfg.API.Token
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("GET /api/assets/{id}/status", authMiddleware(token, srv.handleAssetStatus))
	mux.HandleFunc("GET /api/queue", authMiddleware(token, srv.handleQueue))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// DependencyPayload is the wire form of one external tool check.
type DependencyPayload struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

type StageHealthPayload struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StatusPayload is the body of GET /api/status.
type StatusPayload struct {
	Running      bool                          `json:"running"`
	PID          int                           `json:"pid"`
	Workers      int                           `json:"workers"`
	ActiveJobs   int                           `json:"active_jobs"`
	LastError    string                        `json:"last_error,omitempty"`
	Assets       map[asset.Status]int          `json:"assets"`
	Queue        map[queue.Status]int          `json:"queue"`
	Stages       map[string]StageHealthPayload `json:"stages"`
	Dependencies []DependencyPayload           `json:"dependencies"`
	AssetDBPath  string                        `json:"asset_db_path"`
	QueueDBPath  string                        `json:"queue_db_path"`
	LockFilePath string                        `json:"lock_file_path"`
}

// JobPayload is one entry of GET /api/queue.
type JobPayload struct {
	ID          int64     `json:"id"`
	AssetID     int64     `json:"asset_id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	AvailableAt time.Time `json:"available_at"`
}

// QueuePayload is the body of GET /api/queue.
type QueuePayload struct {
	Jobs []JobPayload `json:"jobs"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := StatusPayload{
		Running:      status.Running,
		PID:          status.PID,
		Workers:      status.Workflow.Workers,
		ActiveJobs:   status.Workflow.ActiveJobs,
		LastError:    status.Workflow.LastError,
		Assets:       status.Assets,
		Queue:        status.Workflow.QueueStats,
		Stages:       make(map[string]StageHealthPayload, len(status.Workflow.StageHealth)),
		AssetDBPath:  status.AssetDBPath,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
	}
	for name, health := range status.Workflow.StageHealth {
		payload.Stages[name] = StageHealthPayload{Ready: health.Ready, Detail: health.Detail}
	}
	for _, dep := range status.Dependencies {
		payload.Dependencies = append(payload.Dependencies, DependencyPayload{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleAssetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	view, err := s.daemon.pipeline.Status(r.Context(), id)
	if services.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			statuses = append(statuses, queue.Status(trimmed))
		}
	}
	jobs, err := s.daemon.jobs.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]JobPayload, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, JobPayload{
			ID:          job.ID,
			AssetID:     job.AssetID,
			Kind:        string(job.Kind),
			Status:      string(job.Status),
			Attempts:    job.Attempts,
			MaxAttempts: job.MaxAttempts,
			LastError:   job.LastError,
			AvailableAt: job.AvailableAt,
		})
	}
	s.writeJSON(w, http.StatusOK, QueuePayload{Jobs: out})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
