package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/internal/csvio"
	"github.com/jwhan/csvlingo/internal/domain"
	"github.com/jwhan/csvlingo/internal/util"
	"go.uber.org/zap"
)

// RunCounter throttles uploads per client within the counter's TTL window.
// Satisfied by cache.CacheService.
type RunCounter interface {
	IncrementRunCount(ctx context.Context, clientID string) (int64, error)
	DecrementRunCount(ctx context.Context, clientID string)
}

// HistoryReader serves the run history endpoint. Satisfied by
// history.Repository.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]*domain.RunSummary, error)
}

// HealthReporter exposes provider reachability for the health endpoint.
// Satisfied by provider.Manager.
type HealthReporter interface {
	Ping(ctx context.Context) bool
	GetCircuitStatus() util.CircuitBreakerStatus
}

// Options configures the HTTP server. Nil collaborators disable their
// endpoints gracefully.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	MaxRunsPerTTL  int64
}

// Server is the HTTP and WebSocket front of the translation pipeline: CSV
// upload, job status, progress streaming, result download, health, history.
type Server struct {
	opts     Options
	registry *Registry
	counter  RunCounter
	history  HistoryReader
	health   HealthReporter
	logger   *zap.Logger

	httpServer *http.Server
	stopPrune  context.CancelFunc
}

func New(opts Options, registry *Registry, counter RunCounter, history HistoryReader, health HealthReporter, logger *zap.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = constants.ServerConfig.MaxUploadBytes
	}
	if opts.MaxRunsPerTTL <= 0 {
		opts.MaxRunsPerTTL = constants.ServerConfig.MaxRunsPerClient
	}

	s := &Server{
		opts:     opts,
		registry: registry,
		counter:  counter,
		history:  history,
		health:   health,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("GET /api/jobs/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called. Blocks.
func (s *Server) Start() error {
	pruneCtx, cancel := context.WithCancel(context.Background())
	s.stopPrune = cancel
	go s.pruneLoop(pruneCtx)

	s.logger.Info("HTTP server listening", zap.String("addr", s.opts.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains the HTTP server and cancels all running jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopPrune != nil {
		s.stopPrune()
	}
	s.registry.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.ServerConfig.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.registry.Prune(); removed > 0 {
				s.logger.Info("Pruned finished jobs", zap.Int("removed", removed))
			}
		}
	}
}

// handleCreateJob accepts a multipart upload: a "file" part with the CSV and
// a "config" part with the JSON run configuration. It replies 202 with the
// job ID; progress flows over the events socket.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	clientID := clientKey(r)
	if !s.admit(r.Context(), w, clientID) {
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.release(clientID)
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	table, err := csvio.Parse(file)
	if err != nil {
		s.release(clientID)
		writeError(w, http.StatusBadRequest, util.TruncateString(err.Error(), constants.StringLimits.ErrorPreview))
		return
	}

	cfgRaw := r.FormValue("config")
	if cfgRaw == "" {
		s.release(clientID)
		writeError(w, http.StatusBadRequest, "missing config part")
		return
	}

	var cfg domain.TranslationConfig
	if err := json.Unmarshal([]byte(cfgRaw), &cfg); err != nil {
		s.release(clientID)
		writeError(w, http.StatusBadRequest, "invalid config JSON")
		return
	}
	if err := cfg.Validate(len(table.Headers)); err != nil {
		s.release(clientID)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.registry.Start(r.Context(), table, &cfg)
	if err != nil {
		s.release(clientID)
		if errors.Is(err, ErrTooManyRuns) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		s.logger.Error("Failed to start job", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}

	s.logger.Info("Job started",
		zap.String("job_id", job.ID),
		zap.Int("rows", len(table.Rows)),
		zap.String("source_language", cfg.SourceLanguage),
		zap.String("target_language", job.TargetLanguage),
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":     job.ID,
		"totalRows": len(table.Rows),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := map[string]any{
		"jobId":     job.ID,
		"status":    job.Status(),
		"createdAt": job.CreatedAt,
	}
	if summary := job.Summary(); summary != nil {
		resp["summary"] = summary
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	job.Cancel()
	s.logger.Info("Job cancellation requested", zap.String("job_id", job.ID))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  job.ID,
		"status": job.Status(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	result := job.Result()
	if result == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, no result available", job.Status()))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "translated_"+job.ID+".csv"))
	if err := csvio.Write(w, result); err != nil {
		s.logger.Error("Failed to stream result CSV",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":     "ok",
		"activeJobs": s.registry.ActiveCount(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), constants.CircuitBreakerConfig.HealthCheckTimeout)
		defer cancel()

		status := s.health.GetCircuitStatus()
		resp["provider"] = map[string]any{
			"reachable": s.health.Ping(ctx),
			"circuit":   string(status.State),
			"failures":  status.FailureCount,
		}
		if status.State == util.CircuitStateOpen {
			resp["status"] = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, "run history is not enabled")
		return
	}

	summaries, err := s.history.Recent(r.Context(), constants.ServerConfig.HistoryQueryLimit)
	if err != nil {
		s.logger.Error("Failed to load run history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

// admit enforces the per-client upload quota when a counter is configured.
func (s *Server) admit(ctx context.Context, w http.ResponseWriter, clientID string) bool {
	if s.counter == nil {
		return true
	}

	count, err := s.counter.IncrementRunCount(ctx, clientID)
	if err != nil {
		// Counter backend down: admit rather than block uploads.
		s.logger.Warn("Run counter unavailable, admitting upload", zap.Error(err))
		return true
	}
	if count > s.opts.MaxRunsPerTTL {
		s.counter.DecrementRunCount(ctx, clientID)
		writeError(w, http.StatusTooManyRequests, "upload quota exceeded, try again later")
		return false
	}
	return true
}

// release undoes an admission that never became a job.
func (s *Server) release(clientID string) {
	if s.counter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.counter.DecrementRunCount(ctx, clientID)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
