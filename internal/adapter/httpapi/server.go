// Package httpapi exposes the upload and job status HTTP endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cafemetrics/sales-ingest-service/internal/adapter/queue"
	"github.com/cafemetrics/sales-ingest-service/internal/domain"
	"github.com/cafemetrics/sales-ingest-service/internal/pipeline"
)

// maxUploadBytes caps CSV uploads; anything larger than this is not a daily
// sales export.
const maxUploadBytes = 32 << 20

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Enqueuer publishes accepted jobs for the worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.JobMessage) error
}

// Server exposes upload, job status, health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	jobs       pipeline.JobStore
	enqueuer   Enqueuer
	logger     *slog.Logger
}

// NewServer creates the API HTTP server.
func NewServer(addr string, jobs pipeline.JobStore, enqueuer Enqueuer, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		jobs:     jobs,
		enqueuer: enqueuer,
		logger:   logger,
	}

	mux.HandleFunc("POST /ingest_enrich", s.handleIngest)
	mux.HandleFunc("GET /jobs/{job_id}", s.handleJobStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleIngest accepts a multipart CSV upload, records a QUEUED job, and
// enqueues it for the worker. The response carries the job id for polling.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form must include a \"file\" part")
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		writeError(w, http.StatusBadRequest, "only .csv uploads are accepted")
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	jobID := uuid.NewString()
	startedBy := r.FormValue("started_by")

	if err := s.jobs.Create(r.Context(), jobID, startedBy); err != nil {
		s.logger.Error("creating job", "error", err)
		writeError(w, http.StatusInternalServerError, "could not record job")
		return
	}

	job := queue.JobMessage{JobID: jobID, StartedBy: startedBy, Payload: payload}
	if err := s.enqueuer.Enqueue(r.Context(), job); err != nil {
		s.logger.Error("enqueuing job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}

	s.logger.Info("upload accepted", "job_id", jobID, "filename", header.Filename, "bytes", len(payload))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(domain.StatusQueued),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownJob) {
			writeError(w, http.StatusNotFound, "unknown job: "+jobID)
			return
		}
		s.logger.Error("fetching job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not fetch job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
