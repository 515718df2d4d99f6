package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/media"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/status"
)

// Server serves the daemon HTTP API.
type Server struct {
	bind       string
	token      string
	logger     *slog.Logger
	jobs       *queue.Store
	media      *media.Store
	aggregator *status.Aggregator
	resolver   pipeline.MetadataResolver

	listener net.Listener
	server   *http.Server
}

// NewServer wires the HTTP surface over the stores and the metadata resolver.
func NewServer(cfg *config.Config, jobs *queue.Store, mediaStore *media.Store, resolver pipeline.MetadataResolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		bind:       strings.TrimSpace(cfg.Paths.APIBind),
		token:      strings.TrimSpace(cfg.Paths.APIToken),
		logger:     logging.NewComponentLogger(logger, "api"),
		jobs:       jobs,
		media:      mediaStore,
		aggregator: status.NewAggregator(jobs, mediaStore),
		resolver:   resolver,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", srv.auth(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", srv.auth(srv.handleJobStatus))
	mux.HandleFunc("/api/videos/info", srv.auth(srv.handleVideoInfo))
	mux.HandleFunc("/api/videos/detail", srv.auth(srv.handleVideoDetail))
	mux.HandleFunc("/api/health", srv.auth(srv.handleHealth))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Start begins serving on the configured bind address. The server shuts down
// when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address required")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down and releases the listener.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listener address, useful when binding port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// auth validates bearer tokens. An empty configured token disables
// authentication.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimPrefix(header, "Bearer ") != s.token {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// handleJobs submits a job (POST) or lists jobs (GET).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var request SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := ValidateVideoURL(request.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := queue.Payload{URL: strings.TrimSpace(request.URL), UserID: strings.TrimSpace(request.UserID)}
	if request.VideoInfo != nil {
		encoded, err := json.Marshal(request.VideoInfo)
		if err == nil {
			payload.VideoInfo = encoded
		}
		// A snapshot submitted with the job seeds the video record early so
		// listings show a title before the pipeline runs.
		if _, err := s.media.UpsertVideo(r.Context(), media.Video{
			URL:         payload.URL,
			Title:       request.VideoInfo.Title,
			Description: request.VideoInfo.Description,
			Duration:    request.VideoInfo.Duration,
			Author:      request.VideoInfo.Author,
			Thumbnail:   request.VideoInfo.Thumbnail,
			Status:      media.VideoPending,
			UserID:      payload.UserID,
		}); err != nil {
			s.logger.Warn("seed video record", logging.Error(err))
		}
	}

	job, err := s.jobs.Submit(r.Context(), payload)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("job submitted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldURL, job.Payload.URL))
	s.writeJSON(w, http.StatusAccepted, FromJob(job))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	views, err := s.aggregator.GetAllJobs(r.Context(), userID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := JobListResponse{Jobs: make([]JobView, 0, len(views))}
	for _, view := range views {
		response.Jobs = append(response.Jobs, FromJobStatus(view))
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleJobStatus serves GET /api/jobs/{id}/status.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	idPart, ok := strings.CutSuffix(rest, "/status")
	if !ok {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(strings.Trim(idPart, "/"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	view, err := s.aggregator.GetJobStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, FromJobStatus(view))
}

// handleVideoInfo serves GET /api/videos/info?url= without enqueuing a job.
func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if err := ValidateVideoURL(rawURL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.resolver.ResolveMetadata(r.Context(), rawURL)
	if err != nil {
		if services.IsTerminal(err) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, VideoInfoResponse{URL: rawURL, Info: info})
}

// handleVideoDetail serves GET /api/videos/detail?url= with the stored
// transcription and analysis for a processed url.
func (s *Server) handleVideoDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if err := ValidateVideoURL(rawURL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := s.media.GetVideoDetail(r.Context(), rawURL)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if detail == nil {
		s.writeError(w, http.StatusNotFound, "video not found")
		return
	}
	s.writeJSON(w, http.StatusOK, FromVideoDetail(detail))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.jobs.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, FromHealth(summary))
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
