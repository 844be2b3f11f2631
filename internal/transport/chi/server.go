// Package chi exposes the blog assistant over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/domain"
	"github.com/kailas-cloud/blograg/internal/version"

	assistantuc "github.com/kailas-cloud/blograg/internal/usecase/assistant"
	healthuc "github.com/kailas-cloud/blograg/internal/usecase/health"
	imagegenuc "github.com/kailas-cloud/blograg/internal/usecase/imagegen"
	indexeruc "github.com/kailas-cloud/blograg/internal/usecase/indexer"
	lifecycleuc "github.com/kailas-cloud/blograg/internal/usecase/lifecycle"
	uploadsuc "github.com/kailas-cloud/blograg/internal/usecase/uploads"
)

// maxUploadBytes bounds multipart upload memory and file size.
const maxUploadBytes = 20 << 20

// IndexStats exposes the vector count for the status endpoint.
type IndexStats interface {
	Stats(ctx context.Context) (int, error)
}

// Defaults carries request parameter fallbacks from configuration.
type Defaults struct {
	IndexLimit int
	ChunkSize  int
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the use case services into HTTP handlers.
type Server struct {
	indexer       *indexeruc.Service
	assistant     *assistantuc.Service
	images        *imagegenuc.Service
	uploads       *uploadsuc.Service
	health        *healthuc.Service
	lifecycle     *lifecycleuc.Manager
	stats         IndexStats
	defaults      Defaults
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	idx *indexeruc.Service,
	assistant *assistantuc.Service,
	images *imagegenuc.Service,
	uploads *uploadsuc.Service,
	health *healthuc.Service,
	lifecycle *lifecycleuc.Manager,
	stats IndexStats,
	defaults Defaults,
	logger *zap.Logger,
) *Server {
	s := &Server{
		indexer:   idx,
		assistant: assistant,
		images:    images,
		uploads:   uploads,
		health:    health,
		lifecycle: lifecycle,
		stats:     stats,
		defaults:  defaults,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, "service_unavailable"),
		sentinelHandler(domain.ErrPostNotFound, http.StatusNotFound, "blog_not_found"),
		sentinelHandler(domain.ErrInvalidUpload, http.StatusBadRequest, "invalid_upload"),
		sentinelHandler(domain.ErrEmbeddingFailed, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, "generation_provider_error"),
		sentinelHandler(domain.ErrImageProvidersExhausted, http.StatusBadGateway, "image_providers_exhausted"),
	}
	return s
}

// Routes registers all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/index-status", s.handleIndexStatus)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/index", s.handleIndex)
	r.Post("/query", s.handleQuery)
	r.Post("/update-blog/{id}", s.handleUpdateBlog)
	r.Delete("/delete-blog/{id}", s.handleDeleteBlog)
	r.Post("/refresh-index", s.handleRefreshIndex)
	r.Post("/generate", s.handleGenerate)
	r.Post("/upload", s.handleUpload)

	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.uploads.Dir()))))
}

// handleRoot serves service info and is available in every lifecycle state.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	snap := s.lifecycle.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"message":             "Blog RAG assistant API",
		"version":             version.Version,
		"status":              string(snap.State),
		"servicesInitialized": snap.Ready,
		"indexPopulated":      snap.IndexPopulated,
		"endpoints": []string{
			"/index", "/query", "/health", "/index-status",
			"/update-blog/{id}", "/delete-blog/{id}", "/refresh-index",
			"/generate", "/upload", "/metrics",
		},
	})
}

// handleHealth probes dependencies and is available in every lifecycle state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.StatusError {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":      string(report.Status),
		"database":    report.Database,
		"vectorStore": report.VectorStore,
		"generative":  report.Generative,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.lifecycle.Snapshot()

	total := 0
	if snap.Ready {
		n, err := s.stats.Stats(r.Context())
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		total = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         string(snap.State),
		"totalVectors":   total,
		"indexPopulated": snap.IndexPopulated,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	var req struct {
		Limit     int `json:"limit"`
		ChunkSize int `json:"chunkSize"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Limit <= 0 {
		req.Limit = s.defaults.IndexLimit
	}
	if req.ChunkSize <= 0 {
		req.ChunkSize = s.defaults.ChunkSize
	}

	start := time.Now()
	summary, err := s.indexer.ReindexAll(r.Context(), req.Limit, req.ChunkSize)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.lifecycle.MarkPopulated(summary.ChunksCreated > 0)

	writeJSON(w, http.StatusOK, map[string]any{
		"blogsProcessed":        summary.PostsProcessed,
		"chunksCreated":         summary.ChunksCreated,
		"processingTimeSeconds": seconds(start),
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"topK"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	start := time.Now()
	answer, err := s.assistant.Answer(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":                 req.Query,
		"answer":                answer,
		"processingTimeSeconds": seconds(start),
	})
}

func (s *Server) handleUpdateBlog(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	id, ok := blogID(w, r)
	if !ok {
		return
	}

	var req struct {
		ChunkSize int `json:"chunkSize"`
	}
	// An empty body means "use defaults" here.
	_ = decodeJSON(r, &req)
	if req.ChunkSize <= 0 {
		req.ChunkSize = s.defaults.ChunkSize
	}

	start := time.Now()
	summary, err := s.indexer.UpdatePost(r.Context(), id, req.ChunkSize)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"updated":               true,
		"chunksCreated":         summary.ChunksCreated,
		"processingTimeSeconds": seconds(start),
	})
}

func (s *Server) handleDeleteBlog(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	id, ok := blogID(w, r)
	if !ok {
		return
	}

	removed, err := s.indexer.DeletePost(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":        true,
		"vectorsRemoved": removed,
	})
}

func (s *Server) handleRefreshIndex(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	var req struct {
		ChunkSize int `json:"chunkSize"`
	}
	_ = decodeJSON(r, &req)
	if req.ChunkSize <= 0 {
		req.ChunkSize = s.defaults.ChunkSize
	}

	start := time.Now()
	summary, err := s.indexer.RefreshAll(r.Context(), req.ChunkSize)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.lifecycle.MarkPopulated(summary.ChunksCreated > 0)

	writeJSON(w, http.StatusOK, map[string]any{
		"blogsProcessed":        summary.PostsProcessed,
		"chunksCreated":         summary.ChunksCreated,
		"processingTimeSeconds": seconds(start),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	var req struct {
		UserInput string `json:"userInput"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Seed      int    `json:"seed"`
		Retries   int    `json:"retries"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.UserInput == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "userInput is required")
		return
	}
	if req.Width <= 0 {
		req.Width = 1024
	}
	if req.Height <= 0 {
		req.Height = 1024
	}
	if req.Seed <= 0 {
		req.Seed = 42
	}

	start := time.Now()
	composed := s.images.ComposePrompt(r.Context(), req.UserInput)

	path, err := s.images.Render(r.Context(), composed.Prompt, req.Width, req.Height, req.Seed, req.Retries)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary":               composed.Summary,
		"promptTier":            string(composed.Tier),
		"imageFile":             path,
		"imageUrl":              path,
		"processingTimeSeconds": seconds(start),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.requireReady(w) {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	path, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"url": path})
}

// requireReady rejects requests until initialization succeeded.
func (s *Server) requireReady(w http.ResponseWriter) bool {
	snap := s.lifecycle.Snapshot()
	if snap.Ready {
		return true
	}
	writeError(w, http.StatusServiceUnavailable, "service_unavailable",
		"service not ready (state: "+string(snap.State)+")")
	return false
}

func blogID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeJSON decodes a JSON body. An empty body decodes to the zero value so
// endpoints with all-optional parameters accept bare POSTs.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func seconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotReady,
		domain.ErrPostNotFound,
		domain.ErrInvalidUpload,
		domain.ErrEmbeddingFailed,
		domain.ErrGenerationFailed,
		domain.ErrImageProvidersExhausted,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeJSON(w, status, map[string]string{
			"code":    code,
			"message": msg,
		})
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
