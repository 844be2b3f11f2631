package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kailas-cloud/blograg/internal/config"
	dbRedis "github.com/kailas-cloud/blograg/internal/db/redis"
	"github.com/kailas-cloud/blograg/internal/domain"
	logpkg "github.com/kailas-cloud/blograg/internal/logger"
	"github.com/kailas-cloud/blograg/internal/metrics"
	"github.com/kailas-cloud/blograg/internal/repository/embcache"
	"github.com/kailas-cloud/blograg/internal/repository/posts"
	"github.com/kailas-cloud/blograg/internal/repository/vectorstore"
	chiTransport "github.com/kailas-cloud/blograg/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/blograg/internal/transport/openai"
	"github.com/kailas-cloud/blograg/internal/transport/pollinations"
	assistantuc "github.com/kailas-cloud/blograg/internal/usecase/assistant"
	healthuc "github.com/kailas-cloud/blograg/internal/usecase/health"
	imagegenuc "github.com/kailas-cloud/blograg/internal/usecase/imagegen"
	indexeruc "github.com/kailas-cloud/blograg/internal/usecase/indexer"
	lifecycleuc "github.com/kailas-cloud/blograg/internal/usecase/lifecycle"
	uploadsuc "github.com/kailas-cloud/blograg/internal/usecase/uploads"
	"github.com/kailas-cloud/blograg/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting blograg API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("vector_addrs", cfg.VectorStore.Addrs),
	)

	// Blog database (read-only, owned by the blog application)
	pg, err := sqlx.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		logger.Fatal("Failed to open postgres", zap.Error(err))
	}
	postRepo := posts.New(pg, cfg.Indexing.MinContentLen)

	// Redis vector store
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.VectorStore.Addrs,
		Password: cfg.VectorStore.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store client", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	readyTimeout := time.Duration(cfg.VectorStore.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, readyTimeout); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Embedder chain: OpenAI -> Cached
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.EmbeddingModel,
		MaxChars: cfg.LLM.EmbedMaxChars,
		Logger:   logger,
	})
	embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.ChatModel,
		Logger:  logger,
	})

	vectors := vectorstore.New(store, cfg.VectorStore.IndexName, cfg.VectorStore.Dimensions, logger).
		WithBatchSize(cfg.VectorStore.UpsertBatchSize).
		WithHNSW(vectorstore.HNSWConfig{
			M:           cfg.VectorStore.HNSWM,
			EFConstruct: cfg.VectorStore.HNSWEFConstruct,
		})

	// Use case services
	indexSvc := indexeruc.New(postRepo, vectors, embedder, logger).
		WithChunkOverlap(cfg.Indexing.ChunkOverlap).
		WithRefresh(cfg.Indexing.RefreshLimit, time.Duration(cfg.Indexing.RefreshSettleSec)*time.Second)

	assistantSvc := assistantuc.New(vectors, embedder, generator, logger).
		WithMinScore(cfg.VectorStore.MinScore).
		WithGeneration(cfg.LLM.MaxTokens, cfg.LLM.Temperature)

	uploadSvc, err := uploadsuc.New(cfg.Uploads.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to create upload directory", zap.Error(err))
	}

	imageProvider := pollinations.New(pollinations.Config{
		BaseURL: cfg.Images.BaseURL,
		Timeout: time.Duration(cfg.Images.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	imageSvc := imagegenuc.New(generator, imageProvider, uploadSvc.Dir(), logger).
		WithModels(cfg.Images.Models).
		WithRetryPolicy(cfg.Images.Retries, time.Duration(cfg.Images.RetryDelaySec)*time.Second)

	healthSvc := healthuc.New(postRepo, vectors, generator, logger)

	manager := lifecycleuc.New(postRepo, vectors, generator, indexSvc, logger).
		WithWarmStart(cfg.Indexing.WarmStartLimit, cfg.Indexing.ChunkSize).
		WithCloser(postRepo.Close)

	// HTTP server
	server := chiTransport.NewServer(
		indexSvc, assistantSvc, imageSvc, uploadSvc, healthSvc, manager, vectors,
		chiTransport.Defaults{
			IndexLimit: cfg.Indexing.DefaultLimit,
			ChunkSize:  cfg.Indexing.ChunkSize,
		},
		logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	// Initialization runs in the background; endpoints answer 503 until ready.
	go func() {
		if !manager.InitializeAll(ctx) {
			logger.Error("Initialization failed, endpoints stay unavailable")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	manager.Cleanup()
	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
