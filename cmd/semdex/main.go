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
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/config"
	dbRedis "github.com/kailas-cloud/semdex/internal/db/redis"
	logpkg "github.com/kailas-cloud/semdex/internal/logger"
	"github.com/kailas-cloud/semdex/internal/metrics"
	auditrepo "github.com/kailas-cloud/semdex/internal/repository/audit"
	docmetarepo "github.com/kailas-cloud/semdex/internal/repository/docmeta"
	embeddingrepo "github.com/kailas-cloud/semdex/internal/repository/embedding"
	jobrepo "github.com/kailas-cloud/semdex/internal/repository/job"
	"github.com/kailas-cloud/semdex/internal/repository/querycache"
	chiTransport "github.com/kailas-cloud/semdex/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/semdex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/semdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/semdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/semdex/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/semdex/internal/usecase/search"
	"github.com/kailas-cloud/semdex/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting semdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.Register()

	// Provider client with retry and rate-limit decorators.
	provider := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:        cfg.Embedding.APIKey,
		BaseURL:       cfg.Embedding.BaseURL,
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		MaxInputChars: cfg.Embedding.MaxInputChars,
		Logger:        logger,
	})
	retrying := embeddinguc.NewRetrying(provider, cfg.Embedding.MaxAttempts, logger)
	embedder := embeddinguc.NewRateLimited(retrying, cfg.Embedding.BatchesPerSecond)

	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("max_attempts", cfg.Embedding.MaxAttempts),
	)

	prefix := cfg.Storage.KeyPrefix
	embRepo := embeddingrepo.New(store, prefix, logger)
	jobs := jobrepo.New(store, prefix)
	meta := docmetarepo.New(store, prefix)

	queryCache, err := querycache.New(store, prefix, cfg.Search.QueryCacheSize, metrics.QueryCacheTotal, logger)
	if err != nil {
		logger.Fatal("Failed to create query cache", zap.Error(err))
	}

	var auditor searchuc.Auditor
	if cfg.Search.AuditLogSize > 0 {
		auditor = auditrepo.New(store, prefix, cfg.Search.AuditLogSize)
	}

	ingestSvc := ingestuc.New(embRepo, jobs, meta, embedder, ingestuc.Config{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		BatchSize:    cfg.Ingest.BatchSize,
	}, logger)

	searchSvc := searchuc.New(embRepo, queryCache, embedder, meta, auditor, searchuc.Config{
		MaxScan:          cfg.Search.MaxScan,
		DefaultLimit:     cfg.Search.DefaultLimit,
		DefaultThreshold: cfg.Search.DefaultThreshold,
	}, logger)

	healthSvc := healthuc.New(store, provider)

	server := chiTransport.NewServer(ingestSvc, searchSvc, healthSvc)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

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

// requestLogMiddleware emits a canonical log line per request and propagates X-Request-ID.
func requestLogMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.WithContext(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
