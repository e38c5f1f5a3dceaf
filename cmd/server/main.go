package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/viktor/chat-storage-gateway/internal/api"
	"github.com/viktor/chat-storage-gateway/internal/audit"
	"github.com/viktor/chat-storage-gateway/internal/cache"
	"github.com/viktor/chat-storage-gateway/internal/config"
	"github.com/viktor/chat-storage-gateway/internal/crypto"
	"github.com/viktor/chat-storage-gateway/internal/metrics"
	"github.com/viktor/chat-storage-gateway/internal/middleware"
	"github.com/viktor/chat-storage-gateway/internal/remote"
	"github.com/viktor/chat-storage-gateway/internal/storage"
	"github.com/viktor/chat-storage-gateway/internal/tracing"
	"github.com/viktor/chat-storage-gateway/internal/tracker"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting chat storage gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &cfg.Tracing, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}

	m := metrics.NewMetrics()
	metrics.SetVersion(version)
	m.StartSystemMetricsCollector()

	remoteStore, err := remote.New(&cfg.Remote)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create remote store")
	}
	logger.WithField("driver", cfg.Remote.Driver).Info("Remote store initialized")

	fileTracker, err := tracker.New(ctx, &cfg.Tracking)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create tracker")
	}
	logger.WithFields(logrus.Fields{
		"enabled": cfg.Tracking.Enabled,
		"driver":  cfg.Tracking.Driver,
	}).Info("Tracker initialized")

	cipher, err := buildCipher(&cfg.Encryption)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure encryption")
	}
	logger.WithField("enabled", cipher.Enabled()).Info("Segment encryption configured")

	var readCache cache.Cache
	if cfg.Cache.Enabled {
		readCache = cache.NewMemoryCache(cfg.Cache.MaxBytes, cfg.Cache.MaxItems, cfg.Cache.TTL)
		logger.WithFields(logrus.Fields{
			"max_bytes": cfg.Cache.MaxBytes,
			"max_items": cfg.Cache.MaxItems,
			"ttl":       cfg.Cache.TTL,
		}).Info("Read cache enabled")
	}

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogrusLogger(cfg.Audit.MaxEvents, logger)
		logger.WithField("max_events", cfg.Audit.MaxEvents).Info("Audit logging enabled")
	}

	store := storage.New(storage.Config{
		Remote:          remoteStore,
		Tracker:         fileTracker,
		Cipher:          cipher,
		ChunkingEnabled: cfg.Chunking.Enabled,
		ChunkSize:       cfg.Chunking.Size,
		Cache:           readCache,
		Logger:          logger,
		Metrics:         m,
	})

	// Watch the config file for chunk size changes; everything else needs a
	// restart.
	reloader, err := config.NewConfigReloader(configPath, cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Config reloading unavailable")
	} else {
		reloader.OnReload(func(newCfg *config.Config) {
			store.SetChunkSize(newCfg.Chunking.Size)
			if lvl, err := logrus.ParseLevel(newCfg.LogLevel); err == nil {
				logger.SetLevel(lvl)
			}
		})
		defer reloader.Stop()
	}

	handler := api.NewHandler(store, logger, m, auditLogger, cfg.Server.MaxBodyBytes)

	router := mux.NewRouter()
	router.Handle("/metrics", m.Handler()).Methods("GET")
	handler.RegisterRoutes(router)

	httpHandler := middleware.RecoveryMiddleware(logger)(router)
	httpHandler = middleware.LoggingMiddleware(logger, &cfg.Logging)(httpHandler)
	httpHandler = middleware.SecurityHeadersMiddleware()(httpHandler)
	if cfg.Tracing.Enabled {
		httpHandler = middleware.TracingMiddleware(true)(httpHandler)
	}
	httpHandler = middleware.RequestIDMiddleware()(httpHandler)

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window, logger)
		defer rateLimiter.Stop()
		httpHandler = middleware.RateLimitMiddleware(rateLimiter)(httpHandler)
		logger.WithFields(logrus.Fields{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}).Info("Rate limiting enabled")
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpHandler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go func() {
		var err error
		if cfg.TLS.Enabled {
			logger.WithFields(logrus.Fields{
				"addr":      cfg.ListenAddr,
				"cert_file": cfg.TLS.CertFile,
			}).Info("Starting HTTPS server")
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.WithField("addr", cfg.ListenAddr).Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server stopped gracefully")
	}

	if closer, ok := fileTracker.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.WithError(err).Warn("Tracker close failed")
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Tracing shutdown failed")
	}
}

// buildCipher resolves the segment cipher from config: an explicit key wins,
// otherwise one is derived from the application secret.
func buildCipher(cfg *config.EncryptionConfig) (crypto.Cipher, error) {
	if !cfg.Enabled {
		return crypto.NewIdentityCipher(), nil
	}

	var key []byte
	var err error
	if cfg.Key != "" {
		key, err = crypto.ResolveKey(cfg.Key)
	} else {
		key, err = crypto.DeriveKey(cfg.AppSecret)
	}
	if err != nil {
		return nil, err
	}

	return crypto.NewSegmentCipher(key)
}
