package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/crisis"
	"github.com/mazungumzo-chat-go/internal/handlers"
	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/internal/middleware"
	"github.com/mazungumzo-chat-go/internal/services/ai"
	"github.com/mazungumzo-chat-go/internal/services/cache"
	"github.com/mazungumzo-chat-go/internal/services/insights"
	"github.com/mazungumzo-chat-go/internal/services/resources"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/mazungumzo-chat-go/internal/services/whatsapp"
	"github.com/mazungumzo-chat-go/internal/session"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional, defaults and env cover everything)")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(logrus.Fields{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting Mazungumzo AI")

	pseudo := logger.NewPseudonymizer(cfg.Logging.PseudonymKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	storageManager, err := storage.NewManager(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	log.WithField("backend", storageManager.Backend()).Info("Storage initialized")

	// Initialize services
	sessionManager := session.NewManager(cfg, storageManager, log, pseudo)
	aiService := ai.NewService(&cfg.AI, log)
	scorer := crisis.NewScorer(cfg.Crisis.ConfidenceThreshold, log)
	cacheService := cache.NewCache(cfg, log)
	analyzer := insights.NewAnalyzer(log)
	whatsappService := whatsapp.NewService(&cfg.WhatsApp, log)
	resourceService := resources.NewService(storageManager, log)

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize middleware
	metrics := middleware.NewMetrics()
	limiter := middleware.NewRateLimiter(cfg, log, pseudo)
	rateLimit := middleware.NewRateLimit(limiter, localizer, metrics)
	security := middleware.NewSecurityMiddleware(log)
	cors := middleware.NewCORS(cfg.Server.CORSOrigins)

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize handlers
	pipeline := handlers.NewPipeline(
		sessionManager,
		aiService,
		scorer,
		cacheService,
		analyzer,
		storageManager,
		security,
		metrics,
		pseudo,
		log,
	)

	chatHandler := handlers.NewChatHandler(
		pipeline,
		sessionManager,
		analyzer,
		storageManager,
		security,
		localizer,
		metrics,
		pseudo,
		log,
	)
	sessionHandler := handlers.NewSessionHandler(sessionManager, scorer, localizer, pseudo, log)
	resourcesHandler := handlers.NewResourcesHandler(resourceService, localizer, log)
	statsHandler := handlers.NewStatsHandler(storageManager, resourceService, log)
	healthHandler := handlers.NewHealthHandler(cfg, aiService, sessionManager, storageManager, log)
	webhookHandler := handlers.NewWebhookHandler(cfg, pipeline, whatsappService, analyzer, metrics, pseudo, log)

	router := handlers.NewRouter(
		chatHandler,
		sessionHandler,
		resourcesHandler,
		statsHandler,
		healthHandler,
		webhookHandler,
		cors,
		rateLimit,
		metrics,
	)

	// Start periodic tasks
	go startPeriodicTasks(ctx, sessionManager, metrics, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	cancel()
	log.Info("Server stopped")
}

// startPeriodicTasks keeps the active session gauge fresh.
func startPeriodicTasks(ctx context.Context, sessions *session.Manager, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := sessions.PlatformStats(ctx)
			if err != nil {
				log.WithError(err).Warn("Failed to refresh session stats")
				continue
			}
			metrics.SetActiveSessions(float64(stats.ActiveSessionsLastHour))
		}
	}
}
