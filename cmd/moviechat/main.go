package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api"
	"github.com/liliang-cn/moviechat/internal/auth"
	"github.com/liliang-cn/moviechat/internal/client"
	"github.com/liliang-cn/moviechat/internal/config"
	"github.com/liliang-cn/moviechat/internal/logging"
	"github.com/liliang-cn/moviechat/internal/repository"
	"github.com/liliang-cn/moviechat/internal/service"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database (credentials and movie cache only)
	db, err := repository.NewDB(cfg.Auth.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	credentialRepo := repository.NewCredentialRepository(db)
	movieRepo := repository.NewMovieRepository(db)

	// Backend client; the credential provider refreshes through it
	backend := client.New(cfg.Backend.BaseURL,
		client.WithTimeout(cfg.Backend.Timeout),
		client.WithLogger(logger.Named("backend")),
	)
	provider := auth.NewProvider(credentialRepo, backend,
		auth.WithLeeway(cfg.Auth.RefreshLeeway),
		auth.WithLogger(logger.Named("auth")),
	)
	backend.SetCredentials(provider)

	// Initialize services
	authService := service.NewAuthService(backend, provider, logger.Named("auth"))
	catalogService := service.NewCatalogService(backend, movieRepo, cfg.Cache.MovieTTL, logger.Named("catalog"))
	chatService := service.NewChatService(cfg, backend, catalogService, logger.Named("chat"))
	widgetService := service.NewWidgetService(cfg, catalogService, chatService)
	historyService := service.NewHistoryService(backend, provider)
	adminService := service.NewAdminService(chatService, catalogService, movieRepo, authService)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := authService.EnsureLogin(ctx, cfg.Auth.Username, cfg.Auth.Password); err != nil {
		logger.Warn("Configured login failed, continuing anonymously", zap.Error(err))
	}
	if removed, err := catalogService.PurgeCache(); err != nil {
		logger.Warn("Failed to purge movie cache", zap.Error(err))
	} else if removed > 0 {
		logger.Info("Purged stale movies", zap.Int64("removed", removed))
	}

	go chatService.Run(ctx)

	// Setup router
	router := api.SetupRouter(api.Services{
		Chat:    chatService,
		Widget:  widgetService,
		Catalog: catalogService,
		Auth:    authService,
		History: historyService,
		Admin:   adminService,
	}, api.RouterConfig{
		APIKey:       cfg.Server.APIKey,
		AdminAPIKey:  cfg.Admin.APIKey,
		AllowOrigins: cfg.CORS.AllowOrigins,
		Logger:       logger.Named("http"),
	})

	// Event streams stay open, so there is no write timeout
	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Starting MovieChat server",
			zap.String("address", cfg.Address()),
			zap.String("backend", cfg.Backend.BaseURL),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closing sessions ends their event streams
	chatService.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exited")
}
