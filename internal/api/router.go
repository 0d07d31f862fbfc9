package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/account"
	"github.com/liliang-cn/moviechat/internal/api/admin"
	"github.com/liliang-cn/moviechat/internal/api/catalog"
	"github.com/liliang-cn/moviechat/internal/api/history"
	"github.com/liliang-cn/moviechat/internal/api/middleware"
	"github.com/liliang-cn/moviechat/internal/api/sessions"
	"github.com/liliang-cn/moviechat/internal/api/widget"
	"github.com/liliang-cn/moviechat/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AdminAPIKey  string
	AllowOrigins []string
	Logger       *zap.Logger
}

// Services bundles the services the router exposes
type Services struct {
	Chat    *service.ChatService
	Widget  *service.WidgetService
	Catalog *service.CatalogService
	Auth    *service.AuthService
	History *service.HistoryService
	Admin   *service.AdminService
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": svc.Chat.Count()})
	})

	// Admin API (falls back to the server key)
	adminKey := cfg.AdminAPIKey
	if adminKey == "" {
		adminKey = cfg.APIKey
	}
	if svc.Admin != nil {
		adminHandler := admin.NewHandler(svc.Admin)
		adminGroup := r.Group("/api/admin")
		adminGroup.Use(middleware.Auth(adminKey))
		adminHandler.RegisterRoutes(adminGroup)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(cfg.APIKey))

	sessionHandler := sessions.NewHandler(svc.Chat, logger, cfg.AllowOrigins)
	sessionHandler.RegisterRoutes(api.Group("/chat"))

	if svc.History != nil {
		historyHandler := history.NewHandler(svc.History)
		historyHandler.RegisterRoutes(api.Group("/chat"))
	}

	widgetHandler := widget.NewHandler(svc.Widget)
	widgetHandler.RegisterRoutes(api.Group("/widget"))

	catalogHandler := catalog.NewHandler(svc.Catalog)
	catalogHandler.RegisterRoutes(api)

	accountHandler := account.NewHandler(svc.Auth)
	accountHandler.RegisterRoutes(api.Group("/auth"))

	ws := r.Group("/ws")
	ws.Use(middleware.Auth(cfg.APIKey))
	ws.GET("/chat", sessionHandler.ServeWS)

	return r
}
