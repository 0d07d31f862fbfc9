package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/httperr"
	"github.com/liliang-cn/moviechat/internal/service"
)

// Handler handles admin API requests
type Handler struct {
	adminService *service.AdminService
}

// NewHandler creates a new admin handler
func NewHandler(adminService *service.AdminService) *Handler {
	return &Handler{adminService: adminService}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.DELETE("/:id", h.CloseSession)
	}

	r.DELETE("/cache", h.PurgeCache)
	r.GET("/stats", h.GetStats)
}

// Session handlers

func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.adminService.ListSessions(c.Request.Context())})
}

func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.adminService.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}

// Cache handler

func (h *Handler) PurgeCache(c *gin.Context) {
	removed, err := h.adminService.PurgeCache(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Stats handler

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
