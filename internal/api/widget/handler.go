package widget

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/httperr"
	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/service"
)

// Handler handles widget API requests
type Handler struct {
	widgetService *service.WidgetService
}

// NewHandler creates a new widget handler
func NewHandler(widgetService *service.WidgetService) *Handler {
	return &Handler{widgetService: widgetService}
}

// RegisterRoutes registers widget routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/movies/:movie_id/config", h.GetConfig)
	r.POST("/movies/:movie_id/sessions", h.Mount)
}

type mountRequest struct {
	InitialQuestion string `json:"initial_question"`
}

// GetConfig returns the widget configuration for a movie
func (h *Handler) GetConfig(c *gin.Context) {
	movieID, ok := parseMovieID(c)
	if !ok {
		return
	}

	config, err := h.widgetService.GetWidgetConfig(c.Request.Context(), movieID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
			return
		}
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, config)
}

// Mount opens a chat session bound to the movie
func (h *Handler) Mount(c *gin.Context) {
	movieID, ok := parseMovieID(c)
	if !ok {
		return
	}

	var req mountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	m, err := h.widgetService.Mount(c.Request.Context(), movieID, req.InitialQuestion)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
			return
		}
		httperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":  m.Session.View(),
		"movie":    m.Movie,
		"greeting": service.Greeting(m.Movie.Title),
	})
}

func parseMovieID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("movie_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movie_id"})
		return 0, false
	}
	return id, true
}
