// Package catalog exposes the movie catalog to the browser.
package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/httperr"
	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/service"
)

// Handler handles catalog requests
type Handler struct {
	catalog *service.CatalogService
}

// NewHandler creates a new catalog handler
func NewHandler(catalog *service.CatalogService) *Handler {
	return &Handler{catalog: catalog}
}

// RegisterRoutes registers catalog routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/movies", h.List)
	r.GET("/movies/trending", h.Trending)
	r.GET("/movies/recently_viewed", h.RecentlyViewed)
	r.GET("/movies/:id", h.Get)
	r.GET("/movies/:id/sections", h.Sections)
	r.POST("/movies/:id/view", h.MarkViewed)
	r.GET("/genres", h.Genres)
}

// List returns one page of movies
func (h *Handler) List(c *gin.Context) {
	var q domain.MovieQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.catalog.ListMovies(c.Request.Context(), q)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns one movie
func (h *Handler) Get(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}
	movie, err := h.catalog.GetMovie(c.Request.Context(), id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, movie)
}

// Sections returns the analysis sections of a movie
func (h *Handler) Sections(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}
	sections, err := h.catalog.GetMovieSections(c.Request.Context(), id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sections)
}

// MarkViewed records a view of a movie
func (h *Handler) MarkViewed(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}
	if err := h.catalog.MarkViewed(c.Request.Context(), id); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Trending returns trending movies
func (h *Handler) Trending(c *gin.Context) {
	movies, err := h.catalog.Trending(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, movies)
}

// RecentlyViewed returns recently viewed movies
func (h *Handler) RecentlyViewed(c *gin.Context) {
	movies, err := h.catalog.RecentlyViewed(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, movies)
}

// Genres returns the genre list
func (h *Handler) Genres(c *gin.Context) {
	genres, err := h.catalog.Genres(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, genres)
}

func movieID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movie id"})
		return 0, false
	}
	return id, true
}
