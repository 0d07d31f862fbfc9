// Package sessions serves mounted chat sessions over HTTP, SSE and WebSocket.
package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/httperr"
	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/service"
	"go.uber.org/zap"
)

// Handler handles chat session requests
type Handler struct {
	chatService *service.ChatService
	logger      *zap.Logger
	wsOrigins   []string
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService, logger *zap.Logger, wsOrigins []string) *Handler {
	return &Handler{
		chatService: chatService,
		logger:      logger,
		wsOrigins:   wsOrigins,
	}
}

// RegisterRoutes registers chat session routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", h.Mount)
	r.GET("/sessions/:id", h.View)
	r.DELETE("/sessions/:id", h.Unmount)
	r.POST("/sessions/:id/messages", h.Submit)
	r.DELETE("/sessions/:id/messages", h.Clear)
	r.POST("/sessions/:id/suggestions/:index", h.Suggestion)
	r.GET("/sessions/:id/export", h.Export)
	r.GET("/sessions/:id/events", h.Events)
}

type mountResponse struct {
	Session  any           `json:"session"`
	Movie    *domain.Movie `json:"movie,omitempty"`
	Greeting string        `json:"greeting,omitempty"`
}

type submitRequest struct {
	Message string `json:"message"`
}

// Mount opens a session. The body is optional.
func (h *Handler) Mount(c *gin.Context) {
	var req service.MountRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	m, err := h.chatService.Mount(c.Request.Context(), req)
	if err != nil {
		if req.MovieID != nil && httperr.Status(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
			return
		}
		httperr.Abort(c, err)
		return
	}

	resp := mountResponse{Session: m.Session.View(), Movie: m.Movie}
	if m.Movie != nil {
		resp.Greeting = service.Greeting(m.Movie.Title)
	}
	c.JSON(http.StatusCreated, resp)
}

// View returns the rendered session
func (h *Handler) View(c *gin.Context) {
	sess, err := h.chatService.Get(c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// Unmount discards the session
func (h *Handler) Unmount(c *gin.Context) {
	if err := h.chatService.Unmount(c.Param("id")); err != nil {
		httperr.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Submit sends a user message. The reply arrives asynchronously.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if err := h.chatService.Submit(id, req.Message); err != nil {
		httperr.Abort(c, err)
		return
	}
	h.accepted(c, id)
}

// Suggestion submits one of the quick suggestions
func (h *Handler) Suggestion(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid suggestion index"})
		return
	}

	id := c.Param("id")
	if err := h.chatService.SubmitSuggestion(id, index); err != nil {
		httperr.Abort(c, err)
		return
	}
	h.accepted(c, id)
}

func (h *Handler) accepted(c *gin.Context, id string) {
	sess, err := h.chatService.Get(id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess.View())
}

// Clear empties the transcript
func (h *Handler) Clear(c *gin.Context) {
	sess, err := h.chatService.Get(c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	sess.Clear()
	c.JSON(http.StatusOK, sess.View())
}

// Export downloads the transcript as a text file
func (h *Handler) Export(c *gin.Context) {
	sess, err := h.chatService.Get(c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	export := sess.Export()
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename))
	c.Data(http.StatusOK, export.ContentType(), []byte(export.Body))
}

// Events streams session events (SSE). The first event is a snapshot of
// the current view.
func (h *Handler) Events(c *gin.Context) {
	sess, err := h.chatService.Get(c.Param("id"))
	if err != nil {
		httperr.Abort(c, err)
		return
	}

	events, cancel := sess.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "snapshot", sess.View())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case chunk, ok := <-events:
			if !ok {
				writeSSE(w, "closed", gin.H{"type": "closed"})
				return false
			}
			writeSSE(w, chunk.Type, chunk)
			return true
		}
	})
}

func writeSSE(w io.Writer, eventType string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(data))
}
