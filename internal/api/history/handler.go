package history

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/httperr"
	"github.com/liliang-cn/moviechat/internal/service"
)

// Handler serves the backend's stored conversations
type Handler struct {
	history *service.HistoryService
}

// NewHandler creates a new history handler
func NewHandler(history *service.HistoryService) *Handler {
	return &Handler{history: history}
}

// RegisterRoutes registers conversation routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/conversations", h.List)
	r.GET("/conversations/:id", h.Get)
}

func (h *Handler) List(c *gin.Context) {
	conversations, err := h.history.ListConversations(c.Request.Context())
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	conversation, err := h.history.GetConversation(c.Request.Context(), id)
	if err != nil {
		httperr.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}
