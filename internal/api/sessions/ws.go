package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/moviechat/internal/api/httperr"
	"github.com/liliang-cn/moviechat/internal/chat"
	"github.com/liliang-cn/moviechat/internal/domain"
	"github.com/liliang-cn/moviechat/internal/service"
	"go.uber.org/zap"
)

// ClientFrame is a message sent by a WebSocket client
type ClientFrame struct {
	Type  string `json:"type"` // submit, suggestion, clear, export, view
	Text  string `json:"text,omitempty"`
	Index int    `json:"index,omitempty"`
}

// ServerFrame is a message pushed to a WebSocket client
type ServerFrame struct {
	Type     string          `json:"type"`
	Session  *chat.View      `json:"session,omitempty"`
	Message  *domain.Message `json:"message,omitempty"`
	Pending  bool            `json:"pending"`
	Typing   bool            `json:"typing"`
	Content  string          `json:"content,omitempty"`
	Filename string          `json:"filename,omitempty"`
	Greeting string          `json:"greeting,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// wsConn serializes writes to one connection
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *wsConn) send(ctx context.Context, frame ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// ServeWS mounts one session for the lifetime of a WebSocket connection.
// Query parameters: movie_id binds the session to a movie, q seeds it.
func (h *Handler) ServeWS(c *gin.Context) {
	var req service.MountRequest
	if raw := c.Query("movie_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movie_id"})
			return
		}
		req.MovieID = &id
	}

	m, err := h.chatService.Mount(c.Request.Context(), req)
	if err != nil {
		if req.MovieID != nil && errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "movie not found"})
			return
		}
		httperr.Abort(c, err)
		return
	}
	sess := m.Session
	defer h.chatService.Unmount(sess.ID())

	conn, err := websocket.Accept(c.Writer, c.Request, h.acceptOptions())
	if err != nil {
		h.logger.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	ws := &wsConn{conn: conn}

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	view := sess.View()
	hello := ServerFrame{Type: "snapshot", Session: &view}
	if m.Movie != nil {
		hello.Greeting = service.Greeting(m.Movie.Title)
	}
	if err := ws.send(ctx, hello); err != nil {
		return
	}

	go h.pump(ctx, cancel, ws, events)

	sess.Bootstrap(strings.TrimSpace(c.Query("q")))

	h.logger.Info("websocket session opened", zap.String("session_id", sess.ID()))
	h.readLoop(ctx, ws, sess)
	h.logger.Info("websocket session closed", zap.String("session_id", sess.ID()))
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	if len(h.wsOrigins) == 0 || slices.Contains(h.wsOrigins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(h.wsOrigins))
	for _, o := range h.wsOrigins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// pump forwards session events until the session closes or the write fails
func (h *Handler) pump(ctx context.Context, cancel context.CancelFunc, ws *wsConn, events <-chan domain.StreamChunk) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-events:
			if !ok {
				return
			}
			frame := ServerFrame{
				Type:    chunk.Type,
				Message: chunk.Message,
				Pending: chunk.Pending,
				Typing:  chunk.Typing,
				Content: chunk.Content,
			}
			if err := ws.send(ctx, frame); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *wsConn, sess *chat.Session) {
	for {
		_, data, err := ws.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			ws.send(ctx, ServerFrame{Type: "error", Error: "invalid message format"})
			continue
		}

		if err := h.handleFrame(ctx, ws, sess, frame); err != nil {
			ws.send(ctx, ServerFrame{Type: "error", Error: err.Error()})
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, ws *wsConn, sess *chat.Session, frame ClientFrame) error {
	switch frame.Type {
	case "submit":
		if strings.TrimSpace(frame.Text) == "" {
			return errors.New("empty message")
		}
		if err := sess.TrySubmit(frame.Text); err != nil {
			return errors.New(httperr.Message(err))
		}
	case "suggestion":
		if frame.Index < 0 || frame.Index >= len(sess.Suggestions()) {
			return errors.New("invalid suggestion index")
		}
		if err := sess.TrySubmitSuggestion(frame.Index); err != nil {
			return errors.New(httperr.Message(err))
		}
	case "clear":
		sess.Clear()
	case "export":
		export := sess.Export()
		return ws.send(ctx, ServerFrame{Type: "export", Filename: export.Filename, Content: export.Body})
	case "view":
		view := sess.View()
		return ws.send(ctx, ServerFrame{Type: "snapshot", Session: &view})
	default:
		return errors.New("unknown message type")
	}
	return nil
}
