package handler

import (
	"net/http"
	"strings"
	"time"

	"estate-assistant/internal/config"
	"estate-assistant/internal/metrics"
	"estate-assistant/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Socket message types
const (
	MessageTranscript = "transcript"
	MessageResponse   = "response"
	MessageError      = "error"
	MessagePing       = "ping"
	MessagePong       = "pong"
)

// SocketHandler serves the conversation websocket. Each connection belongs to
// one user and handles one message at a time.
type SocketHandler struct {
	conversations Conversations
	cfg           config.WebSocketConfig
	upgrader      websocket.Upgrader
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

// NewSocketHandler creates a websocket handler
func NewSocketHandler(conversations Conversations, cfg config.WebSocketConfig, m *metrics.Metrics, log zerolog.Logger) *SocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if cfg.AllowAllOrigins {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &SocketHandler{
		conversations: conversations,
		cfg:           cfg,
		upgrader:      upgrader,
		metrics:       m,
		log:           log,
	}
}

// Serve handles GET /api/v1/conversations/ws?user_id=
func (h *SocketHandler) Serve(c *gin.Context) {
	userID, ok := validUserID(c.Query("user_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to upgrade websocket")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("user_id", userID).Str("conn_id", uuid.NewString()).Logger()
	h.metrics.SocketOpened()
	defer h.metrics.SocketClosed()
	log.Info().Msg("websocket connected")

	if h.cfg.ReadLimit > 0 {
		conn.SetReadLimit(h.cfg.ReadLimit)
	}
	limiter := rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSec), h.cfg.MessageBurst)

	if h.cfg.PongWait > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}
	stopPings := h.keepAlive(conn)
	defer stopPings()

	for {
		if h.cfg.PongWait > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
				return
			}
		}

		var msg model.SocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket closed unexpectedly")
			} else {
				log.Info().Msg("websocket disconnected")
			}
			return
		}

		if !limiter.Allow() {
			if err := h.write(conn, model.SocketMessage{Type: MessageError, Error: "rate limit exceeded"}); err != nil {
				return
			}
			continue
		}

		var out model.SocketMessage
		switch msg.Type {
		case MessagePing:
			out = model.SocketMessage{Type: MessagePong}
		case MessageTranscript:
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				out = model.SocketMessage{Type: MessageError, Error: "empty transcript"}
				break
			}
			reply := h.conversations.ProcessQuery(c.Request.Context(), userID, text)
			out = model.SocketMessage{
				Type:       MessageResponse,
				Text:       reply.Text,
				Properties: reply.Properties,
				Filters:    &reply.Filters,
				IsFollowup: reply.IsFollowup,
			}
		default:
			out = model.SocketMessage{Type: MessageError, Error: "unknown message type: " + msg.Type}
		}

		if err := h.write(conn, out); err != nil {
			log.Warn().Err(err).Msg("failed to write websocket message")
			return
		}
	}
}

// keepAlive sends control pings every PingInterval until the returned func
// is called. WriteControl may run alongside the read loop's writes.
func (h *SocketHandler) keepAlive(conn *websocket.Conn) func() {
	if h.cfg.PingInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	ticker := time.NewTicker(h.cfg.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if h.cfg.WriteTimeout <= 0 {
					deadline = time.Now().Add(h.cfg.PingInterval)
				}
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func (h *SocketHandler) write(conn *websocket.Conn, msg model.SocketMessage) error {
	if h.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return conn.WriteJSON(msg)
}
