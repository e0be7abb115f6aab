package handler

import (
	"context"
	"net/http"
	"slices"
	"time"

	"playmatch/rooms/internal/apperror"
	"playmatch/rooms/internal/auth"
	"playmatch/rooms/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChatIdentityResolver resolves the room a user chats in and the nickname shown there.
type ChatIdentityResolver interface {
	ChatIdentity(ctx context.Context, userID uint) (roomID uint, nickname string, err error)
}

type ChatConfig struct {
	ReadLimit      int64
	SendBuffer     int
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// ChatHandler runs one chat session per websocket: it registers the socket in
// the user's room, relays every text frame to the rest of the room and
// announces arrivals and departures.
type ChatHandler struct {
	rooms    ChatIdentityResolver
	hub      *hub.Hub
	cfg      ChatConfig
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewChatHandler(rooms ChatIdentityResolver, h *hub.Hub, cfg ChatConfig, log zerolog.Logger) *ChatHandler {
	handler := &ChatHandler{
		rooms: rooms,
		hub:   h,
		cfg:   cfg,
		log:   log.With().Str("module", "chat").Logger(),
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

func (h *ChatHandler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// Serve upgrades the request to a websocket bound to the caller's current room.
// Sessions that cannot be placed in a room are closed with a policy violation
// whose reason is the error message.
func (h *ChatHandler) Serve(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	userID, ok := auth.UserID(c)
	if !ok {
		h.reject(ws, "unauthorized")
		return
	}
	roomID, nickname, err := h.rooms.ChatIdentity(c.Request.Context(), userID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			h.log.Error().Err(err).Uint("user", userID).Msg("resolve chat identity")
		}
		h.reject(ws, apperror.MessageOf(err))
		return
	}

	conn := hub.NewConn(userID, nickname, h.cfg.SendBuffer, ws)
	ws.SetReadLimit(h.cfg.ReadLimit)

	h.hub.Register(conn, roomID)
	// Evictions committed before Register found no socket to close, so the
	// membership is read again once the socket is reachable.
	if reason, ok := h.stillIn(c.Request.Context(), userID, roomID); !ok {
		h.hub.Deregister(conn, roomID)
		h.reject(ws, reason)
		conn.Close()
		h.log.Info().Uint("room", roomID).Uint("user", userID).Msg("chat session dropped, membership changed")
		return
	}

	written := make(chan struct{})
	go func() {
		defer close(written)
		h.writePump(ws, conn)
	}()

	h.hub.Broadcast(roomID, nickname+" joined the room", conn)
	h.log.Info().Uint("room", roomID).Uint("user", userID).Str("conn", conn.ID).Msg("chat session started")

	h.readLoop(ws, conn, roomID)

	h.hub.Deregister(conn, roomID)
	h.hub.Broadcast(roomID, nickname+" left the room", conn)
	conn.Close()
	<-written
	h.log.Info().Uint("room", roomID).Uint("user", userID).Str("conn", conn.ID).Msg("chat session ended")
}

// stillIn reports whether the user is still a member of roomID. When not, it
// returns the close reason.
func (h *ChatHandler) stillIn(ctx context.Context, userID, roomID uint) (string, bool) {
	current, _, err := h.rooms.ChatIdentity(ctx, userID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			h.log.Error().Err(err).Uint("user", userID).Msg("resolve chat identity")
		}
		return apperror.MessageOf(err), false
	}
	if current != roomID {
		return "Room membership changed", false
	}
	return "", true
}

// readLoop relays text frames until the transport closes.
func (h *ChatHandler) readLoop(ws *websocket.Conn, conn *hub.Conn, roomID uint) {
	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if !conn.Closed() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.Debug().Err(err).Str("conn", conn.ID).Msg("read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.hub.Broadcast(roomID, conn.Nickname+": "+string(data), conn)
	}
}

// writePump is the only writer of ws once the session is registered.
func (h *ChatHandler) writePump(ws *websocket.Conn, conn *hub.Conn) {
	for msg := range conn.Outbound() {
		_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug().Err(err).Str("conn", conn.ID).Msg("write failed")
			conn.Close()
			return
		}
	}
}

// reject closes a session that cannot join any room with a policy violation.
func (h *ChatHandler) reject(ws *websocket.Conn, reason string) {
	// Control frame payloads are limited to 125 bytes, two of which hold the code.
	if len(reason) > 123 {
		reason = reason[:123]
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout))
	_ = ws.Close()
}
