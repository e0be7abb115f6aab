package hub

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"
)

// Hub tracks the live connections present in each room and fans messages out to them.
// It holds no persisted state: a user's room is owned by the membership service,
// the hub only mirrors which sockets are open.
type Hub struct {
	rooms map[uint][]*Conn
	mu    sync.RWMutex
	log   zerolog.Logger
}

// New creates an empty Hub.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[uint][]*Conn),
		log:   log.With().Str("module", "hub").Logger(),
	}
}

// Register adds conn to a room. Registering the same conn twice is a no-op.
func (h *Hub) Register(conn *Conn, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if slices.Contains(h.rooms[roomID], conn) {
		return
	}
	h.rooms[roomID] = append(h.rooms[roomID], conn)
	h.log.Debug().Uint("room", roomID).Str("conn", conn.ID).Uint("user", conn.UserID).Msg("registered")
}

// Deregister removes conn from a room. It reports whether conn was registered,
// so racing termination paths can call it more than once.
func (h *Hub) Deregister(conn *Conn, roomID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.rooms[roomID]
	i := slices.Index(conns, conn)
	if i < 0 {
		return false
	}
	conns = slices.Delete(conns, i, i+1)
	if len(conns) == 0 {
		delete(h.rooms, roomID)
	} else {
		h.rooms[roomID] = conns
	}
	h.log.Debug().Uint("room", roomID).Str("conn", conn.ID).Msg("deregistered")
	return true
}

// Connections returns a snapshot of the room's connections in registration order.
func (h *Hub) Connections(roomID uint) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.rooms[roomID])
}

// Broadcast sends message to every connection in the room except exclude,
// returning how many recipients it was queued for. A failing recipient is
// logged and skipped; it never aborts delivery to the others.
func (h *Hub) Broadcast(roomID uint, message string, exclude *Conn) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	payload := []byte(message)
	sent := 0
	for _, conn := range h.rooms[roomID] {
		if conn == exclude {
			continue
		}
		if err := conn.TrySend(payload); err != nil {
			h.log.Warn().Err(err).Uint("room", roomID).Str("conn", conn.ID).Msg("broadcast delivery failed")
			continue
		}
		sent++
	}
	return sent
}

// SendDirect sends message to a single connection.
func (h *Hub) SendDirect(conn *Conn, message string) error {
	return conn.TrySend([]byte(message))
}

// EvictUser closes the user's connections in a room. The sessions notice the
// closed transport and run their normal leave path.
func (h *Hub) EvictUser(roomID, userID uint) {
	for _, conn := range h.Connections(roomID) {
		if conn.UserID == userID {
			h.log.Info().Uint("room", roomID).Uint("user", userID).Msg("evicting connection")
			conn.Close()
		}
	}
}

// CloseRoom closes every connection in a room that no longer exists.
func (h *Hub) CloseRoom(roomID uint) {
	conns := h.Connections(roomID)
	if len(conns) > 0 {
		h.log.Info().Uint("room", roomID).Int("connections", len(conns)).Msg("closing room")
	}
	for _, conn := range conns {
		conn.Close()
	}
}

// Shutdown closes all connections. Used when the process stops.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[uint][]*Conn)
	h.mu.Unlock()

	for _, conns := range rooms {
		for _, conn := range conns {
			conn.Close()
		}
	}
}
