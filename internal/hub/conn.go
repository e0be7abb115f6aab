package hub

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrBackpressure = errors.New("backpressure")
)

// Conn is a live chat connection. Outbound messages are queued on a single FIFO
// channel drained by one writer, so a recipient sees messages in send order.
type Conn struct {
	ID       string
	UserID   uint
	Nickname string

	send   chan []byte
	closer io.Closer

	mu     sync.RWMutex
	closed bool
}

// NewConn creates a connection with an outbound queue of the given size.
// closer, if not nil, is closed together with the connection and should
// unblock whoever reads from the transport.
func NewConn(userID uint, nickname string, buffer int, closer io.Closer) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	return &Conn{
		ID:       uuid.NewString(),
		UserID:   userID,
		Nickname: nickname,
		send:     make(chan []byte, buffer),
		closer:   closer,
	}
}

// TrySend queues msg without blocking.
func (c *Conn) TrySend(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Outbound is drained by the connection's writer. It is closed by Close.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Close is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.closer != nil {
		_ = c.closer.Close()
	}
}

func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
