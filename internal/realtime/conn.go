package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"converse/internal/metrics"
)

// Identity is the resolved user behind a connection. Immutable for the
// connection's lifetime.
type Identity struct {
	ID   string
	Name string
}

// IdentityResolver maps a handshake token to a user identity. Called
// exactly once per connection attempt.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (Identity, error)
}

// Conn is one live websocket connection. Writes go through a bounded
// outbound queue drained by a single write pump, so any goroutine may
// enqueue without holding locks across I/O.
type Conn struct {
	user Identity

	ws  *websocket.Conn
	out chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(user Identity, ws *websocket.Conn, queueLen int) *Conn {
	if queueLen <= 0 {
		queueLen = 256
	}
	return &Conn{
		user: user,
		ws:   ws,
		out:  make(chan []byte, queueLen),
		done: make(chan struct{}),
	}
}

func (c *Conn) User() Identity { return c.user }

// enqueue offers a frame to the outbound queue. A full queue means the
// client is not keeping up; the frame is dropped and counted rather
// than blocking the caller.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		metrics.FramesDropped.Inc()
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the outbound queue onto the socket. It owns all
// writes to the underlying websocket.
func (c *Conn) writePump(writeTimeout time.Duration) {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
