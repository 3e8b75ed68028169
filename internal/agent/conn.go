package agent

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the Connection Record: one live WebSocket handle plus a
// generation stamped at dial time, used to drop callbacks from a
// connection the state machine has already moved on from. Owned by the
// Agent and replaced (never mutated in place) on reconnect.
type Conn struct {
	ws         *websocket.Conn
	generation uint64
	id         uuid.UUID

	// resume is signalled by the loop goroutine to let the read pump
	// issue its next ReadMessage call. Buffered so the loop never
	// blocks handing off the signal.
	resume chan struct{}

	closeOnce sync.Once
}

// ID is a human-readable connection identity, used only in log lines;
// it carries no correctness weight.
func (c *Conn) ID() string { return c.id.String() }

// WriteReply sends data as a single text frame, the agent's reply to
// the request that is currently being handled. Safe to call either
// synchronously from a Handler or later from a closure passed to
// (*Agent).Post — both run exclusively on the loop goroutine, so
// writes are never concurrent with each other.
func (c *Conn) WriteReply(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func newConn(ws *websocket.Conn, generation uint64) *Conn {
	return &Conn{
		ws:         ws,
		generation: generation,
		id:         uuid.New(),
		resume:     make(chan struct{}, 1),
	}
}

func (c *Conn) allowNextRead() {
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
}
