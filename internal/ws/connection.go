package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ezeslucky/drawio/internal/session"
)

const closeWriteTimeout = 5 * time.Second

// wsConn is what the server needs from a live connection: serialized
// writes plus the ability to shut it down with a close code.
type wsConn interface {
	session.Conn
	CloseWithCode(code int, reason string) error
}

// safeConn serializes writes to a websocket connection. Broadcasts
// originate from other users' read loops, so writes race without it.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newSafeConn(ws *websocket.Conn) *safeConn {
	return &safeConn{ws: ws}
}

func (c *safeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) Close() error {
	return c.ws.Close()
}

// CloseWithCode sends a close control frame before dropping the
// transport, so the peer sees the code (1008 unauthenticated, 1000
// normal closure).
func (c *safeConn) CloseWithCode(code int, reason string) error {
	c.mu.Lock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	c.mu.Unlock()
	return c.ws.Close()
}
