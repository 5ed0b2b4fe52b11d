package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn adapts a websocket connection to Sender. Writes are serialized because
// gorilla/websocket allows only one concurrent writer.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

// ClosePolicyViolation sends a 1008 close frame and closes the socket.
func (c *Conn) ClosePolicyViolation(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	return c.ws.Close()
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
