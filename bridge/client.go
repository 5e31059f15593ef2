package bridge

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// client is one authenticated realtime socket. The read and write pumps
// terminate cooperatively: whichever exits first closes the connection,
// which unblocks the other.
type client struct {
	bridge *Bridge
	conn   *websocket.Conn
	userID int64
	send   chan []byte
}

func newClient(b *Bridge, conn *websocket.Conn, userID int64) *client {
	return &client{
		bridge: b,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

// push queues a payload without blocking. A socket that cannot keep up
// is closed rather than stalling the fan-out.
func (c *client) push(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.conn.Close()
	}
}

// readPump drains inbound frames so close and pong handling work. The
// protocol after the handshake is server-push only; inbound chat frames
// are ignored.
func (c *client) readPump() {
	defer func() {
		c.bridge.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
