package fanout

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Client is one websocket connection with its subscribed scopes. The
// send channel is never closed; removal closes done instead, so a push
// racing a disconnect can never hit a closed channel.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	scopes map[string]struct{}
	remote string
}

func newClient(conn *websocket.Conn, scopes []string) *Client {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		scopes: set,
		remote: conn.RemoteAddr().String(),
	}
}

func (c *Client) inScope(scope string) bool {
	_, ok := c.scopes[scope]
	return ok
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings.
func (c *Client) writePump(hub *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				hub.remove(c)
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				hub.remove(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; the fan-out channel is push-only.
// It exists to detect closed connections and process pongs.
func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
