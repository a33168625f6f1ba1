package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/waitline/waitline/bus"
)

// WebSocket timeout constants following Gorilla best practices
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outbound event buffer per viewer
	clientSendBuffer = 64
)

// Client is one connected websocket viewer. Viewers are read-mostly:
// they receive every bus event and filter client-side by queue_id.
type Client struct {
	id        string
	server    *Server
	conn      *websocket.Conn
	send      chan bus.Envelope
	closeOnce sync.Once
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan bus.Envelope, clientSendBuffer),
	}
}

// readPump drains the connection. Viewers send nothing meaningful;
// reading is still required to process pongs and detect closure.
func (c *Client) readPump() {
	defer c.deregister()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				if c.server.logger != nil {
					c.server.logger.Debugw("Viewer read error",
						"client_id", c.id,
						"error", err.Error(),
					)
				}
			}
			return
		}
	}
}

// writePump pushes events and pings to the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case envelope, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(envelope); err != nil {
				if c.server.logger != nil {
					c.server.logger.Debugw("Viewer write error",
						"client_id", c.id,
						"error", err.Error(),
					)
				}
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

// deregister hands the viewer back to the hub. During shutdown the hub
// loop is gone, so the send must not block past context cancellation.
func (c *Client) deregister() {
	select {
	case c.server.unregister <- c:
	case <-c.server.ctx.Done():
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
