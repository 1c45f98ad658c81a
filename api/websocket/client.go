package websocket

import (
	"time"

	"github.com/gorilla/websocket"

	"cosmossdk.io/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send buffer
	sendBufferSize = 256
)

// Client is one team's WebSocket connection. The socket is outbound-only
// from the server's point of view; the read pump exists to service pongs
// and detect closure.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	teamID   string
	teamName string

	// seq is owned by the hub send path under the hub mutex. It resets
	// with every new connection.
	seq uint64

	send chan []byte

	connectedAt time.Time
	logger      log.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, teamID, teamName string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		teamID:      teamID,
		teamName:    teamName,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now(),
		logger:      hub.logger.With("team_id", teamID),
	}
}

// TeamID returns the owning team
func (c *Client) TeamID() string {
	return c.teamID
}

// ConnectionDuration returns how long this socket has been up
func (c *Client) ConnectionDuration() time.Duration {
	return time.Since(c.connectedAt)
}

// readPump discards inbound frames and keeps the read deadline fresh
func (c *Client) readPump() {
	defer func() {
		c.hub.dropIfCurrent(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

// writePump drains the send buffer to the socket and keeps the connection
// alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed this connection.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
