package realtime

import (
	"log"
	"sync"
	"time"

	"blogger/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBuffer = 16
)

// Client is a middleman between a view's websocket connection and its subscription.
type Client struct {
	View string

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound snapshots.
	Send chan []byte

	// UserID is empty for anonymous viewers.
	UserID string

	closeOnce sync.Once
}

// NewClient creates a new Client instance
func NewClient(view string, conn *websocket.Conn, userID string) *Client {
	return &Client{
		View:   view,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
	}
}

// ReadPump drains the connection until the peer goes away. Views are push-only,
// so inbound frames are discarded.
func (c *Client) ReadPump() {
	defer func() {
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { _ = c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ReadPump Error (%s view, user %q): %v", c.View, c.UserID, err)
			}
			return
		}
	}
}

// WritePump pumps snapshots to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. Each snapshot is complete, so
// when the buffer is full the oldest queued one is discarded.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues(c.View, "closed").Inc()
		}
	}()

	for {
		select {
		case c.Send <- message:
			return
		default:
		}

		select {
		case <-c.Send:
			observability.WebSocketBackpressureDrops.WithLabelValues(c.View, "full").Inc()
		default:
		}
	}
}

// Close closes the send channel, which makes WritePump send a close frame and exit.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}
