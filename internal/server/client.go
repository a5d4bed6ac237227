package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// Client is one live WebSocket connection. It owns the read and write pumps
// and forwards every inbound frame to the hub; all protocol handling happens
// on the hub's event loop.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string
	log  *slog.Logger

	// closed is guarded by the hub's connection mutex.
	closed bool

	limiter *rateLimiter
}

// NewClient wraps a WebSocket connection with a fresh connection id. The send
// channel is buffered so broadcasts never block on a single slow client.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		hub:     hub,
		addr:    addr,
		log:     hub.log.With("connection", id, "addr", addr),
		limiter: newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill),
	}
}

// ID returns the connection identifier assigned for this client's lifetime.
func (c *Client) ID() string {
	return c.id
}

// SendChan exposes the outbound queue for reading; used by tests to observe
// delivered frames.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

func (c *Client) readPump() {
	defer func() {
		// The hub may already have stopped; never block on its channels.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("error closing connection in read pump", "error", err)
		}
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded, discarding frame")
			continue
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, data: raw}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info("connection closed", "error", err)
	default:
		c.log.Warn("websocket read error", "error", err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Error("error closing connection in write pump", "error", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrames(message) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrames writes the message and drains anything already queued behind
// it, one WebSocket frame each.
func (c *Client) writeFrames(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error("error writing frame", "error", err)
		}
		return false
	}

	for range len(c.send) {
		if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Error("error writing queued frame", "error", err)
			}
			return false
		}
	}
	return true
}

// isExpectedCloseError reports whether an error is part of a normal
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
