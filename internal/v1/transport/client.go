package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tossemideia/synctube/internal/v1/logging"
	"github.com/tossemideia/synctube/internal/v1/metrics"
	"github.com/tossemideia/synctube/internal/v1/room"
	"github.com/tossemideia/synctube/internal/v1/types"
)

const (
	// writeWait bounds a single frame write to a slow socket.
	writeWait = 10 * time.Second
	// maxFrameSize caps inbound frames; the largest legal client frame is
	// a full-length chat message plus envelope overhead.
	maxFrameSize = 64 * 1024
	// sendBufferSize is the per-client outbound queue. Overflow drops the
	// frame rather than blocking the room.
	sendBufferSize = 256
)

// wsConnection is the subset of *websocket.Conn the client uses; tests
// substitute a scripted fake.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client owns one websocket session: the connection, its outbound queue
// and the identity the join handshake established. It implements
// types.FrameSender, so the room can hand it frames without knowing
// about sockets.
type Client struct {
	conn   wsConnection
	hub    *Hub
	room   *room.Room
	userID types.UserID

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	send      chan []byte
}

func newClient(conn wsConnection, hub *Hub, r *room.Room) *Client {
	conn.SetReadLimit(maxFrameSize)
	return &Client{
		conn: conn,
		hub:  hub,
		room: r,
		send: make(chan []byte, sendBufferSize),
	}
}

// SendRaw queues pre-serialized bytes for delivery. Never blocks: a full
// queue drops the frame, trusting the next heartbeat to re-sync.
func (c *Client) SendRaw(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send on closing client",
				zap.String("user_id", string(c.userID)), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send buffer full, dropping frame",
			zap.String("user_id", string(c.userID)))
	}
}

// Close shuts the outbound queue; the writePump drains it, sends the
// close frame and closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump forwards inbound frames to the room dispatcher until the
// socket dies, then unwinds the session.
func (c *Client) readPump() {
	defer func() {
		c.room.HandleDisconnect(c.userID)
		c.Close()
		_ = c.conn.Close()
		c.hub.reapIfEmpty(c.room.ID)
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.room.Route(context.Background(), c.userID, data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.GetLogger().Debug("Write failed, dropping connection",
				zap.String("user_id", string(c.userID)), zap.Error(err))
			return
		}
	}
}
