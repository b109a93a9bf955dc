package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection 包装 WebSocket 连接，实现 Peer
type Connection struct {
	UserID    int64
	ChannelID int64

	conn *websocket.Conn
	send chan []byte

	// mu 串行化对底层连接的写
	mu sync.Mutex

	lastHeartbeat time.Time
	heartbeatMu   sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex
}

func NewConnection(ctx context.Context, channelID, userID int64, conn *websocket.Conn, sendBuffer int) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	connCtx, cancel := context.WithCancel(ctx)
	return &Connection{
		UserID:        userID,
		ChannelID:     channelID,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		lastHeartbeat: time.Now(),
		ctx:           connCtx,
		cancel:        cancel,
	}
}

// Send 非阻塞入队
func (c *Connection) Send(data []byte) bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Connection) writeMessage(messageType int, data []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(messageType, data)
}

// Close 幂等
func (c *Connection) Close() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
}

func (c *Connection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *Connection) UpdateHeartbeat() {
	c.heartbeatMu.Lock()
	defer c.heartbeatMu.Unlock()
	c.lastHeartbeat = time.Now()
}

func (c *Connection) LastHeartbeat() time.Time {
	c.heartbeatMu.RLock()
	defer c.heartbeatMu.RUnlock()
	return c.lastHeartbeat
}

func (c *Connection) Context() context.Context {
	return c.ctx
}
