package ws

import (
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/tavarakyyti/chat/internal/identity"
)

// SendQueueSize is the number of outbound frames a connection buffers before
// Send starts dropping.
const SendQueueSize = 256

var (
	errSendQueueFull = errors.New("ws: send queue full")
	errConnClosed    = errors.New("ws: connection closed")
)

// Connection represents a single authenticated WebSocket client connection
// with a write mutex for serializing outbound frames and a queue drained by
// its own writer goroutine.
type Connection struct {
	ID        string            // connection ID (UUID)
	Conn      net.Conn          // underlying TCP connection
	User      identity.Identity // identity verified at handshake
	CreatedAt time.Time         // when the connection was established

	writeTimeout time.Duration
	lastSeen     atomic.Int64 // unix nanos of the last frame received
	writeMu      sync.Mutex   // serializes writes to this connection
	out          chan []byte
	done         chan struct{}
	closeOnce    sync.Once
}

func newConnection(id string, conn net.Conn, user identity.Identity, writeTimeout time.Duration) *Connection {
	c := &Connection{
		ID:           id,
		Conn:         conn,
		User:         user,
		CreatedAt:    time.Now(),
		writeTimeout: writeTimeout,
		out:          make(chan []byte, SendQueueSize),
		done:         make(chan struct{}),
	}
	c.Touch()
	return c
}

// ConnID returns the connection ID.
func (c *Connection) ConnID() string { return c.ID }

// Identity returns the user bound to the connection.
func (c *Connection) Identity() identity.Identity { return c.User }

// Touch records activity on the connection.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns when the connection last showed activity.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	defer c.Conn.SetWriteDeadline(time.Time{})
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Send queues a text frame for the writer goroutine. It never blocks: a full
// queue drops the frame and returns an error.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// writeLoop drains the send queue until the connection closes. A failed
// write closes the socket, which ends the read loop and removes the
// connection.
func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			if err := c.WriteMessage(data); err != nil {
				log.Printf("ws: write failed id=%s: %v", c.ID, err)
				_ = c.Conn.Close()
				return
			}
		}
	}
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	return c.writeFrame(ws.NewPingFrame(nil))
}

// writeFrame writes a single frame under the write mutex.
func (c *Connection) writeFrame(f ws.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.setWriteDeadline()
	defer c.Conn.SetWriteDeadline(time.Time{})
	return ws.WriteFrame(c.Conn, f)
}

func (c *Connection) setWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}

// Close stops the writer and closes the underlying network connection.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry of live connections keyed by
// connection ID.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID and closes it. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
