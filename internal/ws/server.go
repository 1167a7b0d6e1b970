// Package ws handles WebSocket connection management: authenticating and
// upgrading HTTP requests, maintaining active client connections, and
// dispatching incoming frames to the appropriate handlers.
package ws

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/tavarakyyti/chat/internal/identity"
	"github.com/tavarakyyti/chat/internal/metrics"
)

var errFrameTooLarge = errors.New("ws: message exceeds size limit")

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	MaxConnections  int             // hard cap on total connections
	MaxMessageBytes int64           // largest accepted client message
	ReadTimeout     time.Duration   // timeout for reading the rest of a frame once its header arrived
	WriteTimeout    time.Duration   // timeout for WebSocket write operations
	Heartbeat       HeartbeatConfig // server ping cadence and idle timeout
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxConnections:  100000,
		MaxMessageBytes: 64 << 10,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		Heartbeat:       DefaultHeartbeatConfig(),
	}
}

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

// Server upgrades authenticated HTTP requests to WebSocket connections and
// runs one read loop per connection. It implements http.Handler so it can be
// mounted on any router.
type Server struct {
	config       ServerConfig
	conns        *ConnectionManager
	verifier     TokenVerifier
	onMessage    func(conn *Connection, data []byte) // message handler callback
	onDisconnect func(connID string)                 // called when a connection is removed
	done         chan struct{}
	closeOnce    sync.Once
	startedAt    time.Time // server start time for uptime calculation
}

// NewServer creates a Server with the given configuration, token verifier and
// message callback. The onMessage function is called from the connection's
// read goroutine for every complete text or binary message.
func NewServer(config ServerConfig, verifier TokenVerifier, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		verifier:  verifier,
		onMessage: onMessage,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
}

// Start launches the heartbeat monitor. It returns immediately.
func (s *Server) Start() {
	StartHeartbeat(s, s.config.Heartbeat)
	log.Printf("ws: accepting connections (max_conns=%d)", s.config.MaxConnections)
}

// ServeHTTP authenticates the request and upgrades it to a WebSocket
// connection. Requests without a valid token are rejected with 401 before
// the upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	// Enforce maximum connection limit.
	if s.config.MaxConnections > 0 && s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	user, err := s.verifier.Verify(identity.TokenFromRequest(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := newConnection(uuid.New().String(), conn, user, s.config.WriteTimeout)
	s.conns.Add(c)
	metrics.ConnectionsTotal.Inc()
	log.Printf("ws: new connection id=%s user=%s (total=%d)", c.ID, user.UserID, s.conns.Count())

	// Frames the client sent right behind the handshake may already sit in
	// the hijacked buffer.
	var src io.Reader = conn
	if rw != nil && rw.Reader.Buffered() > 0 {
		src = io.MultiReader(io.LimitReader(rw.Reader, int64(rw.Reader.Buffered())), conn)
	}
	go c.writeLoop()
	go s.readLoop(c, src)
}

// readLoop reads messages until the connection fails or closes. Control
// frames are answered inline, including those interleaved with fragments.
func (s *Server) readLoop(c *Connection, src io.Reader) {
	defer s.RemoveConnection(c)

	onControl := func(hdr ws.Header, r io.Reader) error {
		return s.handleControl(c, hdr, r)
	}
	rd := &wsutil.Reader{
		Source:         src,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: onControl,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}
		c.Touch()

		if hdr.OpCode.IsControl() {
			if err := onControl(hdr, rd); err != nil {
				return
			}
			continue
		}
		if hdr.OpCode != ws.OpText && hdr.OpCode != ws.OpBinary {
			if err := rd.Discard(); err != nil {
				return
			}
			continue
		}

		data, err := s.readMessage(c, rd)
		if err != nil {
			if errors.Is(err, errFrameTooLarge) {
				log.Printf("ws: message too large id=%s", c.ID)
				_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusMessageTooBig, "")))
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

func (s *Server) readMessage(c *Connection, rd *wsutil.Reader) ([]byte, error) {
	if s.config.ReadTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		defer c.Conn.SetReadDeadline(time.Time{})
	}
	limit := s.config.MaxMessageBytes
	if limit <= 0 {
		return io.ReadAll(rd)
	}
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errFrameTooLarge
	}
	return data, nil
}

// handleControl answers ping with pong and close with close. A non-nil error
// ends the read loop.
func (s *Server) handleControl(c *Connection, hdr ws.Header, r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	switch hdr.OpCode {
	case ws.OpPing:
		return c.writeFrame(ws.NewPongFrame(payload))
	case ws.OpClose:
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		return io.EOF
	}
	return nil
}

// HandleHealth responds with the server's health status as JSON, including
// the current connection count and uptime.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// SetOnDisconnect registers a callback invoked once when a connection is
// removed (due to read error, heartbeat timeout, or graceful close).
func (s *Server) SetOnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// RemoveConnection unregisters and closes a connection. It is safe to call
// more than once; only the first call notifies the disconnect callback.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}

	log.Printf("ws: connection closed id=%s user=%s (total=%d)", c.ID, c.User.UserID, s.conns.Count())
}

// Connections returns the ConnectionManager for external access to
// connection state.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the heartbeat, refuses new upgrades and closes every active
// connection. The HTTP listener is owned by the caller.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down...")
	s.closeOnce.Do(func() { close(s.done) })

	for _, c := range s.conns.All() {
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusGoingAway, "")))
		s.RemoveConnection(c)
	}

	log.Printf("ws: all connections closed")
	return nil
}
