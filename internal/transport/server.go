// Package transport owns the engine-facing WebSocket listener.
//
// The listener is single-tenant: while one engine connection is live every
// further upgrade is refused with 409 Conflict. Losing the connection clears
// the current reference, which re-enables acceptance.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/metrics"
)

const (
	// DefaultReadLimit bounds a single inbound frame
	DefaultReadLimit = 16 << 20
	// DefaultWriteTimeout bounds a single outbound frame
	DefaultWriteTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned by SendRaw when no engine is connected
	ErrNotConnected = errors.New("no engine connected")
	// ErrNotListening is returned by Serve before Listen
	ErrNotListening = errors.New("transport is not listening")
)

// ConnectionInfo describes the current or last engine connection
type ConnectionInfo struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time
	LastError   string
}

// Handlers are the transport callbacks. They run on transport goroutines;
// the bridge forwards them onto its loop.
type Handlers struct {
	OnMessage           func(info ConnectionInfo, data []byte)
	OnConnectionChanged func(connected bool, info ConnectionInfo)
}

// Options configures a Server
type Options struct {
	Handlers       Handlers
	ReadLimit      int64
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type connection struct {
	info ConnectionInfo
	ws   *websocket.Conn
}

// Server is the single-client WebSocket connection manager
type Server struct {
	opts Options

	listener   net.Listener
	httpServer *http.Server

	mu       sync.Mutex
	current  *connection
	reserved bool // an upgrade is in progress
	last     ConnectionInfo
}

// NewServer creates a transport server
func NewServer(opts Options) *Server {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Server{opts: opts}
}

// Listen binds the engine-facing port. Port 0 picks a free port.
func (s *Server) Listen(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	logger.Info("transport: listening for the engine on ws://%s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("transport: serve: %w", err)
	}
}

func (s *Server) shutdown() {
	s.mu.Lock()
	conn := s.current
	s.mu.Unlock()
	if conn != nil {
		_ = conn.ws.Close(websocket.StatusGoingAway, "bridge shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(ctx)
}

// IsConnected reports whether an engine connection is live
func (s *Server) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Current returns the live connection, if any
func (s *Server) Current() (ConnectionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ConnectionInfo{}, false
	}
	return s.current.info, true
}

// Last returns the most recent connection, live or not
func (s *Server) Last() ConnectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ServeHTTP upgrades one engine connection and reads from it until it closes
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !s.originAllowed(origin) {
		logger.Warn("transport: refusing connection from %s with origin %q", r.RemoteAddr, origin)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	if !s.reserve() {
		logger.Warn("transport: refusing connection from %s: engine already connected", r.RemoteAddr)
		metrics.RecordRefusedConnection()
		http.Error(w, "engine already connected", http.StatusConflict)
		return
	}

	// Origin was checked above.
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.release()
		logger.Error("transport: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	conn := &connection{
		info: ConnectionInfo{
			ID:          uuid.New().String(),
			RemoteAddr:  r.RemoteAddr,
			ConnectedAt: time.Now(),
		},
		ws: ws,
	}
	s.attach(conn)
	logger.Info("transport: engine connected from %s (connection %s)", conn.info.RemoteAddr, conn.info.ID)
	metrics.SetEngineConnected(true)
	if cb := s.opts.Handlers.OnConnectionChanged; cb != nil {
		cb(true, conn.info)
	}

	readErr := s.readLoop(r.Context(), conn)

	info := s.detach(conn, readErr)
	_ = ws.CloseNow()
	logger.Info("transport: engine disconnected (connection %s): %s", info.ID, describeClose(readErr))
	metrics.SetEngineConnected(false)
	if cb := s.opts.Handlers.OnConnectionChanged; cb != nil {
		cb(false, info)
	}
}

func (s *Server) readLoop(ctx context.Context, conn *connection) error {
	for {
		typ, data, err := conn.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			logger.Warn("transport: dropping %d byte binary frame from connection %s", len(data), conn.info.ID)
			metrics.RecordDrop("binary_frame")
			continue
		}
		if cb := s.opts.Handlers.OnMessage; cb != nil {
			cb(conn.info, data)
		}
	}
}

// SendRaw writes one text frame to the live connection
func (s *Server) SendRaw(ctx context.Context, data []byte) error {
	s.mu.Lock()
	conn := s.current
	s.mu.Unlock()

	if conn == nil {
		logger.Warn("transport: not connected, dropping %d byte frame", len(data))
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()

	if err := conn.ws.Write(ctx, websocket.MessageText, data); err != nil {
		logger.Warn("transport: write to connection %s failed: %v", conn.info.ID, err)
		s.recordError(conn, err)
		_ = conn.ws.CloseNow()
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// CloseCurrent closes the live connection, if any
func (s *Server) CloseCurrent(reason string) {
	s.mu.Lock()
	conn := s.current
	s.mu.Unlock()
	if conn != nil {
		_ = conn.ws.Close(websocket.StatusNormalClosure, reason)
	}
}

func (s *Server) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil || s.reserved {
		return false
	}
	s.reserved = true
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved = false
}

func (s *Server) attach(conn *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved = false
	s.current = conn
	s.last = conn.info
}

func (s *Server) detach(conn *connection, err error) ConnectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == conn {
		s.current = nil
	}
	if err != nil && conn.info.LastError == "" && !isNormalClose(err) {
		conn.info.LastError = err.Error()
	}
	s.last = conn.info
	return conn.info
}

func (s *Server) recordError(conn *connection, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.info.LastError = err.Error()
	s.last = conn.info
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

func describeClose(err error) string {
	if err == nil {
		return "closed"
	}
	if status := websocket.CloseStatus(err); status != -1 {
		return fmt.Sprintf("close status %d", status)
	}
	return err.Error()
}
