package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/metrics"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	return uuid.NewString()[:8]
}

// ServerConfig configures the side HTTP server
type ServerConfig struct {
	Name    string
	Version string
	// EnableMCP mounts the tool surface at /mcp
	EnableMCP bool
	// Ready returns nil when the engine is connected and has reported ready
	Ready func(ctx context.Context) error
	// Menu simulates a host context-menu click. Nil disables /host/menu.
	Menu func(ctx context.Context, x, y int) error
}

// Server serves /health, /ready, /metrics and optionally /mcp
type Server struct {
	cfg       ServerConfig
	registry  *Registry
	mcpServer *mcp_sdk.Server
	listener  net.Listener
}

// NewServer creates the side HTTP server over a tool registry
func NewServer(registry *Registry, cfg ServerConfig) *Server {
	if cfg.Name == "" {
		cfg.Name = "painter-bridge"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{cfg: cfg, registry: registry}
	if cfg.EnableMCP {
		s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil)
		registry.RegisterWithMCPServer(s.mcpServer)
	}
	return s
}

// GetRegistry returns the tool registry
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Handler builds the HTTP mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealthCheck)
	mux.HandleFunc("/ready", s.handleReadinessCheck)
	mux.Handle("/metrics", metrics.Handler())

	if s.cfg.Menu != nil {
		mux.Handle("/host/menu", metrics.Middleware(http.HandlerFunc(s.handleMenu)))
	}

	if s.mcpServer != nil {
		mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
			return s.mcpServer
		}, &mcp_sdk.StreamableHTTPOptions{
			EventStore: mcp_sdk.NewMemoryEventStore(nil),
		})
		mux.Handle("/mcp", metrics.Middleware(withRequestID(mcpHandler)))
		mux.Handle("/mcp/", metrics.Middleware(withRequestID(mcpHandler)))
	}

	return mux
}

// withRequestID tags the request with an id and logs it
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.Debug("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		next.ServeHTTP(w, r)
	})
}

// Listen binds addr. Port 0 picks a free port.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or "" before Listen
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve runs until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("side server is not listening")
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Side endpoints listening on http://%s (health, ready, metrics%s)", s.Addr(), s.mcpSuffix())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) mcpSuffix() string {
	if s.mcpServer == nil {
		return ""
	}
	return ", mcp"
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck reports whether the engine is connected and ready
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "reason": err.Error()})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

type menuRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// handleMenu simulates a context-menu click in the host
func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req menuRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := s.cfg.Menu(r.Context(), req.X, req.Y); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
