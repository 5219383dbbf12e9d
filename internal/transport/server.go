package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	// Addr to listen on (default: ":8787")
	Addr string

	// Path of the sync endpoint (default: "/sync")
	Path string

	// Metrics, when set, is served on /metrics
	Metrics http.Handler

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr: ":8787",
		Path: "/sync",
	}
}

// Server is the primary's side of the link. It accepts a single companion;
// a new connection replaces the previous one.
type Server struct {
	cfg      ServerConfig
	listener net.Listener
	server   *http.Server

	mu      sync.RWMutex
	handler Handler
	peer    *peerConn

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

var _ Session = (*Server)(nil)

// NewServer creates a sync server. Call SetHandler, then Start.
func NewServer(cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	c := *cfg
	if c.Addr == "" {
		c.Addr = DefaultServerConfig().Addr
	}
	if c.Path == "" {
		c.Path = DefaultServerConfig().Path
	}
	if c.Logger == nil {
		c.Logger = log.New(os.Stderr, "[transport] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    c,
		ctx:    ctx,
		cancel: cancel,
		logger: c.Logger,
	}
}

// SetHandler implements Session.
func (s *Server) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Server) currentHandler() Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleSync)
	mux.HandleFunc("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}

	// No read/write timeouts: they would apply to hijacked WebSocket conns.
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s%s", ln.Addr(), s.cfg.Path)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping sync server")

	s.cancel()

	s.mu.Lock()
	peer := s.peer
	s.peer = nil
	s.mu.Unlock()
	if peer != nil {
		peer.close(websocket.StatusGoingAway, "server shutting down")
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Sync server stopped")
	return nil
}

// Addr returns the listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Reachable implements Session.
func (s *Server) Reachable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peer != nil
}

// Send implements Session.
func (s *Server) Send(ctx context.Context, msg *Message) (*Message, error) {
	s.mu.RLock()
	peer := s.peer
	s.mu.RUnlock()

	if peer == nil {
		return nil, ErrUnreachable
	}
	return peer.send(ctx, msg)
}

// handleSync upgrades the companion's connection and serves it until it
// drops.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	peer := newPeerConn(conn, s.currentHandler, s.logger)

	s.mu.Lock()
	previous := s.peer
	s.peer = peer
	s.mu.Unlock()

	if previous != nil {
		s.logger.Println("Companion reconnected, replacing previous session")
		previous.close(websocket.StatusPolicyViolation, "replaced by newer session")
	}

	s.logger.Printf("Companion connected from %s", r.RemoteAddr)
	if h := s.currentHandler(); h != nil {
		h.SessionActivated()
		h.ReachabilityChanged(true)
	}

	err = peer.readLoop(s.ctx)

	s.mu.Lock()
	current := s.peer == peer
	if current {
		s.peer = nil
	}
	s.mu.Unlock()

	if !current {
		return
	}
	s.logger.Printf("Companion disconnected: %v", err)
	if h := s.currentHandler(); h != nil {
		h.ReachabilityChanged(false)
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"reachable": s.Reachable(),
	})
}
