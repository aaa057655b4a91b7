package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/forkbox/config"
)

const readHeaderTimeout = 10 * time.Second

// Server runs an http.Handler until stopped
type Server struct {
	logger *zap.Logger
	srv    *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a server listening on addr
func NewServer(logger *zap.Logger, addr string, handler http.Handler) *Server {
	return &Server{
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// NewServerFromConfig creates a server on server.http_port
func NewServerFromConfig(cfg *config.Config, logger *zap.Logger, handler http.Handler) *Server {
	return NewServer(logger, fmt.Sprintf(":%d", cfg.Server.HTTPPort), handler)
}

// Start binds the listener and serves in the background. Bind errors are
// returned so a busy port fails startup.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.srv.Shutdown(ctx)
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
