// Package httpserver runs a plain net/http server with context-driven
// lifecycle, shared by the metrics endpoint and the admin API.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittoreg/internal/logger"
)

// shutdownGrace bounds how long Start waits for in-flight requests after its
// context is cancelled.
const shutdownGrace = 5 * time.Second

// Server is an HTTP server that can be started once and stopped any number
// of times.
type Server struct {
	name   string
	server *http.Server

	mu       sync.Mutex
	listener net.Listener

	shutdownOnce sync.Once
}

// New creates a stopped server named name (used in logs) that will listen
// on addr (":9090", "127.0.0.1:0", ...).
func New(name, addr string, handler http.Handler) *Server {
	return &Server{
		name: name,
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start listens and serves until ctx is cancelled or serving fails.
//
// Returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("%s server: listen on %s: %w", s.name, s.server.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info("%s server listening on %s", s.name, ln.Addr())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", s.name, err)
	}
}

// Stop gracefully shuts the server down. Safe to call repeatedly and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("%s server shutdown: %w", s.name, err)
			logger.Error("%s server shutdown error: %v", s.name, err)
			return
		}
		logger.Info("%s server stopped", s.name)
	})
	return shutdownErr
}

// Addr returns the bound address once Start is listening, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
