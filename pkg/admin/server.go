package admin

import (
	"context"
	"fmt"
	"net"

	"github.com/marmos91/dittoreg/internal/httpserver"
	"github.com/marmos91/dittoreg/pkg/stats"
)

// ServerConfig configures the admin HTTP endpoint.
type ServerConfig struct {
	// Port to listen on. Default: 8080.
	Port int
}

// Server exposes the admin API.
type Server struct {
	http *httpserver.Server
	port int
}

// NewServer creates a stopped admin server for collector.
func NewServer(config ServerConfig, collector *stats.Collector) *Server {
	if config.Port <= 0 {
		config.Port = 8080
	}
	return &Server{
		http: httpserver.New("admin", fmt.Sprintf(":%d", config.Port), NewHandler(collector)),
		port: config.Port,
	}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.http.Start(ctx)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Stop(ctx)
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address once listening.
func (s *Server) Addr() net.Addr {
	return s.http.Addr()
}
