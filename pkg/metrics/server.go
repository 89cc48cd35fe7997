package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/marmos91/dittoreg/internal/httpserver"
	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures the metrics HTTP endpoint.
type ServerConfig struct {
	// Port to listen on. Default: 9090.
	Port int
}

func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 9090
	}
}

// Server exposes a Prometheus gatherer at /metrics.
type Server struct {
	http *httpserver.Server
	port int
}

// NewServer creates a stopped metrics server serving gatherer. When gatherer
// is nil the process registry is used; if metrics are disabled /metrics
// answers 503.
func NewServer(config ServerConfig, gatherer prometheus.Gatherer) *Server {
	config.applyDefaults()

	if gatherer == nil && IsEnabled() {
		gatherer = GetRegistry()
	}

	return &Server{
		http: httpserver.New("metrics", fmt.Sprintf(":%d", config.Port), newMux(gatherer)),
		port: config.Port,
	}
}

func newMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
		logger.Debug("Metrics endpoint registered at /metrics")
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "Metrics collection is disabled\n")
		})
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "dittoreg metrics: scrape /metrics\n")
	})

	return mux
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
