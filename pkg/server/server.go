package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/admin"
	"github.com/marmos91/dittoreg/pkg/config"
	"github.com/marmos91/dittoreg/pkg/metrics"
	promMetrics "github.com/marmos91/dittoreg/pkg/metrics/prometheus"
	"github.com/marmos91/dittoreg/pkg/registry"
	"github.com/marmos91/dittoreg/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyServing is returned when Serve is called more than once.
var ErrAlreadyServing = errors.New("server: Serve already called")

// RegServer runs the live-state registries together with their HTTP
// endpoints.
//
// Architecture:
// RegServer owns a stats.Collector (the export and client registries) and
// exposes it through the admin API and, when enabled, a Prometheus endpoint.
// A background loop logs a registry summary at the configured interval.
//
// Lifecycle:
//  1. Creation: New() builds the collector and seeds configured exports
//  2. Startup: Serve() starts the endpoints and the summary loop
//  3. Shutdown: context cancellation stops everything within ShutdownTimeout
//
// Example usage:
//
//	srv, err := server.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
type RegServer struct {
	cfg       *config.Config
	clock     clock.Clock
	collector *stats.Collector

	// nil when the endpoint is disabled
	metrics *metrics.Server
	admin   *admin.Server

	served atomic.Bool
}

// Option configures a RegServer.
type Option func(*options)

type options struct {
	clock    clock.Clock
	registry *prometheus.Registry
}

// WithClock replaces the wall clock used by the collector and the summary
// loop.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithRegistry registers metrics on reg instead of the process registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New builds a server from cfg. cfg must already be validated.
//
// Every configured export is seeded into the export registry, so exports
// are listed by the admin API before any request touched them.
func New(cfg *config.Config, opts ...Option) (*RegServer, error) {
	if cfg == nil {
		panic("config cannot be nil")
	}

	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	rl, err := cfg.Clients.RateLimitOptions()
	if err != nil {
		return nil, err
	}

	statsCfg := stats.Config{
		RateLimit: stats.RateLimitConfig{
			Enabled: rl.Enabled,
			Limit:   rl.Limit(),
			Burst:   rl.Burst,
		},
		Clock: o.clock,
	}

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = o.registry
		if reg == nil {
			metrics.InitRegistry()
			reg = metrics.GetRegistry()
		}
		// One instance for both registries; the registry label tells them apart.
		live := promMetrics.NewRegistryMetrics(reg)
		statsCfg.ExportMetrics = live
		statsCfg.ClientMetrics = live
	}

	s := &RegServer{
		cfg:       cfg,
		clock:     o.clock,
		collector: stats.NewCollector(statsCfg),
	}

	if reg != nil {
		if err := reg.Register(promMetrics.NewStatsCollector(s.collector)); err != nil {
			return nil, fmt.Errorf("failed to register stats collector: %w", err)
		}
		s.metrics = metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}, reg)
	}
	if cfg.Admin.Enabled {
		s.admin = admin.NewServer(admin.ServerConfig{Port: cfg.Admin.Port}, s.collector)
	}

	for _, exp := range cfg.Exports {
		if err := s.collector.SeedExport(registry.ExportID(exp.ID), exp.Path); err != nil {
			return nil, fmt.Errorf("failed to seed export %d (%s): %w", exp.ID, exp.Path, err)
		}
		logger.Info("Export registered: %s (id %d)", exp.Path, exp.ID)
	}

	if rl.Enabled {
		logger.Info("Client rate limit: %g req/s, burst %d", float64(rl.Limit()), rl.Burst)
	}

	return s, nil
}

// Collector returns the server's stats collector.
func (s *RegServer) Collector() *stats.Collector {
	return s.collector
}

// MetricsServer returns the metrics endpoint, or nil when disabled.
func (s *RegServer) MetricsServer() *metrics.Server {
	return s.metrics
}

// AdminServer returns the admin endpoint, or nil when disabled.
func (s *RegServer) AdminServer() *admin.Server {
	return s.admin
}

// Serve starts the endpoints and the summary loop and blocks until ctx is
// cancelled or an endpoint fails.
//
// Returns nil after a graceful shutdown triggered by ctx. An endpoint
// failure or a shutdown that overran ShutdownTimeout is returned as an
// error; when both happen they are combined.
func (s *RegServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.metrics != nil {
		g.Go(func() error { return s.metrics.Start(gctx) })
	}
	if s.admin != nil {
		g.Go(func() error { return s.admin.Start(gctx) })
	}
	g.Go(func() error {
		s.logSummaries(gctx)
		return nil
	})

	logger.Info("dittoreg started with %d export(s)", s.collector.Exports().Len())

	<-gctx.Done()
	if ctx.Err() != nil {
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	}

	err := multierr.Combine(s.shutdown(), g.Wait())

	s.logSummary()
	logger.Info("dittoreg stopped")
	return err
}

// shutdown stops the endpoints within the configured timeout.
func (s *RegServer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if s.admin != nil {
		err = multierr.Append(err, s.admin.Stop(ctx))
	}
	if s.metrics != nil {
		err = multierr.Append(err, s.metrics.Stop(ctx))
	}
	return err
}

func (s *RegServer) logSummaries(ctx context.Context) {
	ticker := s.clock.Ticker(s.cfg.Server.StatsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logSummary()
		}
	}
}

func (s *RegServer) logSummary() {
	sum := s.collector.Summary()
	logger.Info("Registry summary: uptime=%v exports=%d clients=%d reads=%d (%d bytes) writes=%d (%d bytes) reclaimed_clients=%d reclaimed_exports=%d",
		s.collector.Uptime().Truncate(time.Second), sum.Exports, sum.Clients,
		sum.ReadOps, sum.BytesRead, sum.WriteOps, sum.BytesWritten,
		sum.ReclaimedClients, sum.ReclaimedExports)
}
