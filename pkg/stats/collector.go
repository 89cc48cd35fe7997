// Package stats records per-export and per-client activity on top of the
// export and client registries.
//
// A Collector owns one registry of each kind. Requests open a RequestContext
// with Begin, which takes a reference on the caller's client record for the
// lifetime of the request; completion hooks (IODone, OpDone, CompoundDone)
// charge both the client and the export the request touched.
package stats

import (
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/internal/ratelimiter"
	"github.com/marmos91/dittoreg/pkg/metrics"
	"github.com/marmos91/dittoreg/pkg/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/marmos91/dittoreg/pkg/stats"

var (
	// ErrRateLimited is returned by Begin when the client exceeded its
	// request budget.
	ErrRateLimited = errors.New("stats: client rate limited")

	// ErrInvalidAddress is returned for a zero netip.Addr.
	ErrInvalidAddress = errors.New("stats: invalid client address")

	// ErrUnavailable is returned when a record could not be allocated.
	ErrUnavailable = errors.New("stats: record unavailable")
)

// RateLimitConfig configures the per-client throttle.
type RateLimitConfig struct {
	Enabled bool
	// Limit is the sustained rate in requests per second; may be fractional.
	Limit rate.Limit
	Burst uint
}

// Config configures a Collector. The zero value is usable: wall clock,
// global tracer provider, no metrics and no rate limiting.
type Config struct {
	RateLimit RateLimitConfig
	Clock     clock.Clock
	Tracer    trace.Tracer

	ExportMetrics metrics.RegistryMetrics
	ClientMetrics metrics.RegistryMetrics
}

// Collector owns the export and client registries and the bookkeeping
// around them.
//
// Thread safety:
// All methods are safe for concurrent use.
type Collector struct {
	exports *registry.ExportRegistry[*ExportStats]
	clients *registry.ClientRegistry[*ClientStats]

	clock     clock.Clock
	start     time.Time
	tracer    trace.Tracer
	rateLimit RateLimitConfig

	reclaimedClients atomic.Uint64
	reclaimedExports atomic.Uint64
}

// NewCollector creates a Collector with empty registries.
func NewCollector(cfg Config) *Collector {
	c := &Collector{
		clock:     cfg.Clock,
		tracer:    cfg.Tracer,
		rateLimit: cfg.RateLimit,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	c.start = c.clock.Now()

	c.exports = registry.NewExportRegistry(newExportStats,
		registry.WithReclaimer(c.reclaimExport),
		registry.WithMetrics[*ExportStats](cfg.ExportMetrics),
	)
	c.clients = registry.NewClientRegistry(newClientStats,
		registry.WithInitializer(c.initClient),
		registry.WithReclaimer(c.reclaimClient),
		registry.WithMetrics[*ClientStats](cfg.ClientMetrics),
	)
	return c
}

// initClient gives the canonical client record its limiter.
func (c *Collector) initClient(s *ClientStats) {
	if !c.rateLimit.Enabled {
		return
	}
	s.limiter = ratelimiter.New(c.rateLimit.Limit, c.rateLimit.Burst,
		ratelimiter.WithClock(c.clock))
}

func (c *Collector) reclaimClient(s *ClientStats) {
	c.reclaimedClients.Add(1)
	logger.Debug("stats: reclaimed client %s", s.Client.Addr())
}

func (c *Collector) reclaimExport(s *ExportStats) {
	c.reclaimedExports.Add(1)
	logger.Debug("stats: reclaimed export %d", s.Export.ID)
}

// Exports returns the export registry.
func (c *Collector) Exports() *registry.ExportRegistry[*ExportStats] {
	return c.exports
}

// Clients returns the client registry.
func (c *Collector) Clients() *registry.ClientRegistry[*ClientStats] {
	return c.clients
}

// Uptime returns the monotonic time elapsed since the collector started.
// Client LastUpdate values are expressed on this scale.
func (c *Collector) Uptime() time.Duration {
	return c.clock.Since(c.start)
}

// SeedExport makes sure an export record exists for id and records its
// path. The record stays indexed with no references held.
func (c *Collector) SeedExport(id registry.ExportID, path string) error {
	exp, ok := c.exports.GetOrCreate(id, false)
	if !ok {
		return fmt.Errorf("seed export %d: %w", id, ErrUnavailable)
	}
	defer c.exports.Release(exp)

	exp.Export.Lock()
	exp.Path = path
	exp.Export.Unlock()
	return nil
}

// AddClient makes sure a client record exists for addr and reports whether
// this call created it. Concurrent callers for a new address may both see
// created=true.
func (c *Collector) AddClient(addr netip.Addr) (created bool, err error) {
	if !addr.IsValid() {
		return false, ErrInvalidAddress
	}
	if cl, ok := c.clients.Lookup(addr); ok {
		c.clients.Release(cl)
		return false, nil
	}

	cl, ok := c.clients.GetOrCreate(addr, false)
	if !ok {
		return false, fmt.Errorf("add client %s: %w", addr, ErrUnavailable)
	}
	c.clients.Release(cl)
	return true, nil
}

// RemoveClient unlinks the client record for addr. In-flight requests keep
// their handle; the record is reclaimed when the last of them finishes.
func (c *Collector) RemoveClient(addr netip.Addr) (bool, error) {
	if !addr.IsValid() {
		return false, ErrInvalidAddress
	}
	return c.clients.Remove(addr), nil
}

// Export returns a snapshot of one export.
func (c *Collector) Export(id registry.ExportID) (ExportSnapshot, bool) {
	exp, ok := c.exports.Lookup(id)
	if !ok {
		return ExportSnapshot{}, false
	}
	defer c.exports.Release(exp)

	return exp.snapshot(1), true
}

// Client returns a snapshot of one client.
func (c *Collector) Client(addr netip.Addr) (ClientSnapshot, bool) {
	cl, ok := c.clients.Lookup(addr)
	if !ok {
		return ClientSnapshot{}, false
	}
	defer c.clients.Release(cl)

	return cl.snapshot(1), true
}

// ExportSnapshots returns every export in ascending id order.
func (c *Collector) ExportSnapshots() []ExportSnapshot {
	var out []ExportSnapshot
	c.exports.ForEach(func(s *ExportStats) bool {
		out = append(out, s.snapshot(0))
		return true
	})
	return out
}

// ClientSnapshots returns every client in ascending address order.
func (c *Collector) ClientSnapshots() []ClientSnapshot {
	var out []ClientSnapshot
	c.clients.ForEach(func(s *ClientStats) bool {
		out = append(out, s.snapshot(0))
		return true
	})
	return out
}

// Summary aggregates both registries.
type Summary struct {
	Exports          int    `json:"exports"`
	Clients          int    `json:"clients"`
	ReadOps          uint64 `json:"read_ops"`
	WriteOps         uint64 `json:"write_ops"`
	BytesRead        uint64 `json:"bytes_read"`
	BytesWritten     uint64 `json:"bytes_written"`
	ReclaimedClients uint64 `json:"reclaimed_clients"`
	ReclaimedExports uint64 `json:"reclaimed_exports"`
}

// Summary totals export activity. Client activity mirrors it and is not
// added twice.
func (c *Collector) Summary() Summary {
	sum := Summary{
		ReclaimedClients: c.reclaimedClients.Load(),
		ReclaimedExports: c.reclaimedExports.Load(),
	}
	sum.Exports = c.exports.ForEach(func(s *ExportStats) bool {
		s.Export.Lock()
		sum.ReadOps += s.Read.Total
		sum.WriteOps += s.Write.Total
		sum.BytesRead += s.Read.BytesTransferred
		sum.BytesWritten += s.Write.BytesTransferred
		s.Export.Unlock()
		return true
	})
	sum.Clients = c.clients.Len()
	return sum
}
