package stats

import (
	"net/netip"
	"time"

	"github.com/marmos91/dittoreg/internal/ratelimiter"
	"github.com/marmos91/dittoreg/pkg/registry"
)

// ExportStats is the per-export record: the registry entry plus the
// activity counters attributed to the export. Path and counters are guarded
// by Export.Lock.
type ExportStats struct {
	Export registry.Export
	Path   string
	counters
}

func newExportStats() (*ExportStats, error) {
	return &ExportStats{counters: newCounters()}, nil
}

func (s *ExportStats) Ref() *registry.RefCount       { return s.Export.Ref() }
func (s *ExportStats) ExportEntry() *registry.Export { return &s.Export }

// ExportSnapshot is a copy of an export record taken under its lock.
type ExportSnapshot struct {
	ID   registry.ExportID `json:"id"`
	Path string            `json:"path,omitempty"`
	Refs int64             `json:"refs"`
	Counters
}

// snapshot copies the record. held is the number of references the caller
// itself holds, which are not reported.
func (s *ExportStats) snapshot(held int64) ExportSnapshot {
	s.Export.Lock()
	defer s.Export.Unlock()

	return ExportSnapshot{
		ID:       s.Export.ID,
		Path:     s.Path,
		Refs:     s.Export.Refs() - held,
		Counters: s.counters.snapshot(),
	}
}

// ClientStats is the per-client record: the registry entry, the activity
// counters attributed to the client and its request throttle. Counters and
// Client.LastUpdate are guarded by Client.Lock.
type ClientStats struct {
	Client registry.Client
	counters

	// Throttled counts requests refused by the limiter.
	Throttled uint64

	limiter *ratelimiter.RateLimiter
}

func newClientStats() (*ClientStats, error) {
	return &ClientStats{counters: newCounters()}, nil
}

func (s *ClientStats) Ref() *registry.RefCount       { return s.Client.Ref() }
func (s *ClientStats) ClientEntry() *registry.Client { return &s.Client }

// ClientSnapshot is a copy of a client record taken under its lock.
type ClientSnapshot struct {
	Addr       netip.Addr    `json:"addr"`
	Refs       int64         `json:"refs"`
	LastUpdate time.Duration `json:"last_update_ns"`
	Throttled  uint64        `json:"throttled"`
	Counters
}

func (s *ClientStats) snapshot(held int64) ClientSnapshot {
	s.Client.Lock()
	defer s.Client.Unlock()

	return ClientSnapshot{
		Addr:       s.Client.Addr(),
		Refs:       s.Client.Refs() - held,
		LastUpdate: s.Client.LastUpdate,
		Throttled:  s.Throttled,
		Counters:   s.counters.snapshot(),
	}
}
