package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittoreg/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// registryMetrics is the Prometheus implementation of metrics.RegistryMetrics.
// One instance serves every registry; the registry label tells them apart.
type registryMetrics struct {
	lockWait *prometheus.HistogramVec
	lookups  *prometheus.CounterVec
	releases *prometheus.CounterVec
	removes  *prometheus.CounterVec
	reclaims *prometheus.CounterVec
	entries  *prometheus.GaugeVec
}

// NewRegistryMetrics creates a Prometheus-backed RegistryMetrics whose
// collectors are registered on reg.
//
// Call it once per Registerer: the collectors it registers are shared by the
// export and client registries.
func NewRegistryMetrics(reg prometheus.Registerer) metrics.RegistryMetrics {
	return &registryMetrics{
		lockWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoreg_registry_lock_wait_seconds",
				Help: "Time spent waiting for a registry lock",
				Buckets: []float64{
					0.000001, // 1µs
					0.00001,  // 10µs
					0.0001,   // 100µs
					0.001,    // 1ms
					0.01,     // 10ms
					0.1,      // 100ms
				},
			},
			[]string{"registry", "mode"},
		),
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoreg_registry_lookups_total",
				Help: "GetOrCreate calls by outcome (hit, miss, created, raced, alloc_failed)",
			},
			[]string{"registry", "result"},
		),
		releases: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoreg_registry_releases_total",
				Help: "Handles released",
			},
			[]string{"registry"},
		),
		removes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoreg_registry_removes_total",
				Help: "Remove calls by whether the key was present",
			},
			[]string{"registry", "found"},
		),
		reclaims: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoreg_registry_reclaims_total",
				Help: "Removed entries reclaimed after their last release",
			},
			[]string{"registry"},
		),
		entries: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittoreg_registry_entries",
				Help: "Entries currently indexed",
			},
			[]string{"registry"},
		),
	}
}

func (m *registryMetrics) ObserveLockWait(registry string, mode string, wait time.Duration) {
	m.lockWait.WithLabelValues(registry, mode).Observe(wait.Seconds())
}

func (m *registryMetrics) RecordLookup(registry string, result string) {
	m.lookups.WithLabelValues(registry, result).Inc()
}

func (m *registryMetrics) RecordRelease(registry string) {
	m.releases.WithLabelValues(registry).Inc()
}

func (m *registryMetrics) RecordRemove(registry string, found bool) {
	m.removes.WithLabelValues(registry, strconv.FormatBool(found)).Inc()
}

func (m *registryMetrics) RecordReclaim(registry string) {
	m.reclaims.WithLabelValues(registry).Inc()
}

func (m *registryMetrics) SetEntries(registry string, count int) {
	m.entries.WithLabelValues(registry).Set(float64(count))
}
