// Package metrics defines the observability hooks used by the live-state
// registries and exposes them over HTTP for Prometheus.
//
// Every hook is an interface with a no-op implementation, so registries and
// the stats collector can run with metrics disabled at zero cost. Prometheus
// implementations live in the metrics/prometheus subpackage.
//
// Usage:
//
//	metrics.InitRegistry()
//	live := prometheus.NewRegistryMetrics(metrics.GetRegistry())
//	exports := registry.NewExportRegistry(alloc, registry.WithMetrics[*Export](live))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the process Prometheus registry. Written once by InitRegistry.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process Prometheus registry. Subsequent calls are
// ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the process registry, or nil when InitRegistry has
// not been called (metrics disabled).
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
