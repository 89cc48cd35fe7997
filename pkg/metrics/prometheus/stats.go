package prometheus

import (
	"strconv"

	"github.com/marmos91/dittoreg/pkg/stats"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource provides point-in-time copies of the registry records.
// *stats.Collector implements it.
type StatsSource interface {
	ExportSnapshots() []stats.ExportSnapshot
	ClientSnapshots() []stats.ClientSnapshot
}

// statsCollector exports per-export and per-client counters at scrape time.
//
// Counters live in the registry records, so the collector walks both
// registries on every scrape instead of mirroring each update.
type statsCollector struct {
	source StatsSource

	exportRefs   *prometheus.Desc
	exportOps    *prometheus.Desc
	exportErrors *prometheus.Desc
	exportBytes  *prometheus.Desc

	clientRefs       *prometheus.Desc
	clientOps        *prometheus.Desc
	clientBytes      *prometheus.Desc
	clientThrottled  *prometheus.Desc
	clientLastUpdate *prometheus.Desc
}

// NewStatsCollector creates a prometheus.Collector over source.
func NewStatsCollector(source StatsSource) prometheus.Collector {
	return &statsCollector{
		source: source,

		exportRefs: prometheus.NewDesc("dittoreg_export_refs",
			"References currently held on the export", []string{"export"}, nil),
		exportOps: prometheus.NewDesc("dittoreg_export_io_total",
			"READ/WRITE requests charged to the export", []string{"export", "direction"}, nil),
		exportErrors: prometheus.NewDesc("dittoreg_export_io_errors_total",
			"Failed READ/WRITE requests charged to the export", []string{"export", "direction"}, nil),
		exportBytes: prometheus.NewDesc("dittoreg_export_io_bytes_total",
			"Bytes transferred by successful READ/WRITE requests", []string{"export", "direction"}, nil),

		clientRefs: prometheus.NewDesc("dittoreg_client_refs",
			"References currently held on the client", []string{"client"}, nil),
		clientOps: prometheus.NewDesc("dittoreg_client_io_total",
			"READ/WRITE requests issued by the client", []string{"client", "direction"}, nil),
		clientBytes: prometheus.NewDesc("dittoreg_client_io_bytes_total",
			"Bytes transferred for the client", []string{"client", "direction"}, nil),
		clientThrottled: prometheus.NewDesc("dittoreg_client_throttled_total",
			"Requests refused by the client's rate limit", []string{"client"}, nil),
		clientLastUpdate: prometheus.NewDesc("dittoreg_client_last_update_seconds",
			"Server uptime at the client's last recorded activity", []string{"client"}, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.exportRefs
	ch <- c.exportOps
	ch <- c.exportErrors
	ch <- c.exportBytes
	ch <- c.clientRefs
	ch <- c.clientOps
	ch <- c.clientBytes
	ch <- c.clientThrottled
	ch <- c.clientLastUpdate
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range c.source.ExportSnapshots() {
		id := strconv.Itoa(int(e.ID))
		ch <- prometheus.MustNewConstMetric(c.exportRefs, prometheus.GaugeValue, float64(e.Refs), id)
		for dir, io := range map[string]stats.IOCounters{"read": e.Read, "write": e.Write} {
			ch <- prometheus.MustNewConstMetric(c.exportOps, prometheus.CounterValue, float64(io.Total), id, dir)
			ch <- prometheus.MustNewConstMetric(c.exportErrors, prometheus.CounterValue, float64(io.Errors), id, dir)
			ch <- prometheus.MustNewConstMetric(c.exportBytes, prometheus.CounterValue, float64(io.BytesTransferred), id, dir)
		}
	}

	for _, cl := range c.source.ClientSnapshots() {
		addr := cl.Addr.String()
		ch <- prometheus.MustNewConstMetric(c.clientRefs, prometheus.GaugeValue, float64(cl.Refs), addr)
		ch <- prometheus.MustNewConstMetric(c.clientThrottled, prometheus.CounterValue, float64(cl.Throttled), addr)
		ch <- prometheus.MustNewConstMetric(c.clientLastUpdate, prometheus.GaugeValue, cl.LastUpdate.Seconds(), addr)
		for dir, io := range map[string]stats.IOCounters{"read": cl.Read, "write": cl.Write} {
			ch <- prometheus.MustNewConstMetric(c.clientOps, prometheus.CounterValue, float64(io.Total), addr, dir)
			ch <- prometheus.MustNewConstMetric(c.clientBytes, prometheus.CounterValue, float64(io.BytesTransferred), addr, dir)
		}
	}
}
