// Package metrics collects and exposes Prometheus metrics for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts sync outcomes per source, extracted records, and
// consolidation conflicts. It satisfies the orchestrator's Recorder.
type Collector struct {
	syncs     *prometheus.CounterVec
	records   *prometheus.CounterVec
	conflicts prometheus.Counter
	duration  *prometheus.HistogramVec
}

// NewCollector builds a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "availsync_syncs_total",
			Help: "Source sync attempts by source and result.",
		}, []string{"source", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "availsync_records_total",
			Help: "Availability records persisted, by source.",
		}, []string{"source"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "availsync_conflicts_total",
			Help: "Dates where scraping and feed disagreed.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "availsync_sync_duration_seconds",
			Help:    "Wall time of one source's sync including retries.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"source"}),
	}

	reg.MustRegister(
		c.syncs,
		c.records,
		c.conflicts,
		c.duration,
	)

	return c
}

// ObserveSync records one source sync's result and duration.
func (c *Collector) ObserveSync(source, result string, elapsed time.Duration) {
	c.syncs.WithLabelValues(source, result).Inc()
	c.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// AddConflicts records consolidation disagreements.
func (c *Collector) AddConflicts(n int) {
	c.conflicts.Add(float64(n))
}

// AddRecords records persisted availability records.
func (c *Collector) AddRecords(source string, n int) {
	c.records.WithLabelValues(source).Add(float64(n))
}

// Handler returns the scrape endpoint handler for the gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
