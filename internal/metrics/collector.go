package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// JobStats provides the collector access to live orchestrator state.
type JobStats interface {
	PendingRuns() int
	JobCountsByStatus() map[string]int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	stats JobStats

	pendingRuns *prometheus.Desc
	jobsLive    *prometheus.Desc
}

// NewCollector creates a collector that reads orchestrator state at scrape
// time. stats may be nil; gauges then report 0.
func NewCollector(stats JobStats) *Collector {
	return &Collector{
		stats: stats,
		pendingRuns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pending_runs"),
			"Jobs currently queued for transcription.",
			nil, nil,
		),
		jobsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "jobs_live"),
			"Live job records by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pendingRuns
	ch <- c.jobsLive
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats == nil {
		ch <- prometheus.MustNewConstMetric(c.pendingRuns, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.pendingRuns, prometheus.GaugeValue, float64(c.stats.PendingRuns()))
	for status, n := range c.stats.JobCountsByStatus() {
		ch <- prometheus.MustNewConstMetric(c.jobsLive, prometheus.GaugeValue, float64(n), status)
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
