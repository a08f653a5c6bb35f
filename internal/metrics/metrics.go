package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusCommitted = "committed"
	statusRejected  = "rejected"
)

// Metrics holds the Prometheus metrics of page builders. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	recordsTotal     *prometheus.CounterVec
	recordsDiscarded prometheus.Counter
	pagesTotal       prometheus.Counter
	pageBytes        prometheus.Histogram
	flushDuration    prometheus.Histogram
	streamsFinished  prometheus.Counter
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		recordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "novapage_records_total",
				Help: "Records passed to the page builder, by outcome",
			},
			[]string{"status", "reason"},
		),
		recordsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "novapage_records_discarded_total",
			Help: "Committed records dropped by Close without a prior Finish",
		}),
		pagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "novapage_pages_flushed_total",
			Help: "Pages handed to the sink",
		}),
		pageBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "novapage_page_bytes",
			Help:    "Encoded size of flushed pages",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
		flushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "novapage_flush_duration_seconds",
			Help:    "Time spent handing a page to the sink",
			Buckets: prometheus.DefBuckets,
		}),
		streamsFinished: f.NewCounter(prometheus.CounterOpts{
			Name: "novapage_streams_finished_total",
			Help: "Streams that reached Finish",
		}),
	}
}

func (m *Metrics) RecordCommitted() {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(statusCommitted, "").Inc()
}

// RecordRejected counts a record refused with the given error class.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(statusRejected, reason).Inc()
}

func (m *Metrics) PageFlushed(bytes int, took time.Duration) {
	if m == nil {
		return
	}
	m.pagesTotal.Inc()
	m.pageBytes.Observe(float64(bytes))
	m.flushDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordsDiscarded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.recordsDiscarded.Add(float64(n))
}

func (m *Metrics) StreamFinished() {
	if m == nil {
		return
	}
	m.streamsFinished.Inc()
}
