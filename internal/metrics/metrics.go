package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RangesTotal counts processed version ranges by outcome (success, decode_error, commit_error).
	RangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "processor_ranges_total", Help: "Version ranges processed"},
		[]string{"processor", "status"},
	)
	RangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "processor_range_duration_seconds", Help: "Range processing latency", Buckets: prometheus.DefBuckets},
		[]string{"processor"},
	)
	// WriteAttempts counts atomic write attempts by attempt (initial, sanitized) and status.
	WriteAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "processor_write_attempts_total", Help: "Atomic write attempts"},
		[]string{"processor", "attempt", "status"},
	)
	ForwardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "processor_forwarded_transactions_total", Help: "Transaction records sent to the event sink"},
		[]string{"processor", "status"},
	)
	LastSuccessVersion = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "processor_last_success_version", Help: "Highest committed end version"},
		[]string{"processor"},
	)
	RangesPublished = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_ranges_published_total", Help: "Version ranges published by the scheduler"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"path", "code"},
	)
)

// Collectors lists every metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RangesTotal, RangeDuration, WriteAttempts, ForwardedTotal,
		LastSuccessVersion, RangesPublished, HTTPRequestsTotal,
	}
}

// Register adds every metric to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(Collectors()...)
}
