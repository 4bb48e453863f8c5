package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "ingest_requests_total",
		Help:      "Total ScheduleRequest commands handled, by outcome.",
	}, []string{"outcome"})

	CancelsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "ingest_cancels_total",
		Help:      "Total ScheduleCancel commands handled, by outcome.",
	}, []string{"outcome"})

	// Dispatch metrics

	ClaimBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "dispatch_claim_batch_size",
		Help:      "Number of jobs claimed per dispatch tick.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	PublishConfirmsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "dispatch_publish_confirms_total",
		Help:      "Total ScheduleDue publishes, by outcome (ack, nack, return, timeout).",
	}, []string{"outcome"})

	DispatchTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "dispatch_tick_duration_seconds",
		Help:      "Time taken to claim and fire one batch of due jobs.",
		Buckets:   prometheus.DefBuckets,
	})

	DeadLetterRoutedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "inbox_dead_lettered_total",
		Help:      "Total inbox messages rejected without requeue (routed to the DLQ).",
	})

	// Process lifecycle

	ServiceStartTime = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "service_start_time_seconds",
		Help:      "Unix timestamp when a service process started.",
	}, []string{"service"})
)

// counterVecAdapter satisfies ingest.counterByOutcome over a
// *prometheus.CounterVec, so that package doesn't import prometheus
// directly.
type counterVecAdapter struct {
	vec *prometheus.CounterVec
}

func (c counterVecAdapter) Inc(outcome string) {
	c.vec.WithLabelValues(outcome).Inc()
}

// IngestRequestCounter adapts RequestsTotal for internal/ingest.Service.
func IngestRequestCounter() counterVecAdapter { return counterVecAdapter{RequestsTotal} }

// IngestCancelCounter adapts CancelsTotal for internal/ingest.Service.
func IngestCancelCounter() counterVecAdapter { return counterVecAdapter{CancelsTotal} }

// histogramAdapter satisfies dispatch.gauge over a prometheus.Histogram.
type histogramAdapter struct {
	hist prometheus.Histogram
}

func (h histogramAdapter) Observe(v float64) { h.hist.Observe(v) }

// DispatchBatchSizeObserver adapts ClaimBatchSize for internal/dispatch.Service.
func DispatchBatchSizeObserver() histogramAdapter { return histogramAdapter{ClaimBatchSize} }

func Register() {
	prometheus.MustRegister(
		RequestsTotal,
		CancelsTotal,
		ClaimBatchSize,
		PublishConfirmsTotal,
		DispatchTickDuration,
		DeadLetterRoutedTotal,
		ServiceStartTime,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
