package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics records invoice generation outcomes.
type BillingMetrics struct {
	issued        prometheus.Counter
	failed        *prometheus.CounterVec
	seqRetries    prometheus.Counter
	buildDuration prometheus.Histogram
}

// NewBillingMetrics registers the billing metrics on the provided registerer.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	issued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoices_issued_total",
		Help: "Invoices successfully generated and committed.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoice_build_failures_total",
		Help: "Invoice generation failures by error code.",
	}, []string{"code"})
	seqRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invoice_sequence_retries_total",
		Help: "Sequence allocations retried after a unique constraint conflict.",
	})
	buildDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_build_duration_seconds",
		Help:    "Duration of invoice generation transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(issued, failed, seqRetries, buildDuration)
	return &BillingMetrics{
		issued:        issued,
		failed:        failed,
		seqRetries:    seqRetries,
		buildDuration: buildDuration,
	}
}

// IncIssued counts a committed invoice.
func (b *BillingMetrics) IncIssued() {
	if b == nil || b.issued == nil {
		return
	}
	b.issued.Inc()
}

// IncFailed counts a failed generation attempt under the given error code.
func (b *BillingMetrics) IncFailed(code string) {
	if b == nil || b.failed == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	b.failed.WithLabelValues(code).Inc()
}

// IncSequenceRetry counts one allocation retry.
func (b *BillingMetrics) IncSequenceRetry() {
	if b == nil || b.seqRetries == nil {
		return
	}
	b.seqRetries.Inc()
}

// ObserveBuildDuration records how long a generation transaction took.
func (b *BillingMetrics) ObserveBuildDuration(d time.Duration) {
	if b == nil || b.buildDuration == nil {
		return
	}
	b.buildDuration.Observe(d.Seconds())
}
