package workqueue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the extraction subsystem. All
// adapter operations flow through the queue, so the collectors live here.
type Metrics struct {
	Registry        *prometheus.Registry
	OperationsTotal *prometheus.CounterVec
	OperationTime   prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	ItemsExtracted  prometheus.Counter
	PagesFetched    prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_operations_total",
			Help: "Total adapter operations issued through the work queue.",
		},
		[]string{"operation"},
	)
	operationTime := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractor_operation_duration_seconds",
			Help:    "Adapter operation latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_retries_total",
			Help: "Total retry attempts scheduled by the work queue.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_errors_total",
			Help: "Total operation errors by class.",
		},
		[]string{"class"},
	)
	itemsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_items_total",
			Help: "Total raw items handed to the normalizer.",
		},
	)
	pagesFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_pages_total",
			Help: "Total listing pages or scroll reads fetched.",
		},
	)

	registry.MustRegister(operations, operationTime, retries, errorsTotal, itemsExtracted, pagesFetched)

	return &Metrics{
		Registry:        registry,
		OperationsTotal: operations,
		OperationTime:   operationTime,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		ItemsExtracted:  itemsExtracted,
		PagesFetched:    pagesFetched,
	}
}

// IncOperation increments the operation counter for a label.
func (m *Metrics) IncOperation(operation string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation).Inc()
}

// ObserveDuration records one operation's latency.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.OperationTime.Observe(d.Seconds())
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the error counter for a class label.
func (m *Metrics) IncError(class string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(class).Inc()
}

// AddItems counts raw items handed to the normalizer.
func (m *Metrics) AddItems(n int) {
	if m == nil {
		return
	}
	m.ItemsExtracted.Add(float64(n))
}

// IncPages counts one listing fetch.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
}
