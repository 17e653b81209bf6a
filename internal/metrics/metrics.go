package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reaport_agent",
			Name:      "submissions_total",
			Help:      "Submissions by immediate outcome (delivered/queued).",
		},
		[]string{"kind", "outcome"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reaport_agent",
			Name:      "queue_depth",
			Help:      "Pending records in the durable queue.",
		},
	)

	drainPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reaport_agent",
			Name:      "drain_passes_total",
			Help:      "Completed drain passes.",
		},
	)

	drainDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reaport_agent",
			Name:      "drain_deliveries_total",
			Help:      "Per-record drain delivery attempts by result.",
		},
		[]string{"result"},
	)

	snapshotWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reaport_agent",
			Name:      "snapshot_writes_total",
			Help:      "Job snapshot flushes to the local store.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reaport_agent",
			Name:      "http_requests_total",
			Help:      "Control API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(submissions, queueDepth, drainPasses, drainDeliveries, snapshotWrites, httpRequests)
	})
}

// IncSubmission counts one gateway submission outcome.
func IncSubmission(kind, outcome string) {
	submissions.WithLabelValues(kind, outcome).Inc()
}

// SetQueueDepth records the current durable queue length.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncDrainPass counts one completed drain pass.
func IncDrainPass() {
	drainPasses.Inc()
}

// IncDrainDelivery counts one per-record delivery result ("synced"/"error").
func IncDrainDelivery(result string) {
	drainDeliveries.WithLabelValues(result).Inc()
}

// IncSnapshotWrite counts one snapshot flush.
func IncSnapshotWrite() {
	snapshotWrites.Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
