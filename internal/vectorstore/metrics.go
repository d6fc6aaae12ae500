package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration tracks nearest-neighbour query latency.
	// Labels: provider (chromem, qdrant)
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "designd",
			Subsystem: "vectorstore",
			Name:      "query_duration_seconds",
			Help:      "Duration of nearest-neighbour queries in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// OperationsTotal counts index operations.
	// Labels: provider, operation (query, upsert), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"provider", "operation", "result"},
	)
)

func observeOperation(provider, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(provider, operation, result).Inc()
}
