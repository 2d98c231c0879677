package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpus_index_requests_total",
		Help: "Ingestion requests by kind and outcome.",
	}, []string{"kind", "status"})

	queryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpus_query_requests_total",
		Help: "Retrieval requests by outcome.",
	}, []string{"status"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "corpus_query_duration_seconds",
		Help:    "End-to-end retrieval latency.",
		Buckets: prometheus.DefBuckets,
	})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
