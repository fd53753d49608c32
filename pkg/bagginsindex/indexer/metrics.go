package indexer

import "github.com/prometheus/client_golang/prometheus"

// Mutation outcomes.
const (
	OutcomeIndexed = "indexed"
	OutcomeDeleted = "deleted"
	OutcomeSkipped = "skipped"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
)

var Mutations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bagginsindex",
	Subsystem: "indexer",
	Name:      "mutations_total",
	Help:      "Row-column events seen by an index, by outcome.",
}, []string{"keyspace", "family", "column", "outcome"})

var PartialKeys = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bagginsindex",
	Subsystem: "indexer",
	Name:      "partial_keys_total",
	Help:      "Composite primary keys built from fewer components than the clustering prefix.",
}, []string{"keyspace", "family"})

var IndexDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "bagginsindex",
	Subsystem: "indexer",
	Name:      "index_duration_seconds",
	Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"keyspace", "family", "column"})

var SearchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "bagginsindex",
	Subsystem: "indexer",
	Name:      "search_duration_seconds",
	Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"keyspace", "family", "column"})

// Collectors returns every indexer metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{Mutations, PartialKeys, IndexDuration, SearchDuration}
}
