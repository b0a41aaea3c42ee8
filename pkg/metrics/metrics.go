package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Row store metrics
	InsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_inserts_total",
			Help: "Total number of rows inserted by container",
		},
		[]string{"container"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_queries_total",
			Help: "Total number of query-surface calls by alias",
		},
		[]string{"alias"},
	)

	DeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_deletes_total",
			Help: "Total number of delete operations by container",
		},
		[]string{"container"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "silo_query_duration_seconds",
			Help:    "Query surface call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"alias"},
	)

	PrunesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_prunes_total",
			Help: "Total number of prune/clean operations by container",
		},
		[]string{"container"},
	)

	BusyTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_busy_timeouts_total",
			Help: "Total number of operations that failed with a busy timeout",
		},
		[]string{"container"},
	)

	DecodeRefusalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_decode_refusals_total",
			Help: "Total number of rows skipped because their codec envelope was refused",
		},
		[]string{"container"},
	)

	// Farm metrics
	HarvestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_harvests_total",
			Help: "Total number of harvest invocations that triggered a reap",
		},
		[]string{"shard"},
	)

	ReapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "silo_reaps_total",
			Help: "Total number of reap operations that moved at least one row",
		},
		[]string{"shard"},
	)

	PlantsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "silo_plants_total",
			Help: "Total number of farm plant calls",
		},
	)

	FarmShardRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "silo_farm_shard_rows",
			Help: "Approximate row count observed in a farm shard's container at last sample",
		},
		[]string{"shard"},
	)
)

func init() {
	prometheus.MustRegister(InsertsTotal)
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(DeletesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(PrunesTotal)
	prometheus.MustRegister(BusyTimeoutsTotal)
	prometheus.MustRegister(DecodeRefusalsTotal)
	prometheus.MustRegister(HarvestsTotal)
	prometheus.MustRegister(ReapsTotal)
	prometheus.MustRegister(PlantsTotal)
	prometheus.MustRegister(FarmShardRows)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
