package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwhmedio_requests_total",
			Help: "Total number of HTTP API requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kwhmedio_request_duration_seconds",
			Help:    "HTTP API request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwhmedio_request_errors_total",
			Help: "Total number of HTTP API error responses per path and status code",
		},
		[]string{"path", "code"},
	)
)

// Upstream ANEEL datastore calls.
var (
	UpstreamPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwhmedio_upstream_pages_total",
			Help: "Pages fetched from the ANEEL datastore per dataset and outcome",
		},
		[]string{"dataset", "outcome"},
	)

	UpstreamPageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kwhmedio_upstream_page_duration_seconds",
			Help:    "Duration of a single upstream page request per dataset",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dataset"},
	)

	CacheFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwhmedio_cache_fallback_total",
			Help: "Cache lookups after a failed live fetch per dataset and result (hit, miss, error)",
		},
		[]string{"dataset", "result"},
	)
)

func ObserveUpstreamPage(dataset string, startedAt time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamPagesTotal.WithLabelValues(dataset, outcome).Inc()
	UpstreamPageDurationSeconds.WithLabelValues(dataset).Observe(time.Since(startedAt).Seconds())
}

// Calculations.
var (
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwhmedio_calculations_total",
			Help: "Weighted average calculations per outcome",
		},
		[]string{"outcome"},
	)

	CalculationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kwhmedio_calculation_duration_seconds",
			Help:    "End to end duration of a weighted average calculation",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func ObserveCalculation(startedAt time.Time, outcome string) {
	CalculationsTotal.WithLabelValues(outcome).Inc()
	CalculationDurationSeconds.Observe(time.Since(startedAt).Seconds())
}

var (
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kwhmedio_db_pool_total_conns",
			Help: "Total number of connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kwhmedio_db_pool_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kwhmedio_db_pool_acquired_conns",
			Help: "Currently acquired (in-use) connections per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiresTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kwhmedio_db_pool_acquires",
			Help: "Cumulative number of connection acquires per driver",
		},
		[]string{"driver"},
	)
)

// UpdateDBPoolMetrics records a point-in-time view of a connection pool.
// acquires is the pool's cumulative counter, so it is set, not added.
func UpdateDBPoolMetrics(driver string, total, idle, acquired float64, acquires int64) {
	DBPoolTotalConns.WithLabelValues(driver).Set(total)
	DBPoolIdleConns.WithLabelValues(driver).Set(idle)
	DBPoolAcquiredConns.WithLabelValues(driver).Set(acquired)
	DBPoolAcquiresTotal.WithLabelValues(driver).Set(float64(acquires))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kwhmedio_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kwhmedio_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kwhmedio_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
