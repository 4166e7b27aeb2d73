package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation outcomes used as the status label
const (
	StatusOK       = "ok"
	StatusInvalid  = "invalid"
	StatusCanceled = "canceled"
	StatusError    = "error"
)

// Metrics holds all Prometheus metrics of the designer
type Metrics struct {
	// Evaluation metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	InfeasibleDesigns  prometheus.Counter
	LastOverallCost    *prometheus.GaugeVec
	BatchesTotal       prometheus.Counter

	// Snapshot metrics
	StatsBuildDuration  prometheus.Histogram
	SnapshotCollections prometheus.Gauge
	SnapshotOperations  prometheus.Gauge
	SnapshotIntervals   prometheus.Gauge
	ClusterNodes        prometheus.Gauge

	// Worker pool metrics
	PoolActiveWorkers *prometheus.GaugeVec
	PoolTasksTotal    *prometheus.CounterVec
	PoolTaskDuration  *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "designer_evaluations_total",
				Help: "Total number of design evaluations by outcome",
			},
			[]string{"status"},
		),

		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "designer_evaluation_duration_seconds",
				Help:    "Duration of a single design evaluation",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),

		InfeasibleDesigns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "designer_infeasible_designs_total",
				Help: "Total number of evaluated designs exceeding the memory budget",
			},
		),

		LastOverallCost: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "designer_last_overall_cost",
				Help: "Overall cost of the most recent evaluation of a named design",
			},
			[]string{"design"},
		),

		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "designer_evaluation_batches_total",
				Help: "Total number of evaluation batches",
			},
		),

		StatsBuildDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "designer_stats_build_duration_seconds",
				Help:    "Duration of building statistics and segments for a snapshot",
				Buckets: prometheus.DefBuckets,
			},
		),

		SnapshotCollections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "designer_snapshot_collections",
				Help: "Number of collections in the active snapshot",
			},
		),

		SnapshotOperations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "designer_snapshot_operations",
				Help: "Number of traced operations in the active snapshot",
			},
		),

		SnapshotIntervals: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "designer_snapshot_intervals",
				Help: "Number of skew intervals the active snapshot is segmented into",
			},
		),

		ClusterNodes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "designer_cluster_nodes",
				Help: "Number of nodes designs are evaluated against",
			},
		),

		PoolActiveWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "designer_worker_pool_active_workers",
				Help: "Number of busy workers",
			},
			[]string{"pool"},
		),

		PoolTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "designer_worker_pool_tasks_total",
				Help: "Total number of tasks run by outcome",
			},
			[]string{"pool", "outcome"},
		),

		PoolTaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "designer_worker_pool_task_duration_seconds",
				Help:    "Duration of worker pool tasks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pool"},
		),

		GRPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "designer_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method", "code"},
		),

		GRPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "designer_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// RecordEvaluation records one design evaluation
func (m *Metrics) RecordEvaluation(status string, duration time.Duration, infeasible bool) {
	m.EvaluationsTotal.WithLabelValues(status).Inc()
	m.EvaluationDuration.Observe(duration.Seconds())
	if infeasible {
		m.InfeasibleDesigns.Inc()
	}
}

// SetLastOverallCost records the latest overall cost of a named design
func (m *Metrics) SetLastOverallCost(design string, cost float64) {
	m.LastOverallCost.WithLabelValues(design).Set(cost)
}

// RecordBatch counts an evaluation batch
func (m *Metrics) RecordBatch() {
	m.BatchesTotal.Inc()
}

// RecordSnapshot records the build time and size of a new snapshot
func (m *Metrics) RecordSnapshot(duration time.Duration, collections, operations, intervals int) {
	m.StatsBuildDuration.Observe(duration.Seconds())
	m.SnapshotCollections.Set(float64(collections))
	m.SnapshotOperations.Set(float64(operations))
	m.SnapshotIntervals.Set(float64(intervals))
}

// SetClusterNodes records the node count designs are evaluated against
func (m *Metrics) SetClusterNodes(n int) {
	m.ClusterNodes.Set(float64(n))
}

// WorkerBusy implements workerpool.Observer
func (m *Metrics) WorkerBusy(pool string, active int) {
	m.PoolActiveWorkers.WithLabelValues(pool).Set(float64(active))
}

// TaskFinished implements workerpool.Observer
func (m *Metrics) TaskFinished(pool string, outcome string, duration time.Duration) {
	m.PoolTasksTotal.WithLabelValues(pool, outcome).Inc()
	m.PoolTaskDuration.WithLabelValues(pool).Observe(duration.Seconds())
}

// RecordGRPCRequest records a served gRPC request
func (m *Metrics) RecordGRPCRequest(method, code string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}
