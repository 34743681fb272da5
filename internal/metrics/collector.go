package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the engine's Prometheus metrics. All record methods are
// nil-safe so callers can pass a nil collector to disable collection.
type Collector struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	activeExecutions  prometheus.Gauge
	queuedExecutions  prometheus.Gauge

	toolsTotal   *prometheus.CounterVec
	toolDuration prometheus.Histogram
	toolRetries  prometheus.Counter

	batchesTotal    prometheus.Counter
	parallelBatches prometheus.Counter
	batchSize       prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the engine metrics on the given registerer. Pass
// prometheus.DefaultRegisterer for the process-wide registry, or a private
// one in tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of workflow executions by terminal status",
			},
			[]string{"status"},
		),
		executionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Workflow execution duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
		),
		activeExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Number of executions currently running",
			},
		),
		queuedExecutions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_executions",
				Help:      "Number of executions waiting in the queue",
			},
		),
		toolsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of tool node outcomes by status",
			},
			[]string{"status"},
		),
		toolDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Tool node execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		toolRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_retries_total",
				Help:      "Total number of tool invocation retries",
			},
		),
		batchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduling_batches_total",
				Help:      "Total number of scheduling batches dispatched",
			},
		),
		parallelBatches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parallel_batches_total",
				Help:      "Number of batches that dispatched more than one node",
			},
		),
		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Nodes dispatched per scheduling batch",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ExecutionQueued adjusts the queued-executions gauge.
func (c *Collector) ExecutionQueued(delta float64) {
	if c == nil {
		return
	}
	c.queuedExecutions.Add(delta)
}

// ExecutionStarted marks one execution as active.
func (c *Collector) ExecutionStarted() {
	if c == nil {
		return
	}
	c.activeExecutions.Inc()
}

// ExecutionFinished records a terminal execution.
func (c *Collector) ExecutionFinished(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.activeExecutions.Dec()
	c.executionsTotal.WithLabelValues(status).Inc()
	c.executionDuration.Observe(duration.Seconds())
}

// ToolFinished records one tool node outcome.
func (c *Collector) ToolFinished(status string, duration time.Duration, retries int) {
	if c == nil {
		return
	}
	c.toolsTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		c.toolDuration.Observe(duration.Seconds())
	}
	if retries > 0 {
		c.toolRetries.Add(float64(retries))
	}
}

// BatchDispatched records one scheduling batch.
func (c *Collector) BatchDispatched(size int) {
	if c == nil {
		return
	}
	c.batchesTotal.Inc()
	c.batchSize.Observe(float64(size))
	if size > 1 {
		c.parallelBatches.Inc()
	}
}
