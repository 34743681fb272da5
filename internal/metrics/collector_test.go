package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestCollector_ExecutionLifecycle(t *testing.T) {
	t.Parallel()
	c := newTestCollector()

	c.ExecutionQueued(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queuedExecutions))

	c.ExecutionQueued(-1)
	c.ExecutionStarted()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.queuedExecutions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.activeExecutions))

	c.ExecutionFinished("completed", 250*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeExecutions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("failed")))
}

func TestCollector_ToolOutcomes(t *testing.T) {
	t.Parallel()
	c := newTestCollector()

	c.ToolFinished("completed", 10*time.Millisecond, 0)
	c.ToolFinished("failed", 20*time.Millisecond, 2)
	c.ToolFinished("skipped", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.toolRetries))
}

func TestCollector_Batches(t *testing.T) {
	t.Parallel()
	c := newTestCollector()

	c.BatchDispatched(1)
	c.BatchDispatched(3)
	c.BatchDispatched(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.batchesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.parallelBatches))
}

func TestCollector_NilIsSafe(t *testing.T) {
	t.Parallel()
	var c *Collector
	c.ExecutionQueued(1)
	c.ExecutionStarted()
	c.ExecutionFinished("completed", time.Second)
	c.ToolFinished("failed", time.Second, 1)
	c.BatchDispatched(4)
}
