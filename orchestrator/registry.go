package orchestrator

import (
	"sync"

	"go.uber.org/zap"
)

// OrchestrationMetrics aggregates statistics across all recorded executions.
// It is initialized empty at engine start, updated after each execution
// reaches a terminal state, and never reset by the engine itself.
type OrchestrationMetrics struct {
	TotalExecutions      int64   `json:"total_executions"`
	SuccessfulExecutions int64   `json:"successful_executions"`
	FailedExecutions     int64   `json:"failed_executions"`
	CancelledExecutions  int64   `json:"cancelled_executions"`
	// AverageExecutionMs is the running average wall time of recorded
	// executions.
	AverageExecutionMs float64 `json:"average_execution_ms"`
	// ToolSuccessRate is completed tools over all dispatched (completed or
	// failed) tools across recorded executions.
	ToolSuccessRate float64 `json:"tool_success_rate"`
	// ParallelExecutionRate is the ratio of scheduling batches that dispatched
	// more than one node concurrently over all batches. It is an observed
	// counter incremented during scheduling, not an estimate.
	ParallelExecutionRate float64 `json:"parallel_execution_rate"`
}

// ExecutionRegistry tracks terminal executions and derives cross-run
// statistics. It is safe for concurrent use.
type ExecutionRegistry struct {
	mu sync.RWMutex

	totalExecutions      int64
	successfulExecutions int64
	failedExecutions     int64
	cancelledExecutions  int64
	totalExecutionMs     float64

	completedTools int64
	failedTools    int64

	totalBatches    int64
	parallelBatches int64

	logger *zap.Logger
}

// NewExecutionRegistry creates an empty registry.
func NewExecutionRegistry(logger *zap.Logger) *ExecutionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionRegistry{
		logger: logger.With(zap.String("component", "execution_registry")),
	}
}

// Record folds a terminal execution into the running totals. Non-terminal
// snapshots are ignored.
func (r *ExecutionRegistry) Record(snap ExecutionSnapshot) {
	if !snap.Status.Terminal() {
		r.logger.Warn("ignoring non-terminal execution snapshot",
			zap.String("execution_id", snap.ExecutionID),
			zap.String("status", string(snap.Status)),
		)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalExecutions++
	switch snap.Status {
	case ExecutionCompleted:
		r.successfulExecutions++
	case ExecutionFailed:
		r.failedExecutions++
	case ExecutionCancelled:
		r.cancelledExecutions++
	}
	if !snap.EndTime.IsZero() {
		r.totalExecutionMs += float64(snap.EndTime.Sub(snap.StartTime).Milliseconds())
	}
	r.completedTools += int64(snap.Metrics.CompletedTools)
	r.failedTools += int64(snap.Metrics.FailedTools)
}

// RecordBatch counts one scheduling batch and whether it dispatched more than
// one node concurrently.
func (r *ExecutionRegistry) RecordBatch(size int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalBatches++
	if size > 1 {
		r.parallelBatches++
	}
}

// Snapshot returns a read-only copy of the aggregated metrics.
func (r *ExecutionRegistry) Snapshot() OrchestrationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := OrchestrationMetrics{
		TotalExecutions:      r.totalExecutions,
		SuccessfulExecutions: r.successfulExecutions,
		FailedExecutions:     r.failedExecutions,
		CancelledExecutions:  r.cancelledExecutions,
	}
	if r.totalExecutions > 0 {
		m.AverageExecutionMs = r.totalExecutionMs / float64(r.totalExecutions)
	}
	if dispatched := r.completedTools + r.failedTools; dispatched > 0 {
		m.ToolSuccessRate = float64(r.completedTools) / float64(dispatched)
	}
	if r.totalBatches > 0 {
		m.ParallelExecutionRate = float64(r.parallelBatches) / float64(r.totalBatches)
	}
	return m
}
