package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// nodeRun is the per-execution mutable state of one tool node. Runs are
// created by cloning the workflow's nodes at execution start, so concurrent
// executions of the same workflow never share mutable state.
type nodeRun struct {
	node       *ToolNode
	status     NodeStatus
	result     any
	err        string
	started    time.Time
	durationMs int64
	retryCount int
}

// ExecutionContext tracks the state of one workflow execution. It is created
// per ExecuteWorkflow call and owned by the scheduler's round loop until it
// reaches a terminal status; all external reads go through accessor methods
// or Snapshot, which take the context's lock.
type ExecutionContext struct {
	executionID string
	workflowID  string
	startTime   time.Time
	params      map[string]any

	mu              sync.RWMutex
	status          ExecutionStatus
	endTime         time.Time
	runs            map[string]*nodeRun
	order           []string // node ids in declaration order
	completionOrder []string
	errors          map[string]string
	execErr         error
	metrics         ExecutionMetrics

	cancelRequested atomic.Bool
	cancel          context.CancelFunc
	done            chan struct{}
}

func newExecutionContext(wf *WorkflowDefinition, params map[string]any) *ExecutionContext {
	ec := &ExecutionContext{
		executionID: uuid.NewString(),
		workflowID:  wf.ID,
		startTime:   time.Now(),
		params:      params,
		status:      ExecutionPending,
		runs:        make(map[string]*nodeRun, len(wf.Tools)),
		order:       make([]string, 0, len(wf.Tools)),
		errors:      make(map[string]string),
		done:        make(chan struct{}),
	}
	for _, n := range wf.Tools {
		ec.runs[n.ID] = &nodeRun{node: n, status: NodePending}
		ec.order = append(ec.order, n.ID)
	}
	ec.metrics.TotalTools = len(wf.Tools)
	return ec
}

// ExecutionID returns the generated id of this execution.
func (ec *ExecutionContext) ExecutionID() string { return ec.executionID }

// WorkflowID returns the id of the workflow being executed.
func (ec *ExecutionContext) WorkflowID() string { return ec.workflowID }

// StartTime returns when the execution was submitted.
func (ec *ExecutionContext) StartTime() time.Time { return ec.startTime }

// Params returns the execution-level parameters passed at submission. The map
// is set once at submission and never mutated; invokers may read it freely.
func (ec *ExecutionContext) Params() map[string]any { return ec.params }

// Status returns the current execution status.
func (ec *ExecutionContext) Status() ExecutionStatus {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.status
}

// Err returns the execution-level error (deadlock, timeout, cancellation, or
// the aborting node failure), if any.
func (ec *ExecutionContext) Err() error {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.execErr
}

// Done returns a channel closed when the execution reaches a terminal status.
func (ec *ExecutionContext) Done() <-chan struct{} { return ec.done }

// NodeStatus returns the current status of one node in this execution.
func (ec *ExecutionContext) NodeStatus(nodeID string) (NodeStatus, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	run, ok := ec.runs[nodeID]
	if !ok {
		return "", false
	}
	return run.status, true
}

// Result returns the recorded result of one node, if it completed.
func (ec *ExecutionContext) Result(nodeID string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	run, ok := ec.runs[nodeID]
	if !ok || run.status != NodeCompleted {
		return nil, false
	}
	return run.result, true
}

// Snapshot returns a point-in-time copy of the execution state.
func (ec *ExecutionContext) Snapshot() ExecutionSnapshot {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	snap := ExecutionSnapshot{
		ExecutionID: ec.executionID,
		WorkflowID:  ec.workflowID,
		Status:      ec.status,
		StartTime:   ec.startTime,
		EndTime:     ec.endTime,
		Results:     make(map[string]any),
		Errors:      make(map[string]string, len(ec.errors)),
		Nodes:       make(map[string]NodeSnapshot, len(ec.runs)),
		Metrics:     ec.metrics,
	}
	if ec.execErr != nil {
		snap.Error = ec.execErr.Error()
	}
	for id, msg := range ec.errors {
		snap.Errors[id] = msg
	}
	for id, run := range ec.runs {
		snap.Nodes[id] = NodeSnapshot{
			ID:         id,
			Name:       run.node.Name,
			Status:     run.status,
			Result:     run.result,
			Error:      run.err,
			DurationMs: run.durationMs,
			RetryCount: run.retryCount,
		}
		if run.status == NodeCompleted {
			snap.Results[id] = run.result
		}
	}
	return snap
}

// results returns a shallow copy of completed node results keyed by node id.
// Used by the condition evaluator and invokers.
func (ec *ExecutionContext) results() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]any)
	for id, run := range ec.runs {
		if run.status == NodeCompleted {
			out[id] = run.result
		}
	}
	return out
}

// setCancel installs the cancel function for the running execution's context.
func (ec *ExecutionContext) setCancel(cancel context.CancelFunc) {
	ec.mu.Lock()
	ec.cancel = cancel
	ec.mu.Unlock()
	// A cancel request may have arrived between queueing and pickup.
	if ec.cancelRequested.Load() {
		cancel()
	}
}

// requestCancel flags the execution for cancellation and cancels its context
// if it is already running. The owning worker performs the terminal
// transition.
func (ec *ExecutionContext) requestCancel() {
	ec.cancelRequested.Store(true)
	ec.mu.RLock()
	cancel := ec.cancel
	ec.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (ec *ExecutionContext) setStatus(status ExecutionStatus) {
	ec.mu.Lock()
	ec.status = status
	ec.mu.Unlock()
}

// finish moves the execution to a terminal status, computes the average node
// duration, records the end time, and closes the done channel. It is a no-op
// if the execution is already terminal.
func (ec *ExecutionContext) finish(status ExecutionStatus, execErr error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status.Terminal() {
		return
	}
	ec.status = status
	ec.endTime = time.Now()
	if execErr != nil {
		ec.execErr = execErr
	}

	var sum int64
	var count int
	for _, run := range ec.runs {
		if run.durationMs > 0 || run.status == NodeCompleted || run.status == NodeFailed {
			sum += run.durationMs
			count++
		}
	}
	if count > 0 {
		ec.metrics.AverageDurationMs = float64(sum) / float64(count)
	}
	close(ec.done)
}

func (ec *ExecutionContext) markRunning(nodeID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	run := ec.runs[nodeID]
	run.status = NodeRunning
	run.started = time.Now()
}

func (ec *ExecutionContext) markCompleted(nodeID string, result any, retries int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	run := ec.runs[nodeID]
	run.status = NodeCompleted
	run.result = result
	run.retryCount = retries
	run.durationMs = time.Since(run.started).Milliseconds()
	ec.completionOrder = append(ec.completionOrder, nodeID)
	ec.metrics.CompletedTools++
}

func (ec *ExecutionContext) markFailed(nodeID string, err error, retries int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	run := ec.runs[nodeID]
	run.status = NodeFailed
	run.err = err.Error()
	run.retryCount = retries
	run.durationMs = time.Since(run.started).Milliseconds()
	ec.errors[nodeID] = err.Error()
	ec.metrics.FailedTools++
}

func (ec *ExecutionContext) markSkipped(nodeID string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	run := ec.runs[nodeID]
	run.status = NodeSkipped
	ec.metrics.SkippedTools++
}

func (ec *ExecutionContext) recordError(key, msg string) {
	ec.mu.Lock()
	ec.errors[key] = msg
	ec.mu.Unlock()
}

// completedInOrder returns completed node ids in completion order.
func (ec *ExecutionContext) completedInOrder() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make([]string, len(ec.completionOrder))
	copy(out, ec.completionOrder)
	return out
}
