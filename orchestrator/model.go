package orchestrator

import (
	"time"
)

// NodeStatus is the lifecycle status of a tool node within one execution.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	NodeSkipped   NodeStatus = "skipped"
)

// Terminal reports whether the status is a terminal node state.
func (s NodeStatus) Terminal() bool {
	return s == NodeCompleted || s == NodeFailed || s == NodeSkipped
}

// ExecutionStatus is the lifecycle status of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is a terminal execution state.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// ErrorHandling selects how a single node failure affects the rest of the DAG.
type ErrorHandling string

const (
	// FailFast aborts the whole execution on the first node failure.
	FailFast ErrorHandling = "fail-fast"
	// Continue isolates a failure to the subgraph depending on the failed node.
	Continue ErrorHandling = "continue"
	// Rollback aborts like FailFast, then invokes declared compensations for
	// completed nodes in reverse completion order.
	Rollback ErrorHandling = "rollback"
)

// RetryPolicy bounds retry behavior for a single tool invocation.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first failure.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// BackoffMultiplier scales the backoff after each failed attempt.
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	// MaxBackoffMs caps the backoff between attempts.
	MaxBackoffMs int64 `json:"max_backoff_ms" yaml:"max_backoff_ms"`
}

// ExecutionConfig configures one workflow's execution behavior.
type ExecutionConfig struct {
	// MaxParallel is the parallelism budget per scheduling round. Must be > 0.
	MaxParallel int `json:"max_parallel" yaml:"max_parallel"`
	// TimeoutMs bounds the whole execution; 0 means no timeout.
	TimeoutMs int64 `json:"timeout_ms" yaml:"timeout_ms"`
	// Retry is applied to every tool invocation in the workflow.
	Retry RetryPolicy `json:"retry_policy" yaml:"retry_policy"`
	// ErrorHandling selects the failure propagation mode.
	ErrorHandling ErrorHandling `json:"error_handling" yaml:"error_handling"`
}

// Compensation declares a compensating tool call for rollback mode.
type Compensation struct {
	Tool   string         `json:"tool" yaml:"tool"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// ToolNode is a unit of work in a workflow: a named tool invocation with
// declared dependencies and static parameters. ToolNode itself is immutable
// after load; per-run mutable state (status, result, retry count) lives in
// the ExecutionContext so concurrent executions of the same workflow never
// share node state.
type ToolNode struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Params       map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Compensation *Compensation  `json:"compensation,omitempty" yaml:"compensation,omitempty"`
}

// Edge is a directed edge between two nodes, optionally guarded by a
// condition expression over the From node's result.
type Edge struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// WorkflowDefinition is a named DAG of tool nodes and edges plus execution
// configuration. A definition is loaded once and can be executed any number
// of times, each run producing an independent ExecutionContext.
type WorkflowDefinition struct {
	ID      string          `json:"id" yaml:"id"`
	Name    string          `json:"name" yaml:"name"`
	Version string          `json:"version,omitempty" yaml:"version,omitempty"`
	Tools   []*ToolNode     `json:"tools" yaml:"tools"`
	Edges   []Edge          `json:"edges,omitempty" yaml:"edges,omitempty"`
	Config  ExecutionConfig `json:"config" yaml:"config"`
}

// Node returns the node with the given id.
func (w *WorkflowDefinition) Node(id string) (*ToolNode, bool) {
	for _, n := range w.Tools {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// IncomingEdges returns the edges ending at the given node, in declaration order.
func (w *WorkflowDefinition) IncomingEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range w.Edges {
		if e.To == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// EffectiveDependencies returns the union of a node's declared dependencies
// and the From endpoints of edges ending at it, in stable order.
func (w *WorkflowDefinition) EffectiveDependencies(nodeID string) []string {
	node, ok := w.Node(nodeID)
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(node.Dependencies))
	deps := make([]string, 0, len(node.Dependencies))
	for _, d := range node.Dependencies {
		if !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}
	for _, e := range w.Edges {
		if e.To == nodeID && !seen[e.From] {
			seen[e.From] = true
			deps = append(deps, e.From)
		}
	}
	return deps
}

// ExecutionMetrics aggregates tool-level counters for one execution.
type ExecutionMetrics struct {
	TotalTools        int     `json:"total_tools"`
	CompletedTools    int     `json:"completed_tools"`
	FailedTools       int     `json:"failed_tools"`
	SkippedTools      int     `json:"skipped_tools"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// NodeSnapshot is a point-in-time view of one node's run state.
type NodeSnapshot struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     NodeStatus `json:"status"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	RetryCount int        `json:"retry_count"`
}

// ExecutionSnapshot is a point-in-time view of an execution. Snapshots are
// plain values; callers may retain them freely.
type ExecutionSnapshot struct {
	ExecutionID string                  `json:"execution_id"`
	WorkflowID  string                  `json:"workflow_id"`
	Status      ExecutionStatus         `json:"status"`
	StartTime   time.Time               `json:"start_time"`
	EndTime     time.Time               `json:"end_time,omitzero"`
	Results     map[string]any          `json:"results,omitempty"`
	Errors      map[string]string       `json:"errors,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Nodes       map[string]NodeSnapshot `json:"nodes"`
	Metrics     ExecutionMetrics        `json:"metrics"`
}
