package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/craftide/toolflow/internal/metrics"
	"github.com/craftide/toolflow/types"
)

// Engine is the DAG scheduler. It validates and stores workflow definitions,
// queues executions FIFO, and drives each execution through round-based
// scheduling: compute the ready set, dispatch up to the parallelism budget,
// join the batch, repeat. Joining on the whole batch before recomputing
// readiness can momentarily under-utilize the budget when one task finishes
// much earlier than its batch mates; that trade-off keeps the rounds easy to
// reason about at this engine's scale.
//
// Each ExecutionContext is owned by exactly one worker goroutine from pickup
// to terminal state; within a round, concurrent tasks touch disjoint node
// runs through the context's recording methods.
type Engine struct {
	invoker      ToolInvoker
	toolRegistry ToolRegistry
	validator    *GraphValidator
	conditions   *ConditionEvaluator
	retry        *RetryExecutor
	bus          *EventBus
	registry     *ExecutionRegistry
	collector    *metrics.Collector
	tracer       trace.Tracer
	logger       *zap.Logger

	workers   int
	queueSize int

	mu         sync.Mutex
	workflows  map[string]*WorkflowDefinition
	executions map[string]*ExecutionContext
	active     map[string]bool
	closed     bool

	queue      chan *ExecutionContext
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithToolRegistry sets the external tool catalog tools are registered with
// at workflow load time.
func WithToolRegistry(reg ToolRegistry) Option {
	return func(e *Engine) { e.toolRegistry = reg }
}

// WithCollector sets the Prometheus collector. Nil disables collection.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithWorkers sets how many queued executions may run concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the execution queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// NewEngine creates an engine dispatching tool calls through the given
// invoker and starts its worker loops.
func NewEngine(invoker ToolInvoker, opts ...Option) *Engine {
	e := &Engine{
		invoker:    invoker,
		validator:  NewGraphValidator(),
		workers:    4,
		queueSize:  64,
		workflows:  make(map[string]*WorkflowDefinition),
		executions: make(map[string]*ExecutionContext),
		active:     make(map[string]bool),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "scheduler"))
	e.conditions = NewConditionEvaluator(e.logger)
	e.retry = NewRetryExecutor(e.logger)
	e.bus = NewEventBus(e.logger)
	e.registry = NewExecutionRegistry(e.logger)
	e.tracer = otel.Tracer("toolflow/orchestrator")

	e.queue = make(chan *ExecutionContext, e.queueSize)
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Events returns the engine's event bus for subscribing to orchestration
// events.
func (e *Engine) Events() *EventBus { return e.bus }

// GetMetrics returns a snapshot of cross-execution metrics.
func (e *Engine) GetMetrics() OrchestrationMetrics { return e.registry.Snapshot() }

// LoadWorkflow validates a workflow definition and stores it for execution.
// Validation failures are returned synchronously and nothing is stored; a
// workflow is never partially loaded. When a tool registry is configured,
// every tool is registered with it once per load.
func (e *Engine) LoadWorkflow(ctx context.Context, wf *WorkflowDefinition) error {
	if err := e.validator.Validate(wf); err != nil {
		return err
	}

	if e.toolRegistry != nil {
		for _, node := range wf.Tools {
			meta := types.ToolMetadata{
				Name:    node.Name,
				Version: wf.Version,
				Params:  node.Params,
			}
			if err := e.toolRegistry.RegisterTool(ctx, wf.ID, node.ID, meta); err != nil {
				return fmt.Errorf("register tool %q: %w", node.ID, err)
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.NewError(types.ErrEngineClosed, "engine is shut down")
	}
	e.workflows[wf.ID] = wf

	e.logger.Info("workflow loaded",
		zap.String("workflow_id", wf.ID),
		zap.String("name", wf.Name),
		zap.Int("tools", len(wf.Tools)),
		zap.Int("edges", len(wf.Edges)),
	)
	return nil
}

// Workflow returns a previously loaded workflow definition.
func (e *Engine) Workflow(workflowID string) (*WorkflowDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wf, ok := e.workflows[workflowID]
	return wf, ok
}

// ExecuteWorkflow enqueues a new execution of a loaded workflow and returns
// its ExecutionContext immediately in pending state. The context's fields are
// filled in asynchronously as execution proceeds; callers poll Snapshot or
// subscribe to events, and may wait on the context's Done channel.
func (e *Engine) ExecuteWorkflow(workflowID string) (*ExecutionContext, error) {
	return e.ExecuteWorkflowWithParams(workflowID, nil)
}

// ExecuteWorkflowWithParams is ExecuteWorkflow with execution-level parameters
// made available to invokers through the context's Params method.
func (e *Engine) ExecuteWorkflowWithParams(workflowID string, params map[string]any) (*ExecutionContext, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, types.NewError(types.ErrEngineClosed, "engine is shut down")
	}
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		return nil, types.NewError(types.ErrWorkflowNotFound,
			fmt.Sprintf("workflow %q is not loaded", workflowID))
	}
	ec := newExecutionContext(wf, params)
	e.executions[ec.executionID] = ec
	e.mu.Unlock()

	select {
	case e.queue <- ec:
		e.collector.ExecutionQueued(1)
	default:
		e.mu.Lock()
		delete(e.executions, ec.executionID)
		e.mu.Unlock()
		return nil, types.NewError(types.ErrQueueFull,
			fmt.Sprintf("execution queue is full (capacity %d)", e.queueSize))
	}

	e.logger.Debug("execution queued",
		zap.String("workflow_id", workflowID),
		zap.String("execution_id", ec.executionID),
	)
	return ec, nil
}

// Execution returns a known execution context by id.
func (e *Engine) Execution(executionID string) (*ExecutionContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ec, ok := e.executions[executionID]
	return ec, ok
}

// CancelExecution requests cancellation of an execution. A queued execution
// is cancelled before any node runs; a running execution stops dispatching
// new rounds, and in-flight invocations observe the cancelled context. The
// execution reaches the cancelled status asynchronously.
func (e *Engine) CancelExecution(executionID string) error {
	e.mu.Lock()
	ec, ok := e.executions[executionID]
	e.mu.Unlock()
	if !ok {
		return types.NewError(types.ErrExecutionNotFound,
			fmt.Sprintf("execution %q not found", executionID))
	}
	ec.requestCancel()
	return nil
}

// Shutdown stops accepting work, cancels all running executions, and waits
// for the worker loops to exit or the context to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.baseCancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker drains the execution queue: pull the next execution, mark it active,
// run it to completion, unmark. The queue channel is the single mutation
// point shared across workers, so two workers never pick up the same
// execution.
func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.baseCtx.Done():
			return
		case ec := <-e.queue:
			e.collector.ExecutionQueued(-1)
			e.mu.Lock()
			wf := e.workflows[ec.workflowID]
			e.active[ec.executionID] = true
			e.mu.Unlock()

			e.runExecution(ec, wf)

			e.mu.Lock()
			delete(e.active, ec.executionID)
			e.mu.Unlock()
		}
	}
}

// runExecution drives one execution from pending to a terminal status.
func (e *Engine) runExecution(ec *ExecutionContext, wf *WorkflowDefinition) {
	if ec.cancelRequested.Load() {
		e.finalize(ec, ExecutionCancelled,
			types.NewError(types.ErrExecutionCancelled, "execution cancelled before start"))
		return
	}

	ctx, cancel := context.WithCancel(e.baseCtx)
	if wf.Config.TimeoutMs > 0 {
		ctx, cancel = context.WithTimeout(e.baseCtx, time.Duration(wf.Config.TimeoutMs)*time.Millisecond)
	}
	defer cancel()
	ec.setCancel(cancel)

	ctx, span := e.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(
			attribute.String("workflow.id", wf.ID),
			attribute.String("execution.id", ec.executionID),
			attribute.Int("workflow.tools", len(wf.Tools)),
		),
	)
	defer span.End()

	ec.setStatus(ExecutionRunning)
	e.bus.Publish(Event{
		Type:        EventExecutionStarted,
		ExecutionID: ec.executionID,
		WorkflowID:  wf.ID,
		Timestamp:   time.Now(),
	})
	e.collector.ExecutionStarted()
	e.logger.Info("execution started",
		zap.String("workflow_id", wf.ID),
		zap.String("execution_id", ec.executionID),
		zap.String("error_handling", string(wf.Config.ErrorHandling)),
		zap.Int("max_parallel", wf.Config.MaxParallel),
	)

	execErr := e.runRounds(ctx, ec, wf)

	status := ExecutionCompleted
	switch {
	case execErr != nil:
		if types.GetErrorCode(execErr) == types.ErrExecutionCancelled {
			status = ExecutionCancelled
		} else {
			status = ExecutionFailed
		}
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
	case ec.Snapshot().Metrics.FailedTools > 0:
		status = ExecutionFailed
	}

	if status == ExecutionFailed && wf.Config.ErrorHandling == Rollback {
		e.runCompensations(ctx, ec, wf)
	}

	e.finalize(ec, status, execErr)
}

// finalize moves the execution to a terminal status, emits the terminal
// event, and records the run in the cross-execution registry.
func (e *Engine) finalize(ec *ExecutionContext, status ExecutionStatus, execErr error) {
	ec.finish(status, execErr)
	snap := ec.Snapshot()

	event := Event{
		Type:        EventExecutionCompleted,
		ExecutionID: ec.executionID,
		WorkflowID:  ec.workflowID,
		Timestamp:   time.Now(),
	}
	if status != ExecutionCompleted {
		event.Type = EventExecutionFailed
		if execErr != nil {
			event.Error = execErr.Error()
		}
	}
	e.bus.Publish(event)

	e.registry.Record(snap)
	e.collector.ExecutionFinished(string(status), snap.EndTime.Sub(snap.StartTime))
	e.logger.Info("execution finished",
		zap.String("execution_id", ec.executionID),
		zap.String("status", string(status)),
		zap.Int("completed", snap.Metrics.CompletedTools),
		zap.Int("failed", snap.Metrics.FailedTools),
		zap.Int("skipped", snap.Metrics.SkippedTools),
	)
}

// runRounds executes scheduling rounds until every node is terminal or an
// abort condition fires. It returns the execution-level error, if any.
func (e *Engine) runRounds(ctx context.Context, ec *ExecutionContext, wf *WorkflowDefinition) error {
	for {
		if err := ctx.Err(); err != nil {
			return e.mapContextError(err, ec)
		}

		ready := e.readySet(ec, wf)
		if len(ready) == 0 {
			blocked := e.blockedNodes(ec)
			if len(blocked) == 0 {
				return nil
			}
			// No node ready, none running (rounds join fully), yet pending
			// nodes remain: the remaining subgraph is unreachable, typically
			// because every upstream path failed without a conditional bypass.
			for _, id := range blocked {
				ec.recordError(id, "unreachable: no upstream path can satisfy dependencies")
			}
			return types.NewError(types.ErrDeadlock,
				fmt.Sprintf("no progress possible, blocked nodes: %s", strings.Join(blocked, ", ")))
		}

		batch := ready
		if len(batch) > wf.Config.MaxParallel {
			batch = batch[:wf.Config.MaxParallel]
		}
		e.registry.RecordBatch(len(batch))
		e.collector.BatchDispatched(len(batch))
		e.logger.Debug("dispatching batch",
			zap.String("execution_id", ec.executionID),
			zap.Int("batch_size", len(batch)),
		)

		g, gctx := errgroup.WithContext(ctx)
		for _, node := range batch {
			g.Go(func() error {
				return e.dispatchNode(gctx, ec, wf, node)
			})
		}
		if err := g.Wait(); err != nil {
			// Only fail-fast and rollback modes surface node failures here;
			// continue mode records them and keeps scheduling. A failure
			// caused by the execution deadline or cancellation is reported
			// as the execution-level error, not as the node's.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.mapContextError(ctxErr, ec)
			}
			return err
		}
	}
}

// readySet returns pending nodes whose every dependency reached a satisfying
// terminal state, in workflow declaration order. A skipped dependency counts
// as satisfied so downstream nodes are not blocked by untaken branches.
func (e *Engine) readySet(ec *ExecutionContext, wf *WorkflowDefinition) []*ToolNode {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	var ready []*ToolNode
	for _, id := range ec.order {
		run := ec.runs[id]
		if run.status != NodePending {
			continue
		}
		satisfied := true
		for _, dep := range wf.EffectiveDependencies(id) {
			depRun := ec.runs[dep]
			if depRun.status != NodeCompleted && depRun.status != NodeSkipped {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, run.node)
		}
	}
	return ready
}

// blockedNodes returns ids of nodes that are still pending, in declaration
// order. Called only when the ready set is empty and no node is running.
func (e *Engine) blockedNodes(ec *ExecutionContext) []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	var blocked []string
	for _, id := range ec.order {
		if ec.runs[id].status == NodePending {
			blocked = append(blocked, id)
		}
	}
	return blocked
}

// dispatchNode runs one node: condition gate, then the invocation wrapped in
// the retry executor. The returned error is non-nil only under fail-fast and
// rollback modes, where it aborts the round loop.
func (e *Engine) dispatchNode(ctx context.Context, ec *ExecutionContext, wf *WorkflowDefinition, node *ToolNode) error {
	if !e.conditions.ShouldRun(node, wf, ec.results()) {
		ec.markSkipped(node.ID)
		e.bus.Publish(Event{
			Type:        EventToolSkipped,
			ExecutionID: ec.executionID,
			WorkflowID:  wf.ID,
			NodeID:      node.ID,
			Timestamp:   time.Now(),
		})
		e.collector.ToolFinished(string(NodeSkipped), 0, 0)
		e.logger.Debug("node skipped",
			zap.String("execution_id", ec.executionID),
			zap.String("node_id", node.ID),
		)
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("tool.name", node.Name),
		),
	)
	defer span.End()

	ec.markRunning(node.ID)
	e.bus.Publish(Event{
		Type:        EventToolStarted,
		ExecutionID: ec.executionID,
		WorkflowID:  wf.ID,
		NodeID:      node.ID,
		Timestamp:   time.Now(),
	})

	start := time.Now()
	result, retries, err := e.retry.Execute(ctx, node.ID, wf.Config.Retry, func(ctx context.Context) (any, error) {
		return e.invoker.Invoke(ctx, node, ec)
	})
	duration := time.Since(start)

	if err != nil {
		ec.markFailed(node.ID, err, retries)
		e.bus.Publish(Event{
			Type:        EventToolFailed,
			ExecutionID: ec.executionID,
			WorkflowID:  wf.ID,
			NodeID:      node.ID,
			Timestamp:   time.Now(),
			Error:       err.Error(),
			Data: types.ToolOutcome{
				NodeID:     node.ID,
				Error:      err.Error(),
				Duration:   duration,
				RetryCount: retries,
			},
		})
		e.collector.ToolFinished(string(NodeFailed), duration, retries)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("node failed",
			zap.String("execution_id", ec.executionID),
			zap.String("node_id", node.ID),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		if wf.Config.ErrorHandling == Continue {
			return nil
		}
		return types.NewError(types.ErrToolFailed,
			fmt.Sprintf("tool %q failed after %d retries", node.ID, retries)).
			WithNodeID(node.ID).
			WithCause(err)
	}

	ec.markCompleted(node.ID, result, retries)
	e.bus.Publish(Event{
		Type:        EventToolCompleted,
		ExecutionID: ec.executionID,
		WorkflowID:  wf.ID,
		NodeID:      node.ID,
		Timestamp:   time.Now(),
		Data: types.ToolOutcome{
			NodeID:     node.ID,
			Result:     result,
			Duration:   duration,
			RetryCount: retries,
		},
	})
	e.collector.ToolFinished(string(NodeCompleted), duration, retries)
	e.logger.Debug("node completed",
		zap.String("execution_id", ec.executionID),
		zap.String("node_id", node.ID),
		zap.Duration("duration", duration),
		zap.Int("retries", retries),
	)
	return nil
}

// runCompensations invokes declared compensations for completed nodes in
// reverse completion order. Compensations are best effort: they run exactly
// once on a context detached from the aborted execution's cancellation,
// and failures are recorded but never retried.
func (e *Engine) runCompensations(ctx context.Context, ec *ExecutionContext, wf *WorkflowDefinition) {
	completed := ec.completedInOrder()
	detached := context.WithoutCancel(ctx)

	for i := len(completed) - 1; i >= 0; i-- {
		node, ok := wf.Node(completed[i])
		if !ok || node.Compensation == nil {
			continue
		}
		comp := &ToolNode{
			ID:     node.ID + ":compensation",
			Name:   node.Compensation.Tool,
			Params: node.Compensation.Params,
		}
		e.logger.Info("running compensation",
			zap.String("execution_id", ec.executionID),
			zap.String("node_id", node.ID),
			zap.String("tool", comp.Name),
		)
		if _, err := e.invoker.Invoke(detached, comp, ec); err != nil {
			ec.recordError(comp.ID, err.Error())
			e.logger.Error("compensation failed",
				zap.String("execution_id", ec.executionID),
				zap.String("node_id", node.ID),
				zap.Error(err),
			)
		}
	}
}

// mapContextError translates a context error into the execution-level error
// taxonomy: deadline exceeded is a timeout, cancellation is a cancel.
func (e *Engine) mapContextError(err error, ec *ExecutionContext) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrExecutionTimeout,
			fmt.Sprintf("execution %s exceeded its timeout", ec.executionID)).WithCause(err)
	}
	return types.NewError(types.ErrExecutionCancelled,
		fmt.Sprintf("execution %s was cancelled", ec.executionID)).WithCause(err)
}
