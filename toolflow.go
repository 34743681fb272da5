// Package toolflow provides a top-level convenience entry point for creating
// the orchestration engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/craftide/toolflow"
//
//	engine := toolflow.New(myInvoker)
//	engine := toolflow.New(myInvoker, toolflow.WithLogger(logger))
//
// This is a thin wrapper around [orchestrator.NewEngine]; both produce
// identical results. Use this package when you prefer the shorter import path.
package toolflow

import (
	"github.com/craftide/toolflow/orchestrator"
)

// Engine is the workflow orchestration engine.
type Engine = orchestrator.Engine

// ToolInvoker performs the actual tool call for a workflow node.
type ToolInvoker = orchestrator.ToolInvoker

// InvokerFunc adapts a function to the ToolInvoker interface.
type InvokerFunc = orchestrator.InvokerFunc

// WorkflowDefinition is a named DAG of tool nodes and edges.
type WorkflowDefinition = orchestrator.WorkflowDefinition

// ExecutionContext tracks the state of one workflow execution.
type ExecutionContext = orchestrator.ExecutionContext

// Option configures the engine created by [New].
type Option = orchestrator.Option

// New creates an orchestration engine dispatching tool calls through the
// given invoker.
func New(invoker ToolInvoker, opts ...Option) *Engine {
	return orchestrator.NewEngine(invoker, opts...)
}

// Re-export engine options so callers never need to import orchestrator/.

// WithLogger sets a custom zap logger.
var WithLogger = orchestrator.WithLogger

// WithToolRegistry sets the external tool catalog.
var WithToolRegistry = orchestrator.WithToolRegistry

// WithCollector sets the Prometheus collector.
var WithCollector = orchestrator.WithCollector

// WithWorkers sets how many queued executions may run concurrently.
var WithWorkers = orchestrator.WithWorkers

// WithQueueSize sets the execution queue capacity.
var WithQueueSize = orchestrator.WithQueueSize

// LoadWorkflowFile loads a WorkflowDefinition from a YAML or JSON file.
var LoadWorkflowFile = orchestrator.LoadFromFile
