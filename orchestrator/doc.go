// Package orchestrator implements the tool orchestration engine: a workflow
// definition model plus a scheduler that executes a DAG of tool invocations
// with dependency resolution, bounded parallelism, conditional branching,
// retry with backoff, and configurable error handling.
//
// The engine is a single-process orchestrator. Tool execution itself is
// delegated to an injected ToolInvoker; the engine only decides what runs,
// when, and with what concurrency.
package orchestrator
