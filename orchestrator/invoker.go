package orchestrator

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/craftide/toolflow/types"
)

// ToolInvoker performs the actual tool call for a node. The engine does not
// care how the call is made (in-process, RPC, HTTP); implementations must be
// idempotent-safe enough to retry, or callers must deduplicate themselves.
// The passed context carries execution cancellation and timeout.
type ToolInvoker interface {
	Invoke(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error)
}

// InvokerFunc adapts a function to the ToolInvoker interface.
type InvokerFunc func(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error)

// Invoke implements ToolInvoker.
func (f InvokerFunc) Invoke(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error) {
	return f(ctx, node, exec)
}

// ToolRegistry is the optional external tool catalog/authorization layer.
// When configured, the engine registers each workflow's tools once at load
// time and is otherwise unaffected by how the registry enforces access.
type ToolRegistry interface {
	RegisterTool(ctx context.Context, workflowID, nodeID string, meta types.ToolMetadata) error
}

// RateLimitedInvoker decorates a ToolInvoker with a token-bucket rate limit
// on outbound calls. The underlying transport stays external; this only
// shapes the engine's dispatch rate.
type RateLimitedInvoker struct {
	inner   ToolInvoker
	limiter *rate.Limiter
}

// NewRateLimitedInvoker wraps inner with the given calls-per-second limit and
// burst size.
func NewRateLimitedInvoker(inner ToolInvoker, perSecond float64, burst int) *RateLimitedInvoker {
	return &RateLimitedInvoker{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Invoke waits for a rate token, then delegates to the wrapped invoker.
func (r *RateLimitedInvoker) Invoke(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Invoke(ctx, node, exec)
}
