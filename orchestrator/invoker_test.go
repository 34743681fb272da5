package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokerFunc_Adapts(t *testing.T) {
	t.Parallel()
	inv := InvokerFunc(func(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error) {
		return node.ID + ":ok", nil
	})
	result, err := inv.Invoke(context.Background(), &ToolNode{ID: "n1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "n1:ok", result)
}

func TestRateLimitedInvoker_ShapesDispatchRate(t *testing.T) {
	t.Parallel()
	var calls int
	inner := InvokerFunc(func(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error) {
		calls++
		return nil, nil
	})
	// 50 calls/s with burst 1: the second and third calls each wait ~20ms.
	limited := NewRateLimitedInvoker(inner, 50, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := limited.Invoke(context.Background(), &ToolNode{ID: "n"}, nil)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestRateLimitedInvoker_CancelledWait(t *testing.T) {
	t.Parallel()
	inner := InvokerFunc(func(ctx context.Context, node *ToolNode, exec *ExecutionContext) (any, error) {
		t.Fatal("inner invoker must not run after cancellation")
		return nil, nil
	})
	limited := NewRateLimitedInvoker(inner, 0.001, 1)
	// Drain the single burst token so the next call would have to wait.
	limited.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := limited.Invoke(ctx, &ToolNode{ID: "n"}, nil)
	assert.Error(t, err)
}
