package orchestrator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() ExecutionConfig {
	return ExecutionConfig{
		MaxParallel:   2,
		ErrorHandling: Continue,
		Retry:         RetryPolicy{MaxRetries: 0, BackoffMultiplier: 2, MaxBackoffMs: 5000},
	}
}

func simpleWorkflow(id string, nodes []string, edges []Edge) *WorkflowDefinition {
	wf := &WorkflowDefinition{
		ID:     id,
		Name:   id,
		Config: validConfig(),
		Edges:  edges,
	}
	for _, n := range nodes {
		wf.Tools = append(wf.Tools, &ToolNode{ID: n, Name: n})
	}
	return wf
}

func TestGraphValidator_ValidChain(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("chain", []string{"a", "b", "c"}, []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
	})
	assert.NoError(t, NewGraphValidator().Validate(wf))
}

func TestGraphValidator_ValidDiamond(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("diamond", []string{"load", "branch1", "branch2", "merge"}, []Edge{
		{From: "load", To: "branch1"},
		{From: "load", To: "branch2"},
		{From: "branch1", To: "merge"},
		{From: "branch2", To: "merge"},
	})
	assert.NoError(t, NewGraphValidator().Validate(wf))
}

func TestGraphValidator_TwoNodeCycle(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("cyclic", []string{"x", "y"}, []Edge{
		{From: "x", To: "y"},
		{From: "y", To: "x"},
	})
	err := NewGraphValidator().Validate(wf)
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.NotEmpty(t, cycleErr.Path)
	// The path must name a node on the cycle and close on itself.
	assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
	assert.Contains(t, []string{"x", "y"}, cycleErr.Path[0])
}

func TestGraphValidator_SelfCycleViaDependency(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("selfdep", []string{"a"}, nil)
	wf.Tools[0].Dependencies = []string{"a"}
	err := NewGraphValidator().Validate(wf)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestGraphValidator_LongerCycleThroughDeclaredDeps(t *testing.T) {
	t.Parallel()
	// Cycle formed by mixing declared dependencies and edges.
	wf := simpleWorkflow("mixed", []string{"a", "b", "c"}, []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
	})
	wf.Tools[0].Dependencies = []string{"c"}
	err := NewGraphValidator().Validate(wf)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.GreaterOrEqual(t, len(cycleErr.Path), 4)
}

func TestGraphValidator_UnknownDependency(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("unknown-dep", []string{"a"}, nil)
	wf.Tools[0].Dependencies = []string{"ghost"}
	err := NewGraphValidator().Validate(wf)

	var refErr *UnknownReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "a", refErr.NodeID)
	assert.Equal(t, "ghost", refErr.Reference)
}

func TestGraphValidator_UnknownEdgeEndpoints(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		edge Edge
		ref  string
	}{
		{"unknown from", Edge{From: "ghost", To: "a"}, "ghost"},
		{"unknown to", Edge{From: "a", To: "ghost"}, "ghost"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			wf := simpleWorkflow("unknown-edge", []string{"a"}, []Edge{tc.edge})
			err := NewGraphValidator().Validate(wf)
			var refErr *UnknownReferenceError
			require.ErrorAs(t, err, &refErr)
			assert.Equal(t, tc.ref, refErr.Reference)
		})
	}
}

func TestGraphValidator_DuplicateEdge(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("dup-edge", []string{"a", "b"}, []Edge{
		{From: "a", To: "b"},
		{From: "a", To: "b", Condition: "ok"},
	})
	err := NewGraphValidator().Validate(wf)

	var dupErr *DuplicateEdgeError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "a", dupErr.From)
	assert.Equal(t, "b", dupErr.To)
}

func TestGraphValidator_OppositeEdgesAreNotDuplicates(t *testing.T) {
	t.Parallel()
	// a->b and b->a are distinct ordered pairs; they fail as a cycle, not as
	// a duplicate.
	wf := simpleWorkflow("opposite", []string{"a", "b"}, []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "a"},
	})
	err := NewGraphValidator().Validate(wf)
	var dupErr *DuplicateEdgeError
	assert.False(t, errors.As(err, &dupErr))
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestGraphValidator_DuplicateNodeID(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("dup-node", []string{"a", "a"}, nil)
	err := NewGraphValidator().Validate(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool id")
}

func TestGraphValidator_RejectsInvalidShape(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewGraphValidator().Validate(nil))

	empty := &WorkflowDefinition{ID: "empty", Config: validConfig()}
	assert.Error(t, NewGraphValidator().Validate(empty))

	noID := simpleWorkflow("", []string{"a"}, nil)
	assert.Error(t, NewGraphValidator().Validate(noID))

	badParallel := simpleWorkflow("bad-parallel", []string{"a"}, nil)
	badParallel.Config.MaxParallel = 0
	err := NewGraphValidator().Validate(badParallel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_parallel")
}
