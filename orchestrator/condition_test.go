package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func conditionalWorkflow(condition string) *WorkflowDefinition {
	return &WorkflowDefinition{
		ID:     "cond",
		Config: validConfig(),
		Tools: []*ToolNode{
			{ID: "analyze", Name: "analyze"},
			{ID: "deploy", Name: "deploy"},
		},
		Edges: []Edge{
			{From: "analyze", To: "deploy", Condition: condition},
		},
	}
}

func TestConditionEvaluator_NoConditionalEdgesAlwaysRuns(t *testing.T) {
	t.Parallel()
	wf := simpleWorkflow("plain", []string{"a", "b"}, []Edge{{From: "a", To: "b"}})
	eval := NewConditionEvaluator(zap.NewNop())
	b, _ := wf.Node("b")
	assert.True(t, eval.ShouldRun(b, wf, map[string]any{"a": "done"}))
	assert.True(t, eval.ShouldRun(b, wf, nil))
}

func TestConditionEvaluator_Expressions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		condition string
		upstream  any
		want      bool
	}{
		{"coverage below threshold", "coverage >= 80", map[string]any{"coverage": 60}, false},
		{"coverage meets threshold", "coverage >= 80", map[string]any{"coverage": 80}, true},
		{"coverage above threshold", "coverage >= 80", map[string]any{"coverage": 95.5}, true},
		{"less-than true", "errors < 1", map[string]any{"errors": 0}, true},
		{"less-than false", "errors < 1", map[string]any{"errors": 3}, false},
		{"nested path", "report.tests.passed >= 10", map[string]any{
			"report": map[string]any{"tests": map[string]any{"passed": 12}},
		}, true},
		{"missing key in comparison is false", "coverage >= 80", map[string]any{}, false},
		{"missing key negated is true", "!approved", map[string]any{}, true},
		{"missing nested key negated is true", "!review.approved", map[string]any{"review": map[string]any{}}, true},
		{"truthy bool", "approved", map[string]any{"approved": true}, true},
		{"falsy bool", "approved", map[string]any{"approved": false}, false},
		{"negated truthy bool", "!approved", map[string]any{"approved": true}, false},
		{"truthy string", "stage", map[string]any{"stage": "prod"}, true},
		{"falsy empty string", "stage", map[string]any{"stage": ""}, false},
		{"truthy nonzero number", "count", map[string]any{"count": 2}, true},
		{"falsy zero", "count", map[string]any{"count": 0}, false},
		{"missing plain path is false", "approved", map[string]any{}, false},
		{"nil upstream result is false", "approved", nil, false},
		{"non-numeric value in comparison is false", "coverage >= 80", map[string]any{"coverage": "high"}, false},
		{"non-numeric literal fails closed", "coverage >= high", map[string]any{"coverage": 90}, false},
		{"empty condition fails closed", "   ", map[string]any{"coverage": 90}, false},
		{"negation combined with comparison fails closed", "!coverage >= 80", map[string]any{"coverage": 90}, false},
		{"path through non-map is false", "coverage.value >= 1", map[string]any{"coverage": 60}, false},
	}

	eval := NewConditionEvaluator(zap.NewNop())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wf := conditionalWorkflow(tc.condition)
			deploy, _ := wf.Node("deploy")
			results := map[string]any{}
			if tc.upstream != nil {
				results["analyze"] = tc.upstream
			}
			assert.Equal(t, tc.want, eval.ShouldRun(deploy, wf, results))
		})
	}
}

func TestConditionEvaluator_ORAcrossConditionalEdges(t *testing.T) {
	t.Parallel()
	// Two upstream branches feed "notify"; it runs if either condition holds.
	wf := &WorkflowDefinition{
		ID:     "fanin",
		Config: validConfig(),
		Tools: []*ToolNode{
			{ID: "succeeded", Name: "succeeded"},
			{ID: "rolledback", Name: "rolledback"},
			{ID: "notify", Name: "notify"},
		},
		Edges: []Edge{
			{From: "succeeded", To: "notify", Condition: "ok"},
			{From: "rolledback", To: "notify", Condition: "ok"},
		},
	}
	eval := NewConditionEvaluator(zap.NewNop())
	notify, _ := wf.Node("notify")

	assert.True(t, eval.ShouldRun(notify, wf, map[string]any{
		"succeeded":  map[string]any{"ok": false},
		"rolledback": map[string]any{"ok": true},
	}))
	assert.False(t, eval.ShouldRun(notify, wf, map[string]any{
		"succeeded":  map[string]any{"ok": false},
		"rolledback": map[string]any{"ok": false},
	}))
}

func TestConditionEvaluator_MixedEdges(t *testing.T) {
	t.Parallel()
	// An unconditional edge alongside a conditional one does not force the
	// node to run: only conditional edges vote once any exist.
	wf := &WorkflowDefinition{
		ID:     "mixed",
		Config: validConfig(),
		Tools: []*ToolNode{
			{ID: "a", Name: "a"},
			{ID: "b", Name: "b"},
			{ID: "c", Name: "c"},
		},
		Edges: []Edge{
			{From: "a", To: "c"},
			{From: "b", To: "c", Condition: "go"},
		},
	}
	eval := NewConditionEvaluator(zap.NewNop())
	c, _ := wf.Node("c")
	assert.False(t, eval.ShouldRun(c, wf, map[string]any{
		"a": map[string]any{},
		"b": map[string]any{"go": false},
	}))
	assert.True(t, eval.ShouldRun(c, wf, map[string]any{
		"a": map[string]any{},
		"b": map[string]any{"go": true},
	}))
}
