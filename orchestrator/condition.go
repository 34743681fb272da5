package orchestrator

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ConditionEvaluator decides whether a node should run based on its incoming
// conditional edges. The grammar is deliberately restricted to a dotted path
// into the upstream node's result, optionally prefixed with "!" or compared
// with ">=" or "<" against a numeric literal. Conditions originate from
// workflow authors, so anything that does not parse or evaluate cleanly is
// treated as false: the edge does not fire.
type ConditionEvaluator struct {
	logger *zap.Logger
}

// NewConditionEvaluator creates a condition evaluator.
func NewConditionEvaluator(logger *zap.Logger) *ConditionEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConditionEvaluator{
		logger: logger.With(zap.String("component", "condition_evaluator")),
	}
}

// ShouldRun reports whether a node should run given the completed upstream
// results. A node with no incoming conditional edges always runs once its
// dependencies complete. With one or more conditional edges, the node runs if
// any condition evaluates true (OR across alternative branch paths).
func (e *ConditionEvaluator) ShouldRun(node *ToolNode, wf *WorkflowDefinition, results map[string]any) bool {
	conditional := 0
	for _, edge := range wf.IncomingEdges(node.ID) {
		if edge.Condition == "" {
			continue
		}
		conditional++
		if e.evaluate(edge.Condition, results[edge.From]) {
			return true
		}
	}
	if conditional == 0 {
		return true
	}
	e.logger.Debug("all conditional edges evaluated false, node will be skipped",
		zap.String("node_id", node.ID),
	)
	return false
}

// evaluate evaluates one condition against an upstream result. Grammar:
//
//	path.to.field            truthiness of the value
//	!path.to.field           negation; a missing value negates to true
//	path.to.field >= <num>   numeric comparison; missing or non-numeric is false
//	path.to.field < <num>
func (e *ConditionEvaluator) evaluate(cond string, upstream any) bool {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return false
	}

	if op, idx := findOperator(cond); op != "" {
		pathExpr := strings.TrimSpace(cond[:idx])
		litExpr := strings.TrimSpace(cond[idx+len(op):])
		if pathExpr == "" || strings.HasPrefix(pathExpr, "!") {
			return false
		}
		limit, err := strconv.ParseFloat(litExpr, 64)
		if err != nil {
			e.logger.Debug("condition has non-numeric comparison literal",
				zap.String("condition", cond),
			)
			return false
		}
		value, found := extractPath(upstream, pathExpr)
		if !found {
			return false
		}
		num, ok := toFloat(value)
		if !ok {
			return false
		}
		switch op {
		case ">=":
			return num >= limit
		case "<":
			return num < limit
		}
		return false
	}

	negate := false
	pathExpr := cond
	if strings.HasPrefix(pathExpr, "!") {
		negate = true
		pathExpr = strings.TrimSpace(pathExpr[1:])
	}
	if pathExpr == "" {
		return false
	}
	value, found := extractPath(upstream, pathExpr)
	if !found {
		// Undefined: negation treats it as true, plain lookup as false.
		return negate
	}
	if negate {
		return !truthy(value)
	}
	return truthy(value)
}

// findOperator locates the comparison operator in the expression, if any.
func findOperator(cond string) (string, int) {
	if idx := strings.Index(cond, ">="); idx >= 0 {
		return ">=", idx
	}
	if idx := strings.Index(cond, "<"); idx >= 0 {
		return "<", idx
	}
	return "", -1
}

// extractPath traverses nested map keys along a dotted path. A missing key at
// any step yields found=false.
func extractPath(value any, path string) (any, bool) {
	current := value
	for _, key := range strings.Split(path, ".") {
		if key == "" {
			return nil, false
		}
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	default:
		if num, ok := toFloat(value); ok {
			return num != 0
		}
		return true
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
