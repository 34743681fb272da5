package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Any graph whose edges all point from a lower to a higher node index is
// acyclic and reference-valid, so validation must accept it.
func TestProperty_ForwardEdgeGraphsAlwaysValidate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "nodes")
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
		}

		seen := make(map[[2]string]bool)
		var edges []Edge
		edgeCount := rapid.IntRange(0, n*2).Draw(t, "edges")
		for i := 0; i < edgeCount && n > 1; i++ {
			from := rapid.IntRange(0, n-2).Draw(t, "from")
			to := rapid.IntRange(from+1, n-1).Draw(t, "to")
			key := [2]string{ids[from], ids[to]}
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, Edge{From: ids[from], To: ids[to]})
		}

		wf := simpleWorkflow("forward", ids, edges)
		if err := NewGraphValidator().Validate(wf); err != nil {
			t.Fatalf("acyclic graph rejected: %v", err)
		}
	})
}

// Closing any forward chain back to its head introduces a cycle, and the
// validator must report it as a CycleError.
func TestProperty_BackEdgeAlwaysDetected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 15).Draw(t, "nodes")
		ids := make([]string, n)
		var edges []Edge
		for i := range ids {
			ids[i] = fmt.Sprintf("n%d", i)
			if i > 0 {
				edges = append(edges, Edge{From: ids[i-1], To: ids[i]})
			}
		}
		tail := rapid.IntRange(1, n-1).Draw(t, "tail")
		head := rapid.IntRange(0, tail-1).Draw(t, "head")
		edges = append(edges, Edge{From: ids[tail], To: ids[head]})

		wf := simpleWorkflow("backedge", ids, edges)
		err := NewGraphValidator().Validate(wf)
		if err == nil {
			t.Fatalf("cycle not detected (back edge %s -> %s)", ids[tail], ids[head])
		}
		var cycleErr *CycleError
		if !errors.As(err, &cycleErr) {
			t.Fatalf("expected CycleError, got %T: %v", err, err)
		}
	})
}
