package orchestrator

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle found during validation. Path holds
// the node ids along the cycle, ending at the node that closed it.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in workflow graph: %s", strings.Join(e.Path, " -> "))
}

// UnknownReferenceError reports a dependency or edge endpoint that names a
// node id not present in the workflow.
type UnknownReferenceError struct {
	NodeID    string
	Reference string
}

func (e *UnknownReferenceError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %q references unknown node %q", e.NodeID, e.Reference)
	}
	return fmt.Sprintf("edge references unknown node %q", e.Reference)
}

// DuplicateEdgeError reports two edges between the same ordered node pair.
type DuplicateEdgeError struct {
	From string
	To   string
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate edge %q -> %q", e.From, e.To)
}

// GraphValidator checks a workflow definition for referential integrity and
// cycles before it is loaded. Execution never proceeds on a workflow that
// fails validation.
type GraphValidator struct{}

// NewGraphValidator creates a validator.
func NewGraphValidator() *GraphValidator {
	return &GraphValidator{}
}

// Validate checks the workflow and returns the first problem found:
// duplicate node ids, unknown references, duplicate edges, or cycles.
func (v *GraphValidator) Validate(wf *WorkflowDefinition) error {
	if wf == nil {
		return fmt.Errorf("workflow cannot be nil")
	}
	if wf.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	if len(wf.Tools) == 0 {
		return fmt.Errorf("workflow %q has no tools", wf.ID)
	}
	if wf.Config.MaxParallel <= 0 {
		return fmt.Errorf("workflow %q: max_parallel must be > 0", wf.ID)
	}

	ids := make(map[string]bool, len(wf.Tools))
	for _, n := range wf.Tools {
		if n.ID == "" {
			return fmt.Errorf("workflow %q contains a tool with empty id", wf.ID)
		}
		if ids[n.ID] {
			return fmt.Errorf("workflow %q contains duplicate tool id %q", wf.ID, n.ID)
		}
		ids[n.ID] = true
	}

	// Referential integrity: declared dependencies and edge endpoints must
	// name existing nodes.
	for _, n := range wf.Tools {
		for _, dep := range n.Dependencies {
			if !ids[dep] {
				return &UnknownReferenceError{NodeID: n.ID, Reference: dep}
			}
		}
	}
	seenEdges := make(map[[2]string]bool, len(wf.Edges))
	for _, e := range wf.Edges {
		if !ids[e.From] {
			return &UnknownReferenceError{Reference: e.From}
		}
		if !ids[e.To] {
			return &UnknownReferenceError{Reference: e.To}
		}
		key := [2]string{e.From, e.To}
		if seenEdges[key] {
			return &DuplicateEdgeError{From: e.From, To: e.To}
		}
		seenEdges[key] = true
	}

	return v.detectCycles(wf)
}

// detectCycles walks the dependency graph depth-first with a recursion stack
// per node; a back-edge into a node currently on the stack is a cycle.
func (v *GraphValidator) detectCycles(wf *WorkflowDefinition) error {
	visited := make(map[string]bool, len(wf.Tools))
	onStack := make(map[string]bool, len(wf.Tools))

	// adjacency: node -> downstream nodes
	next := make(map[string][]string, len(wf.Tools))
	for _, n := range wf.Tools {
		for _, dep := range wf.EffectiveDependencies(n.ID) {
			next[dep] = append(next[dep], n.ID)
		}
	}

	var path []string
	var walk func(id string) *CycleError
	walk = func(id string) *CycleError {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		for _, succ := range next[id] {
			if onStack[succ] {
				// Trim the path to the start of the cycle and close it.
				start := 0
				for i, p := range path {
					if p == succ {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), succ)
				return &CycleError{Path: cycle}
			}
			if !visited[succ] {
				if err := walk(succ); err != nil {
					return err
				}
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, n := range wf.Tools {
		if !visited[n.ID] {
			if err := walk(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
