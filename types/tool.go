package types

import "time"

// ToolMetadata describes a tool as registered with an external tool catalog.
type ToolMetadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// ToolOutcome records the result of a single tool invocation within an
// execution, as exposed through execution snapshots and events.
type ToolOutcome struct {
	NodeID     string        `json:"node_id"`
	Result     any           `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	RetryCount int           `json:"retry_count"`
}

// IsError returns true if the invocation failed.
func (o ToolOutcome) IsError() bool {
	return o.Error != ""
}
