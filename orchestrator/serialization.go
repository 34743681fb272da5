package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToJSON converts a WorkflowDefinition to an indented JSON string.
func (w *WorkflowDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a WorkflowDefinition to a YAML string.
func (w *WorkflowDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// FromJSON decodes and validates a WorkflowDefinition from JSON.
func FromJSON(data []byte) (*WorkflowDefinition, error) {
	var wf WorkflowDefinition
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	if err := NewGraphValidator().Validate(&wf); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &wf, nil
}

// FromYAML decodes and validates a WorkflowDefinition from YAML.
func FromYAML(data []byte) (*WorkflowDefinition, error) {
	var wf WorkflowDefinition
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	if err := NewGraphValidator().Validate(&wf); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &wf, nil
}

// LoadFromFile loads a WorkflowDefinition from a YAML or JSON file, selected
// by extension.
func LoadFromFile(filename string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported workflow file extension: %s", filepath.Ext(filename))
	}
}
