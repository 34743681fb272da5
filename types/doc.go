// Package types defines shared types used across the toolflow engine:
// the structured error taxonomy and tool metadata/result types exchanged
// with external tool registries and invokers.
package types
