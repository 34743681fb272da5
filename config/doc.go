// Package config provides engine configuration loading.
// Precedence: defaults, then YAML file, then TOOLFLOW_* environment
// variables.
package config
