// Package config loads rewind configuration from JSON or YAML files with
// REWIND_* environment-variable overrides, and resolves the default data
// directory per OS.
package config
