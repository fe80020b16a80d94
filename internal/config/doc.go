// Package config provides centralized configuration management for the
// MCPF-Flow runtime. Configuration is loaded from a JSON file whose path is
// taken from the MCPF_CONFIG environment variable or a command line flag, and
// sensible defaults are applied for omitted sections.
package config
