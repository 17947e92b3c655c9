// Package config handles configuration loading for orchestra-console.
//
// # Overview
//
// Configuration is resolved once at startup from three layers, lowest
// priority first: built-in defaults, an optional YAML file with environment
// variable expansion, and environment variable overrides. A .env file in the
// working directory is loaded before resolution when present.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ORCHESTRA_CONFIG environment variable
//  2. ~/.config/orchestra-console/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	api:
//	  base_url: ${ORCHESTRA_BACKEND}
//
// # Environment Overrides
//
// Every tunable has a direct override (ORCHESTRA_API_URL,
// ORCHESTRA_REQUEST_TIMEOUT, ...); see the Env* constants. Duration
// overrides use Go duration syntax ("30s", "5m").
package config
