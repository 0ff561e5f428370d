// Package config handles configuration loading and management for requester.
//
// It provides functionality for:
//   - Loading configuration from .requester.json or .requester.yaml files
//   - Default configuration values
//   - REQUESTER_* environment overrides
//   - Conversion into requester settings
package config
