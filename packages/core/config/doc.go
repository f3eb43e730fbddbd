// Package config handles configuration loading and management for the
// formstream CLI.
//
// It provides functionality for:
//   - Loading configuration from .formstream.yaml, .formstream.yml or
//     .formstream.json files
//   - Default configuration values
//   - Merging command line overrides over file values
package config
