// Package cmd implements the formstream CLI commands using Cobra.
//
// Available commands:
//   - encode: Write the multipart body of a form definition
//   - length: Print the computed Content-Length without encoding
//   - post: Upload a form with a streamed body, optionally re-posting on change
//   - bench: Encode a form repeatedly and report latency percentiles
//   - version: Show formstream version information
//
// Settings come from a .formstream.yaml config file, FORMSTREAM_* environment
// variables and flags, in increasing order of precedence.
package cmd
