// Package env resolves {{...}} placeholders in form values.
//
// It provides functionality for:
//   - Loading variables from .env files
//   - Parsing name=value assignments from the command line
//   - Placeholder interpolation of variables, environment variables and
//     builtin function calls
package env
