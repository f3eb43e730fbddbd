// Package form loads form definition files and turns them into multipart
// producers.
//
// A definition is YAML (or JSON) listing scalar values and files to
// attach. Definitions are validated against a JSON schema before use, and
// file paths are resolved relative to the definition and may not leave its
// directory.
package form
