// Package http provides the HTTP client used to upload multipart bodies.
//
// It wraps the standard library's http package with additional features:
//   - Configurable timeouts
//   - Redirect handling
//   - Proxy and TLS verification settings
//   - Streaming multipart/form-data request bodies with backpressure
//   - Response handling and body reading
package http
