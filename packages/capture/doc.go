// Package capture extracts values from upload responses.
//
// It supports capturing values from:
//   - Response body (gjson paths)
//   - Response headers
//   - Response status code and duration
//
// Captures are written on the command line as name=source:path, for
// example id=body:data.id or etag=header:ETag.
package capture
