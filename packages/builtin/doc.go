// Package builtin provides the functions available inside form value
// placeholders.
//
// Available functions:
//   - uuid(): Random UUID v4
//   - now(): Current UTC time in RFC 3339
//   - date(layout): Current UTC date, 2006-01-02 by default
//   - timestamp(), timestampMs(): Unix time in seconds or milliseconds
//   - random(min, max): Random integer in range, inclusive
//   - randomString(length): Random alphanumeric string
//   - base64(value), sha256(value): Encodings of a literal argument
//
// Functions are invoked as {{uuid()}} in form values, filenames and
// request headers.
package builtin
