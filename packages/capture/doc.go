// Package capture extracts values from captured HTTP responses.
//
// It supports capturing values from:
//   - Response body (gjson paths)
//   - Response headers
//   - Response status code
//   - Request duration
//
// The CLI prints extracted values with --extract name=expr.
package capture
