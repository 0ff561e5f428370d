// Package http provides a fluent, single-URL HTTP requester.
//
// A Requester is configured with chained calls and issues one blocking
// request per Request call:
//   - Query strings, outgoing headers and JSON, form or raw payloads
//   - Typed transport options (timeout, redirects, TLS verification, proxy)
//   - Frozen, single-use instances
//   - Response capture with lowercased multi-valued headers, effective URL,
//     remote address, content type and timing
//   - Diagnostic dumps of the outgoing and incoming side
//
// Transport failures are returned as *TransportError. HTTP error statuses
// are not errors and are inspected with Success, ClientError and ServerError.
package http
