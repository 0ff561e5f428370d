// Package output renders exchanges: a requester dump together with the
// checks and extractions run against it.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON and YAML: one machine-readable document per run
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//
// WriteDump writes a bare requester dump as JSON or YAML.
package output
