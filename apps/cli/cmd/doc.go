// Package cmd implements the requester CLI commands using Cobra.
//
// Available commands:
//   - request: Send one request built from flags and show the response
//   - get, post, put, patch, delete, head: Shortcuts for request
//   - stress: Send the same request repeatedly and report latency
//   - history: List, show and prune exchanges saved with --history
//   - import curl: Convert curl commands into requester commands
//   - version: Show requester version information
//   - completion: Generate shell completion scripts
//
// Responses can be checked with --expect and --schema, values pulled out
// with --extract, compared with a recorded --snapshot, and the full exchange
// printed with --dump. {{placeholders}} in the URL, headers and body are
// filled from --var, --env-file, the config file and built-in functions. The exit code
// tells checks, network and configuration failures apart.
package cmd
