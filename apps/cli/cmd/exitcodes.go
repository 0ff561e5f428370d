package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/requester/packages/http"
)

// Exit codes for the requester CLI
const (
	// ExitSuccess indicates the request completed and every check passed
	ExitSuccess = 0

	// ExitTestFailure indicates a failed check, a failed threshold or,
	// with --fail, a response outside 2xx
	ExitTestFailure = 1

	// ExitParseError indicates an --expect or --extract expression that
	// could not be parsed
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates a network/connection error
	ExitNetworkError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// ExitError carries the exit code for an error returned by a command.
// Silent errors have already been reported to the user.
type ExitError struct {
	Code   int
	Err    error
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsageError, Err: err}
}

// exitCode maps an error returned by a command to a process exit code
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var transportErr *http.TransportError
	if errors.As(err, &transportErr) {
		return ExitNetworkError
	}
	var configErr *http.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitConfigError
	}
	return ExitTestFailure
}
