// Package cliutil carries small types shared by the CLI entrypoint that do
// not belong to any single domain package: the exit-code error type and the
// exit-code constants.
package cliutil

import "fmt"

const (
	// ExitOK is returned on a successful run.
	ExitOK = 0
	// ExitUsage covers a missing scenario file or a CONFIG error from the
	// scenario loader.
	ExitUsage = 1
	// ExitFailure covers any other failure: I/O errors writing results,
	// failed scenarios in a batch run, etc.
	ExitFailure = 2
)

// ExitError carries a process exit code up through an error chain to main.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *ExitError) Unwrap() error { return e.Err }

// Exit wraps err as an *ExitError with the given code. A nil err still
// produces a non-nil *ExitError, since the caller only reaches for Exit when
// it already knows it must exit non-zero.
func Exit(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}
