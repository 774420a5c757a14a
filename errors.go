// ABOUTME: Error kinds surfaced by garmin-report commands.
// ABOUTME: Every CLIError is rendered as a single {"error": ...} line on stdout.

package main

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	SessionMissing    ErrorKind = "SessionMissing"
	SessionInvalid    ErrorKind = "SessionInvalid"
	ConfigMissing     ErrorKind = "ConfigMissing"
	DependencyMissing ErrorKind = "DependencyMissing"
	LoginFailed       ErrorKind = "LoginFailed"
	FetchFailed       ErrorKind = "FetchFailed"
	InvalidArgument   ErrorKind = "InvalidArgument"
	UnknownCommand    ErrorKind = "UnknownCommand"
)

// CLIError is a terminal error for the current invocation.
type CLIError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *CLIError) Error() string { return e.Msg }

func (e *CLIError) Unwrap() error { return e.Err }

func newError(kind ErrorKind, cause error, format string, args ...any) *CLIError {
	return &CLIError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// kindOf returns the kind of err, or the empty kind for errors that did not
// originate in a command.
func kindOf(err error) ErrorKind {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Kind
	}
	return ""
}

// consumerError marks an OAuth consumer bundle that is missing or malformed.
// The vendor session cannot be built without it.
type consumerError struct {
	err error
}

func (e *consumerError) Error() string {
	return fmt.Sprintf("OAuth consumer credentials unavailable: %v", e.err)
}

func (e *consumerError) Unwrap() error { return e.err }

func isConsumerError(err error) bool {
	var ce *consumerError
	return errors.As(err, &ce)
}
