package deploy

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Deployer.Deploy wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrUsage         = errors.New("invalid arguments")
	ErrInputNotFound = errors.New("input not found")
	ErrArchive       = errors.New("archive failed")
	ErrUpload        = errors.New("upload failed")
	ErrCredentials   = errors.New("credentials unavailable")
	ErrCleanup       = errors.New("cleanup failed")
)

// Process exit codes per error kind.
const (
	ExitOK          = 0
	ExitUnexpected  = 1
	ExitUsage       = 2
	ExitInput       = 3
	ExitArchive     = 4
	ExitUpload      = 5
	ExitCredentials = 6
)

// Error ties a failure to its kind and the step that produced it.
type Error struct {
	Kind  error
	State State
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UsageError wraps err as an ErrUsage failure raised before any work starts.
func UsageError(err error) error {
	return &Error{Kind: ErrUsage, State: StateValidating, Err: err}
}

// CredentialsError wraps err as an ErrCredentials failure.
func CredentialsError(err error) error {
	return &Error{Kind: ErrCredentials, State: StateValidating, Err: err}
}

func inputNotFound(path string, err error) error {
	return &Error{
		Kind:  ErrInputNotFound,
		State: StateValidating,
		Err:   fmt.Errorf("input not found: %s: %w", path, err),
	}
}

// ExitCode maps an error returned by this package to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrInputNotFound):
		return ExitInput
	case errors.Is(err, ErrArchive):
		return ExitArchive
	case errors.Is(err, ErrUpload):
		return ExitUpload
	case errors.Is(err, ErrCredentials):
		return ExitCredentials
	default:
		return ExitUnexpected
	}
}
