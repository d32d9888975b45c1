package backend

import (
	"errors"
	"fmt"
)

// ErrResponsesExhausted is the cause reported by a pop-mode fake backend once
// every configured response has been consumed. It is fatal: retrying cannot
// produce more responses.
var ErrResponsesExhausted = errors.New("fake backend responses exhausted")

// ConfigError reports an invalid backend configuration. It is raised only at
// construction time and is never retryable.
type ConfigError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "backend config: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// FaultClass classifies a single call failure and determines retry eligibility.
type FaultClass int

const (
	// FaultTransient marks failures worth retrying: network errors, timeouts,
	// rate limits, server-side errors.
	FaultTransient FaultClass = iota
	// FaultFatal marks failures retrying cannot fix: authentication,
	// validation, exhausted fake responses.
	FaultFatal
)

// String returns the string representation of the fault class.
func (c FaultClass) String() string {
	if c == FaultFatal {
		return "fatal"
	}
	return "transient"
}

// Fault is the per-attempt failure surfaced by Resolved.Invoke. It carries
// the raw cause and its retry classification. Faults never cross the
// invocation wrapper boundary; callers of Generate only ever see
// invoke.BackendError.
type Fault struct {
	Cause error
	Class FaultClass
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("backend fault (%s): %v", f.Class, f.Cause)
}

// Unwrap exposes the raw cause for errors.Is / errors.As.
func (f *Fault) Unwrap() error { return f.Cause }

// Transient reports whether the fault is eligible for retry.
func (f *Fault) Transient() bool { return f.Class == FaultTransient }

// NewTransientFault wraps err as a retryable fault.
func NewTransientFault(err error) *Fault {
	return &Fault{Cause: err, Class: FaultTransient}
}

// NewFatalFault wraps err as a non-retryable fault.
func NewFatalFault(err error) *Fault {
	return &Fault{Cause: err, Class: FaultFatal}
}

// ClassifyStatus maps an HTTP status code from a provider SDK error to a
// fault class. Request timeouts, rate limits and server-side errors are
// transient; the remaining client errors (auth, validation, unknown model)
// are fatal.
func ClassifyStatus(code int) FaultClass {
	switch {
	case code == 408 || code == 429:
		return FaultTransient
	case code >= 500:
		return FaultTransient
	default:
		return FaultFatal
	}
}
