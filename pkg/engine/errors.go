package engine

import "errors"

// TransientError marks a synthesis failure worth retrying: engine overload,
// timeouts, transport faults. Everything else is permanent for the segment
// that triggered it.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string { return e.err.Error() }

func (e *TransientError) Unwrap() error { return e.err }

type PermanentError struct {
	err error
}

func (e *PermanentError) Error() string { return e.err.Error() }

func (e *PermanentError) Unwrap() error { return e.err }

// Transient wraps err as retryable.
func Transient(err error) error { return &TransientError{err: err} }

// Permanent wraps err as final for the segment that caused it.
func Permanent(err error) error { return &PermanentError{err: err} }

func IsTransient(err error) bool {
	var te *TransientError

	return errors.As(err, &te)
}
