package jobqueue

import (
	"errors"
	"fmt"

	"github.com/worklane/worklane/pkg/serrors"
)

var (
	ErrInvalidConfig = serrors.NewError("JOBQUEUE_INVALID_CONFIG", "invalid jobqueue configuration", "")
	ErrJobNotFound   = serrors.NewError("JOBQUEUE_JOB_NOT_FOUND", "job not found", "")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }

func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks a handler error as non-retryable: the job fails immediately
// instead of backing off toward MaxAttempts.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
