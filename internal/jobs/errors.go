package jobs

import (
	"errors"

	"github.com/dvloznov/grocery-tracker/internal/domain"
)

var (
	// ErrQueueClosed is returned when publishing to a stopped queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrQueueFull is returned when the queue buffer is exhausted.
	ErrQueueFull = errors.New("queue is full")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retryable reports whether a failed job should be attempted again.
// Only transient upstream failures qualify.
func Retryable(err error) bool {
	return err != nil && !IsPermanent(err) && domain.IsTransient(err)
}
