package domain

import "errors"

// Error kinds shared across adapters, storage and the HTTP layer.
// Callers wrap them with fmt.Errorf("...: %w", ErrX) and classify with errors.Is.
var (
	// ErrNetwork means an upstream service was unreachable, timed out or answered with a server error.
	ErrNetwork = errors.New("upstream network failure")
	// ErrAuth means the credentials for an upstream service were missing or rejected.
	ErrAuth = errors.New("upstream authentication failure")
	// ErrMalformedResponse means an upstream answer could not be parsed.
	ErrMalformedResponse = errors.New("malformed upstream response")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation means the input was rejected before any work was done.
	ErrValidation = errors.New("validation failed")
	// ErrStore means a document-store operation failed.
	ErrStore = errors.New("store failure")
	// ErrConflict means a guarded write lost a race or would break a uniqueness rule.
	ErrConflict = errors.New("conflict")
)

// IsUpstream reports whether err originated in an external adapter.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrAuth) || errors.Is(err, ErrMalformedResponse)
}

// IsTransient reports whether retrying the failed operation may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork)
}
