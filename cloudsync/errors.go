package cloudsync

import "errors"

var (
	// ErrNotFound reports a 404 from the remote API.
	ErrNotFound = errors.New("cloud entry not found")

	// ErrUnauthorized reports a 401/403 from the remote API. Operations
	// short-circuit on it; there is no re-authentication or retry here.
	ErrUnauthorized = errors.New("not authenticated")

	// ErrConflict reports a 409 from the remote API, raised when an
	// if_unmodified_since precondition fails server-side.
	ErrConflict = errors.New("remote entry modified concurrently")

	// ErrSessionLocked reports that a cloud operation needs the encryption
	// session unlocked and it is not. A precondition failure, not retried.
	ErrSessionLocked = errors.New("encryption session is locked")

	// ErrSyncInProgress reports that a bulk sweep is already running.
	ErrSyncInProgress = errors.New("a sync is already in progress")
)
