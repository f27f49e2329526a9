package model

import "errors"

var (
	// ErrNotFound signals an id or composite-key lookup with no match.
	// An empty filtered list is not ErrNotFound.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation on (user, date, type).
	ErrConflict = errors.New("conflict")
	// ErrCacheUnavailable signals a KV store failure. Cache is an
	// optimization; callers fall through to the repository.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrStorageUnavailable signals a repository connection failure.
	// There is no fallback below the repository, so this propagates.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrGenerationFailed signals that the external generation service
	// failed or returned a malformed payload.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrConfirmationRequired is returned by destructive bulk operations
	// invoked without the explicit confirm flag.
	ErrConfirmationRequired = errors.New("confirmation required")
)
