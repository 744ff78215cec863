package npm

import "errors"

// Error taxonomy for provider calls. Callers branch with errors.Is.
var (
	// ErrNotFound means the package does not exist upstream. Terminal.
	ErrNotFound = errors.New("package not found")
	// ErrUnavailable means a transient network, timeout, or non-2xx failure.
	// The caller records a miss for the point and continues.
	ErrUnavailable = errors.New("registry unavailable")
	// ErrInvalidName means the package name violates the registry grammar.
	// Rejected before any network call.
	ErrInvalidName = errors.New("invalid package name")
)
