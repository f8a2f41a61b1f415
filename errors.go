package marionette

import "errors"

// Error taxonomy. Recoverable errors surface through query results wrapped
// with %w; callers match with errors.Is. ErrDoubleRelease and
// ErrDuplicateCompletion indicate API misuse or an internal bug and are
// raised as panics at the offending call site, never returned.
var (
	// ErrInvalidHandle is returned when a command references a handle that
	// was never allocated, was already freed, or has the wrong kind.
	ErrInvalidHandle = errors.New("marionette: invalid handle")

	// ErrDisposed is returned for operations attempted after, or racing
	// with, queue teardown.
	ErrDisposed = errors.New("marionette: queue disposed")

	// ErrMalformedResource is returned when the engine rejects loaded
	// content as structurally broken.
	ErrMalformedResource = errors.New("marionette: malformed resource")

	// ErrUnsupportedVersion is returned when loaded content declares a
	// format version newer than the engine supports.
	ErrUnsupportedVersion = errors.New("marionette: unsupported content version")

	// ErrDoubleRelease is the panic value raised when Release is called
	// more times than Acquire. The count is left uncorrupted.
	ErrDoubleRelease = errors.New("marionette: release of queue with zero references")

	// ErrDuplicateCompletion is the panic value raised when a pending
	// result is resolved twice. This is an internal invariant violation.
	ErrDuplicateCompletion = errors.New("marionette: pending result resolved twice")
)
