// Package syncerr defines the daemon's closed error taxonomy.
//
// The poll loop classifies every error it sees against these sentinels
// with errors.Is, and picks a policy from there (retry, halt the
// batch, skip the change, or exit). Handlers and stores should wrap
// one of these with fmt.Errorf("...: %w", err) rather than returning
// ad hoc errors, so the loop's classification stays exhaustive.
package syncerr

import "errors"

var (
	// ErrHostStoreLocked is a transient lock on the watched database.
	// Policy: retry the select indefinitely with backoff.
	ErrHostStoreLocked = errors.New("syncerr: watched database is locked")

	// ErrHostStoreError is any other error selecting change rows.
	// Policy: fatal to the poll loop.
	ErrHostStoreError = errors.New("syncerr: watched database error")

	// ErrRemoteCallFailed is a retryable failure signaled by the
	// remote client. Policy: halt the batch, retry the same change
	// next cycle.
	ErrRemoteCallFailed = errors.New("syncerr: remote call failed")

	// ErrUnmapped is raised when a handler needs a remote id that has
	// never been recorded in the Id Map Store. Policy: non-retryable
	// for this change; log and advance past it.
	ErrUnmapped = errors.New("syncerr: local id has no remote mapping")

	// ErrHandlerBug is an unexpected handler failure: a panic recovered
	// from a handler (with its stack trace), a change_type with no
	// handler, or an unknown HandlerResult action. Policy:
	// non-retryable; log and advance past it.
	ErrHandlerBug = errors.New("syncerr: handler bug")

	// ErrCursorWriteFailed is an I/O error writing the cursor file.
	// Policy: log loudly, continue — idempotent handlers make replay
	// safe.
	ErrCursorWriteFailed = errors.New("syncerr: failed to write cursor")

	// ErrIdMapWriteFailed is an I/O error applying a HandlerResult to
	// the Id Map Store. Policy: treat as ErrRemoteCallFailed (halt the
	// batch) — replay is safer than proceeding with a stale mapping.
	ErrIdMapWriteFailed = errors.New("syncerr: failed to update id map")

	// ErrConfigCorrupt is a missing or unparseable config or cursor
	// file. Policy: fatal at startup.
	ErrConfigCorrupt = errors.New("syncerr: config is missing or corrupt")

	// ErrUnmappedItem is returned by the Id Map Store itself when a
	// lookup finds no row. Handlers should translate this into
	// ErrUnmapped when surfacing it to the dispatcher.
	ErrUnmappedItem = errors.New("syncerr: no id map entry")
)

// Retryable reports whether err should halt the current batch and be
// retried on the next poll cycle, rather than being skipped past.
func Retryable(err error) bool {
	return errors.Is(err, ErrRemoteCallFailed) || errors.Is(err, ErrIdMapWriteFailed)
}

// Fatal reports whether err should terminate the poll loop entirely.
func Fatal(err error) bool {
	return errors.Is(err, ErrHostStoreError) || errors.Is(err, ErrConfigCorrupt)
}
