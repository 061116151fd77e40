// Package rcerr defines the error taxonomy shared across the dispatch
// pipeline. Sentinel kinds are wrapped with fmt.Errorf("%w", ...) at the
// point of failure so callers can classify with errors.Is while still
// seeing a human-readable message.
package rcerr

import "errors"

// Each sentinel is one of the core's documented error categories.
// Per-job kinds (everything except QueueUnreachable,
// RecordStoreUnreachable, MalformedJob, whose payload is dropped, and
// CleanupError) resolve to a terminal job outcome rather than a process
// crash.
var (
	// ErrQueueUnreachable: fatal at startup, transient at runtime.
	ErrQueueUnreachable = errors.New("queue unreachable")
	// ErrRecordStoreUnreachable: fatal at startup, transient at runtime.
	ErrRecordStoreUnreachable = errors.New("record store unreachable")
	// ErrMalformedJob: dequeued payload is not valid JSON or missing fields.
	ErrMalformedJob = errors.New("malformed job payload")
	// ErrUnsupportedLanguage: language not present in the registry.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrImageUnavailable: sandbox image could not be ensured present.
	ErrImageUnavailable = errors.New("image unavailable")
	// ErrScratchUnavailable: per-job scratch directory could not be allocated.
	ErrScratchUnavailable = errors.New("scratch unavailable")
	// ErrSandboxRuntime: container create/start/wait failure.
	ErrSandboxRuntime = errors.New("sandbox runtime error")
	// ErrDeadlineExceeded: per-job wall-clock timeout fired.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	// ErrCleanupFailed: container remove or scratch release failed.
	// Never surfaced as a job outcome; logged only.
	ErrCleanupFailed = errors.New("cleanup failed")
)
