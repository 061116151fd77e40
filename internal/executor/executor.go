// Package executor is the heart of the dispatch pipeline: given a job,
// it composes the Language Registry, Scratch Manager, and Sandbox
// Runtime Adapter to produce a terminal ExecutionOutcome, owning
// timeout enforcement and cleanup ordering end to end.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rce-core/internal/logging"
	"rce-core/internal/registry"
	"rce-core/internal/sandboxrt"
	"rce-core/internal/scratch"
	"rce-core/pkg/job"
)

const (
	timeoutOutput  = "Execution timed out. Your code took too long to execute."
	scriptBaseName = "script"
	containerAge   = 10 * time.Second
)

// Runtime is the subset of the Sandbox Runtime Adapter the Executor
// needs. Declared here (consumer side) so tests can supply a fake
// without importing the Docker SDK.
type Runtime interface {
	EnsureImage(ctx context.Context, ref string) error
	Create(ctx context.Context, spec sandboxrt.Spec) (sandboxrt.Handle, error)
	Start(ctx context.Context, h sandboxrt.Handle) error
	Wait(ctx context.Context, h sandboxrt.Handle) (sandboxrt.WaitResult, error)
	Kill(ctx context.Context, h sandboxrt.Handle) error
	Logs(ctx context.Context, h sandboxrt.Handle) (stdout, stderr string, err error)
	Remove(ctx context.Context, h sandboxrt.Handle) error
}

// Executor ties the registry, scratch manager, and sandbox runtime
// together into the single execute() entry point.
type Executor struct {
	registry      *registry.Registry
	scratch       *scratch.Manager
	runtime       Runtime
	audit         *AuditLogger
	removeTimeout time.Duration
}

// New constructs an Executor from its three collaborators.
func New(reg *registry.Registry, scr *scratch.Manager, rt Runtime) *Executor {
	return &Executor{registry: reg, scratch: scr, runtime: rt, removeTimeout: containerAge}
}

// SetRemoveTimeout overrides the fresh context duration used for
// container removal and kill during cleanup. Defaults to the spec's
// literal 10 seconds.
func (e *Executor) SetRemoveTimeout(d time.Duration) {
	if d > 0 {
		e.removeTimeout = d
	}
}

// Execute runs job j to a terminal outcome. It never returns an error:
// every failure mode is represented as a job.ExecutionOutcome so the
// Dispatcher always has something to write to the record store.
func (e *Executor) Execute(parentCtx context.Context, j job.Job) (outcome job.ExecutionOutcome) {
	start := time.Now()
	elapsed := func() time.Duration { return time.Since(start) }
	defer func() { e.logAudit(j, outcome) }()

	// Step 1: validate language.
	spec, ok := e.registry.Lookup(j.Language)
	if !ok {
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("unsupported language: %s", j.Language),
		}
	}

	// Step 2: derive timeout context, honoring the parent cancellation scope.
	execCtx, cancel := context.WithTimeout(parentCtx, spec.Timeout)
	defer cancel()

	var cleanup cleanupStack
	defer cleanup.run()

	// Step 3: ensure image.
	if err := e.runtime.EnsureImage(execCtx, spec.Image); err != nil {
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to pull image: %v", err),
		}
	}

	// Step 4: allocate scratch.
	slot, err := e.scratch.Allocate(j.JobID)
	if err != nil {
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to allocate scratch: %v", err),
		}
	}
	// release happens after container removal: registered first so it
	// runs last (cleanupStack unwinds LIFO).
	cleanup.register(func() { e.scratch.Release(slot) })

	// Step 5: materialize code.
	filename := scriptBaseName + spec.Extension
	if err := e.scratch.WriteCode(slot, filename, []byte(j.Code)); err != nil {
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to write code: %v", err),
		}
	}

	// Step 6: create container with deterministic name.
	containerSpec := sandboxrt.Spec{
		Name:        "rce-exec-" + j.JobID,
		Image:       spec.Image,
		Executor:    spec.Executor,
		Language:    j.Language,
		ScriptPath:  slot.SandboxPath + "/" + filename,
		HostCodeDir: slot.HostPath,
		WorkDir:     slot.SandboxPath,
	}
	handle, err := e.runtime.Create(execCtx, containerSpec)
	if err != nil {
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to create container: %v", err),
		}
	}

	// Step 7: register cleanup. Container remove runs before scratch
	// release because it was registered after (LIFO unwind).
	cleanup.register(func() {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), e.removeTimeout)
		defer removeCancel()
		if err := e.runtime.Remove(removeCtx, handle); err != nil {
			logging.L().Warn("container cleanup failed",
				zap.String("job_id", j.JobID), zap.String("container", handle.Name), zap.Error(err))
		}
	})

	// Step 8: start container.
	if err := e.runtime.Start(execCtx, handle); err != nil {
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to start container: %v", err),
		}
	}

	// Step 9: wait.
	waitResult, waitErr := e.runtime.Wait(execCtx, handle)

	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	parentCancelled := !timedOut && execCtx.Err() != nil

	switch {
	case waitErr != nil && timedOut:
		return e.finishTimeout(j, handle, elapsed())
	case waitErr != nil:
		return job.ExecutionOutcome{
			Status:        job.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("container wait failed: %v", waitErr),
		}
	case waitResult.Cancelled && timedOut:
		return e.finishTimeout(j, handle, elapsed())
	case waitResult.Cancelled && parentCancelled:
		return e.finishCancelled(j, handle, elapsed())
	}

	// Step 11: retrieve and demux logs for a normal exit.
	stdout, stderr, logErr := e.runtime.Logs(context.Background(), handle)
	output := combineStreams(stdout, stderr)

	exitCode := int(waitResult.ExitCode)
	if exitCode == 0 {
		completedOutcome := job.ExecutionOutcome{
			Status:        job.StatusCompleted,
			Output:        output,
			ExitCode:      0,
			ExecutionTime: elapsed(),
		}
		if logErr != nil {
			completedOutcome.Output = ""
			completedOutcome.Error = fmt.Sprintf("log retrieval failed: %v", logErr)
		}
		return completedOutcome
	}

	failedOutcome := job.ExecutionOutcome{
		Status:        job.StatusFailed,
		Output:        output,
		ExitCode:      exitCode,
		ExecutionTime: elapsed(),
	}
	if logErr != nil {
		failedOutcome.Output = ""
		failedOutcome.Error = fmt.Sprintf("log retrieval failed: %v", logErr)
	}
	return failedOutcome
}

// finishTimeout issues a kill on a fresh context (so the kill itself is
// not aborted by the context that just expired), discards logs so
// runtime buffers drain, and returns the canned timeout outcome.
func (e *Executor) finishTimeout(j job.Job, handle sandboxrt.Handle, elapsed time.Duration) job.ExecutionOutcome {
	killCtx, killCancel := context.WithTimeout(context.Background(), e.removeTimeout)
	defer killCancel()
	if err := e.runtime.Kill(killCtx, handle); err != nil {
		logging.L().Warn("timeout kill failed", zap.String("job_id", j.JobID), zap.Error(err))
	}
	// Drain logs so the runtime's buffers don't back up, but discard
	// them: the canned message is returned regardless of content.
	_, _, _ = e.runtime.Logs(killCtx, handle)

	return job.ExecutionOutcome{
		Status:        job.StatusTimeout,
		Output:        timeoutOutput,
		ExitCode:      job.TimeoutExitCode,
		ExecutionTime: elapsed,
		Error:         fmt.Sprintf("execution exceeded %s limit", timeoutDurationHint(elapsed)),
	}
}

// finishCancelled handles parent-scope cancellation (process shutdown)
// distinct from a per-job deadline: best-effort logs, status failed.
func (e *Executor) finishCancelled(j job.Job, handle sandboxrt.Handle, elapsed time.Duration) job.ExecutionOutcome {
	killCtx, killCancel := context.WithTimeout(context.Background(), e.removeTimeout)
	defer killCancel()
	if err := e.runtime.Kill(killCtx, handle); err != nil {
		logging.L().Warn("cancellation kill failed", zap.String("job_id", j.JobID), zap.Error(err))
	}
	stdout, stderr, _ := e.runtime.Logs(killCtx, handle)

	return job.ExecutionOutcome{
		Status:        job.StatusFailed,
		Output:        combineStreams(stdout, stderr),
		ExitCode:      1,
		ExecutionTime: elapsed,
		Error:         "cancelled",
	}
}

// combineStreams concatenates stdout then stderr, separated by a
// newline only when stdout is non-empty and not already terminated,
// then right-trims whitespace.
func combineStreams(stdout, stderr string) string {
	var b strings.Builder
	b.WriteString(stdout)
	if stderr != "" {
		if stdout != "" && !strings.HasSuffix(stdout, "\n") {
			b.WriteString("\n")
		}
		b.WriteString(stderr)
	}
	return strings.TrimRight(b.String(), " \t\r\n")
}

func timeoutDurationHint(elapsed time.Duration) string {
	return elapsed.Round(time.Second).String()
}
