package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rce-core/internal/registry"
	"rce-core/internal/sandboxrt"
	"rce-core/internal/scratch"
	"rce-core/pkg/job"
)

// fakeRuntime is a deterministic, in-memory stand-in for the Docker
// runtime adapter, letting the Executor's control flow be tested
// without a container runtime.
type fakeRuntime struct {
	ensureImageErr error
	createErr      error
	startErr       error
	waitResult     sandboxrt.WaitResult
	waitErr        error
	stdout, stderr string
	logsErr        error
	removeCalled   bool
	killCalled     bool

	blockUntilCtxDone bool
}

func (f *fakeRuntime) EnsureImage(ctx context.Context, ref string) error { return f.ensureImageErr }

func (f *fakeRuntime) Create(ctx context.Context, spec sandboxrt.Spec) (sandboxrt.Handle, error) {
	if f.createErr != nil {
		return sandboxrt.Handle{}, f.createErr
	}
	return sandboxrt.Handle{ID: "container-1", Name: spec.Name}, nil
}

func (f *fakeRuntime) Start(ctx context.Context, h sandboxrt.Handle) error { return f.startErr }

func (f *fakeRuntime) Wait(ctx context.Context, h sandboxrt.Handle) (sandboxrt.WaitResult, error) {
	if f.blockUntilCtxDone {
		<-ctx.Done()
		return sandboxrt.WaitResult{Cancelled: true}, nil
	}
	return f.waitResult, f.waitErr
}

func (f *fakeRuntime) Kill(ctx context.Context, h sandboxrt.Handle) error {
	f.killCalled = true
	return nil
}

func (f *fakeRuntime) Logs(ctx context.Context, h sandboxrt.Handle) (string, string, error) {
	return f.stdout, f.stderr, f.logsErr
}

func (f *fakeRuntime) Remove(ctx context.Context, h sandboxrt.Handle) error {
	f.removeCalled = true
	return nil
}

func newTestExecutor(t *testing.T, rt Runtime) *Executor {
	t.Helper()
	scr, err := scratch.NewManager(t.TempDir(), "/code")
	require.NoError(t, err)
	return New(registry.New(), scr, rt)
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	exec := newTestExecutor(t, &fakeRuntime{})
	outcome := exec.Execute(context.Background(), job.Job{JobID: "j1", Language: "brainfuck", Code: "+"})

	assert.Equal(t, job.StatusFailed, outcome.Status)
	assert.Equal(t, 1, outcome.ExitCode)
	assert.NotEmpty(t, outcome.Error)
}

func TestExecuteCompletedSuccess(t *testing.T) {
	rt := &fakeRuntime{
		waitResult: sandboxrt.WaitResult{ExitCode: 0},
		stdout:     "5050\n",
	}
	exec := newTestExecutor(t, rt)
	outcome := exec.Execute(context.Background(), job.Job{JobID: "j2", Language: "python", Code: "print(sum(range(1,101)))"})

	require.Equal(t, job.StatusCompleted, outcome.Status, outcome.Error)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, "5050", outcome.Output)
	assert.True(t, rt.removeCalled, "expected container remove to be called")
}

func TestExecuteNonZeroExitIsFailed(t *testing.T) {
	rt := &fakeRuntime{
		waitResult: sandboxrt.WaitResult{ExitCode: 1},
		stderr:     "ZeroDivisionError: division by zero",
	}
	exec := newTestExecutor(t, rt)
	outcome := exec.Execute(context.Background(), job.Job{JobID: "j3", Language: "python", Code: "1/0"})

	require.Equal(t, job.StatusFailed, outcome.Status)
	assert.Equal(t, 1, outcome.ExitCode)
	assert.NotEmpty(t, outcome.Output)
}

func TestExecuteTimeout(t *testing.T) {
	rt := &fakeRuntime{blockUntilCtxDone: true}
	exec := newTestExecutor(t, rt)

	// The child context derived inside Execute takes whichever deadline
	// fires first; a short parent deadline lets this test exercise the
	// timeout path without waiting out python's full 5s registry timeout.
	parentCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := exec.Execute(parentCtx, job.Job{JobID: "j4", Language: "python", Code: "while True: pass"})

	require.Equal(t, job.StatusTimeout, outcome.Status, outcome.Error)
	assert.Equal(t, job.TimeoutExitCode, outcome.ExitCode)
	assert.Equal(t, timeoutOutput, outcome.Output)
	assert.True(t, rt.killCalled, "expected kill to be called on timeout")
}

func TestExecuteCreateFailure(t *testing.T) {
	rt := &fakeRuntime{createErr: errors.New("name already in use")}
	exec := newTestExecutor(t, rt)
	outcome := exec.Execute(context.Background(), job.Job{JobID: "j5", Language: "python", Code: "print(1)"})

	require.Equal(t, job.StatusFailed, outcome.Status)
	assert.NotEmpty(t, outcome.Error)
}
