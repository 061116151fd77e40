// Package dispatcher is the long-lived consumer loop: it dequeues jobs
// from the work queue, drives the Executor, writes the two submission
// record transitions, and publishes the downstream analysis
// notification. It also holds the janitor orphan sweep. Process
// lifecycle (startup connect, signal handling) lives in cmd/dispatcher.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rce-core/internal/executor"
	"rce-core/internal/logging"
	"rce-core/internal/metrics"
	"rce-core/internal/records"
	"rce-core/pkg/job"
)

// dequeueBackoff bounds how fast pump retries a transient dequeue
// failure (e.g. the queue briefly unreachable), per the documented
// QueueUnreachable contract: stay alive, but don't spin.
const dequeueBackoff = 500 * time.Millisecond

// Queue is the subset of the queue package the Dispatcher depends on,
// declared consumer-side so it can be faked in tests.
type Queue interface {
	Dequeue(ctx context.Context) (job.Job, error)
	PublishAnalysis(ctx context.Context, notification job.AnalysisNotification) error
}

// Dispatcher owns the consume-execute-record-notify loop.
type Dispatcher struct {
	queue   Queue
	store   records.Store
	exec    *executor.Executor
	workers int
}

// New constructs a Dispatcher. workers bounds the number of concurrent
// Executor invocations; 1 reproduces the single-threaded baseline.
func New(q Queue, store records.Store, exec *executor.Executor, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{queue: q, store: store, exec: exec, workers: workers}
}

// Run blocks, dequeuing and processing jobs until ctx is cancelled. It
// returns once every in-flight worker has drained.
func (d *Dispatcher) Run(ctx context.Context) {
	jobs := make(chan job.Job)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx, jobs)
		}()
	}

	d.pump(ctx, jobs)
	close(jobs)
	wg.Wait()
}

// pump blocking-dequeues jobs and fans them out to the worker pool
// until ctx is cancelled.
func (d *Dispatcher) pump(ctx context.Context, jobs chan<- job.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		j, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.L().Error("dequeue failed", zap.Error(err))
			select {
			case <-time.After(dequeueBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case jobs <- j:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, jobs <-chan job.Job) {
	for {
		select {
		case j, ok := <-jobs:
			if !ok {
				return
			}
			d.process(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

// process carries one job through marked-processing -> executed ->
// marked-terminal -> notified, per the dispatcher's documented state
// machine. A failure marking processing skips execution entirely: the
// submission stays in queued and is observable as stuck rather than
// silently losing the record of it having run.
func (d *Dispatcher) process(ctx context.Context, j job.Job) {
	correlationID := uuid.New().String()
	log := logging.WithContext(j.JobID, correlationID).With(zap.String("language", j.Language))

	startedAt := time.Now()
	if err := d.store.MarkProcessing(ctx, j.JobID, startedAt); err != nil {
		log.Error("failed to mark processing, skipping execution", zap.Error(err))
		return
	}

	outcome := d.exec.Execute(ctx, j)
	metrics.Get().RecordCodeExecution(j.Language, string(outcome.Status), outcome.ExecutionTime)

	completedAt := time.Now()
	if err := d.store.MarkTerminal(ctx, j.JobID, outcome, completedAt); err != nil {
		log.Error("failed to mark terminal state", zap.Error(err), zap.String("status", string(outcome.Status)))
		return
	}

	notification := job.AnalysisNotification{JobID: j.JobID, Language: j.Language, Code: j.Code}
	if err := d.queue.PublishAnalysis(ctx, notification); err != nil {
		log.Warn("failed to publish analysis notification", zap.Error(err))
	}

	log.Info("job finished", zap.String("status", string(outcome.Status)), zap.Int("exit_code", outcome.ExitCode))
}
