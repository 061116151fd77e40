package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rce-core/internal/logging"
	"rce-core/internal/metrics"
)

// ScratchSweeper is the subset of the scratch Manager the janitor needs.
type ScratchSweeper interface {
	SweepOrphans(maxAge time.Duration) (int, error)
}

// Janitor periodically removes scratch directories left behind by a
// process that crashed between allocate and release, per spec.md
// §4.2's "a janitor may sweep leaked directories" note.
type Janitor struct {
	sweeper  ScratchSweeper
	interval time.Duration
	maxAge   time.Duration
}

// NewJanitor constructs a Janitor. interval controls the sweep cadence;
// maxAge is how old an orphaned directory must be before it is swept.
func NewJanitor(sweeper ScratchSweeper, interval, maxAge time.Duration) *Janitor {
	return &Janitor{sweeper: sweeper, interval: interval, maxAge: maxAge}
}

// Run blocks, sweeping on every tick until ctx is cancelled. A zero
// interval disables the janitor entirely.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *Janitor) sweep() {
	swept, err := j.sweeper.SweepOrphans(j.maxAge)
	if err != nil {
		logging.L().Warn("janitor sweep failed", zap.Error(err))
		return
	}
	for i := 0; i < swept; i++ {
		metrics.Get().RecordOrphanSwept()
	}
	if swept > 0 {
		logging.L().Info("janitor swept orphaned scratch directories", zap.Int("count", swept))
	}
}
