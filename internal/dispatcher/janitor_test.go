package dispatcher

import (
	"context"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls int
	swept int
	err   error
}

func (f *fakeSweeper) SweepOrphans(maxAge time.Duration) (int, error) {
	f.calls++
	return f.swept, f.err
}

func TestJanitorSweepsOnTick(t *testing.T) {
	sweeper := &fakeSweeper{swept: 2}
	j := NewJanitor(sweeper, 5*time.Millisecond, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	j.Run(ctx)

	if sweeper.calls == 0 {
		t.Fatal("expected at least one sweep tick to fire")
	}
}

func TestJanitorDisabledWithZeroInterval(t *testing.T) {
	sweeper := &fakeSweeper{}
	j := NewJanitor(sweeper, 0, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	j.Run(ctx)

	if sweeper.calls != 0 {
		t.Fatalf("expected no sweeps with zero interval, got %d", sweeper.calls)
	}
}
