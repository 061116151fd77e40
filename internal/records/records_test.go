package records

import (
	"context"
	"testing"
	"time"

	"rce-core/pkg/job"
)

func TestNullStoreMarkProcessing(t *testing.T) {
	s := NewNullStore()
	now := time.Now()

	if err := s.MarkProcessing(context.Background(), "job-1", now); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	got, ok := s.Processing["job-1"]
	if !ok {
		t.Fatal("expected job-1 to be recorded as processing")
	}
	if !got.Equal(now) {
		t.Errorf("expected startedAt %v, got %v", now, got)
	}
}

func TestNullStoreMarkTerminal(t *testing.T) {
	s := NewNullStore()
	outcome := job.ExecutionOutcome{Status: job.StatusCompleted, Output: "5050", ExitCode: 0}

	if err := s.MarkTerminal(context.Background(), "job-2", outcome, time.Now()); err != nil {
		t.Fatalf("MarkTerminal: %v", err)
	}
	got, ok := s.Terminal["job-2"]
	if !ok {
		t.Fatal("expected job-2 to be recorded as terminal")
	}
	if got.Status != job.StatusCompleted || got.Output != "5050" {
		t.Errorf("unexpected terminal outcome: %+v", got)
	}
}

func TestRewritingTerminalRecordIsANoop(t *testing.T) {
	s := NewNullStore()
	first := job.ExecutionOutcome{Status: job.StatusCompleted, ExitCode: 0}
	second := job.ExecutionOutcome{Status: job.StatusCompleted, ExitCode: 0}

	if err := s.MarkTerminal(context.Background(), "job-3", first, time.Now()); err != nil {
		t.Fatalf("first MarkTerminal: %v", err)
	}
	if err := s.MarkTerminal(context.Background(), "job-3", second, time.Now()); err != nil {
		t.Fatalf("second MarkTerminal: %v", err)
	}
	if s.Terminal["job-3"].Status != job.StatusCompleted {
		t.Errorf("expected idempotent terminal write to remain completed")
	}
}
