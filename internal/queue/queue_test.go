package queue

import (
	"errors"
	"testing"

	"rce-core/internal/rcerr"
)

func TestNewRejectsInvalidURL(t *testing.T) {
	_, err := New("not-a-valid-redis-url", "submission_queue", "analysis_queue")
	if err == nil {
		t.Fatal("expected an error for an invalid QUEUE_URL")
	}
	if !errors.Is(err, rcerr.ErrQueueUnreachable) {
		t.Errorf("expected ErrQueueUnreachable, got %v", err)
	}
}
