package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rce-core/pkg/job"
)

// AuditLogger appends one JSON line per execution to a file, for
// operators who want a durable trail of what ran independent of the
// record store. Off by default; enabling it never changes an
// ExecutionOutcome.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	JobID      string    `json:"jobId"`
	Language   string    `json:"language"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exitCode"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
}

// NewAuditLogger opens (creating if necessary) the audit log file at
// path, appending.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return &AuditLogger{file: f}, nil
}

// Log appends one entry, truncating a long error message so a runaway
// stack trace can't grow the log unbounded.
func (l *AuditLogger) Log(entry AuditEntry) {
	if len(entry.Error) > 500 {
		entry.Error = entry.Error[:500] + "..."
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.Write(data)
	l.file.WriteString("\n")
}

// Close flushes and closes the underlying file.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// EnableAuditLog opens path and wires it so every subsequent Execute
// call appends one entry to it.
func (e *Executor) EnableAuditLog(path string) error {
	logger, err := NewAuditLogger(path)
	if err != nil {
		return err
	}
	e.audit = logger
	return nil
}

func (e *Executor) logAudit(j job.Job, outcome job.ExecutionOutcome) {
	if e.audit == nil {
		return
	}
	e.audit.Log(AuditEntry{
		Timestamp:  time.Now(),
		JobID:      j.JobID,
		Language:   j.Language,
		Status:     string(outcome.Status),
		ExitCode:   outcome.ExitCode,
		DurationMs: outcome.ExecutionTime.Milliseconds(),
		Error:      outcome.Error,
	})
}
