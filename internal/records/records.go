// Package records is the submission-record store: the external,
// persistent document the core mutates twice per job (queued →
// processing, then processing → terminal), keyed by jobId.
package records

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rce-core/internal/rcerr"
	"rce-core/pkg/job"
)

// SubmissionRecord is the GORM model backing the submission-record
// store. It is keyed by JobID rather than an auto-increment primary
// key because the core never creates rows, only updates ones the
// submission API already wrote.
type SubmissionRecord struct {
	JobID       string `gorm:"primaryKey;column:job_id"`
	Status      string `gorm:"column:status"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Output      string `gorm:"column:output;type:text"`
	ExitCode    int    `gorm:"column:exit_code"`
	ExecutionMs int64  `gorm:"column:execution_ms"`
	Error       string `gorm:"column:error;type:text"`
}

func (SubmissionRecord) TableName() string { return "submission_records" }

// Store is the Dispatcher's view of the record store: two partial
// updates per job, set-only, never unsetting a field.
type Store interface {
	MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) error
	MarkTerminal(ctx context.Context, jobID string, outcome job.ExecutionOutcome, completedAt time.Time) error
	Close() error
}

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a Postgres connection and ensures the submission
// record table exists.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", rcerr.ErrRecordStoreUnreachable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: underlying sql.DB: %v", rcerr.ErrRecordStoreUnreachable, err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&SubmissionRecord{}); err != nil {
		return nil, fmt.Errorf("%w: automigrate: %v", rcerr.ErrRecordStoreUnreachable, err)
	}

	return &GormStore{db: db}, nil
}

// MarkProcessing performs the queued -> processing transition.
func (s *GormStore) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&SubmissionRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     "processing",
			"started_at": startedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("%w: mark processing %s: %v", rcerr.ErrRecordStoreUnreachable, jobID, result.Error)
	}
	return nil
}

// MarkTerminal performs the processing -> {completed|failed|timeout}
// transition, writing every outcome field in one update.
func (s *GormStore) MarkTerminal(ctx context.Context, jobID string, outcome job.ExecutionOutcome, completedAt time.Time) error {
	updates := map[string]interface{}{
		"status":       string(outcome.Status),
		"completed_at": completedAt,
		"output":       outcome.Output,
		"exit_code":    outcome.ExitCode,
		"execution_ms": outcome.ExecutionTime.Milliseconds(),
	}
	if outcome.Error != "" {
		updates["error"] = outcome.Error
	}
	result := s.db.WithContext(ctx).
		Model(&SubmissionRecord{}).
		Where("job_id = ?", jobID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%w: mark terminal %s: %v", rcerr.ErrRecordStoreUnreachable, jobID, result.Error)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NullStore is an in-memory Store used by tests: it records calls
// without touching a real database.
type NullStore struct {
	Processing map[string]time.Time
	Terminal   map[string]job.ExecutionOutcome
}

// NewNullStore constructs an empty NullStore.
func NewNullStore() *NullStore {
	return &NullStore{
		Processing: make(map[string]time.Time),
		Terminal:   make(map[string]job.ExecutionOutcome),
	}
}

func (s *NullStore) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) error {
	s.Processing[jobID] = startedAt
	return nil
}

func (s *NullStore) MarkTerminal(ctx context.Context, jobID string, outcome job.ExecutionOutcome, completedAt time.Time) error {
	s.Terminal[jobID] = outcome
	return nil
}

func (s *NullStore) Close() error { return nil }
