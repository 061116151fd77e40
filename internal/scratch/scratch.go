// Package scratch manages per-job workspace directories on a shared
// volume that is bind-mounted into both the dispatcher process and the
// sandbox containers it spawns.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"rce-core/internal/logging"
	"rce-core/internal/rcerr"
	"rce-core/pkg/job"
)

// Manager allocates and reclaims job-scoped directories under a fixed
// host root. Each container sees only its own job's directory, mounted
// read-only at sandboxRoot/<jobId>.
type Manager struct {
	hostRoot    string
	sandboxRoot string
}

// NewManager constructs a scratch Manager, ensuring the host root
// directory exists.
func NewManager(hostRoot, sandboxRoot string) (*Manager, error) {
	if err := os.MkdirAll(hostRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create scratch root %s: %v", rcerr.ErrScratchUnavailable, hostRoot, err)
	}
	return &Manager{hostRoot: hostRoot, sandboxRoot: sandboxRoot}, nil
}

// Allocate creates <hostRoot>/<jobId>/ and returns a slot describing
// both the host-visible and sandbox-visible paths to it.
func (m *Manager) Allocate(jobID string) (job.ScratchSlot, error) {
	hostPath := filepath.Join(m.hostRoot, jobID)
	if err := os.MkdirAll(hostPath, 0o755); err != nil {
		return job.ScratchSlot{}, fmt.Errorf("%w: allocate slot for job %s: %v", rcerr.ErrScratchUnavailable, jobID, err)
	}
	return job.ScratchSlot{
		JobID:       jobID,
		HostPath:    hostPath,
		SandboxPath: filepath.Join(m.sandboxRoot, jobID),
	}, nil
}

// WriteCode writes filename into the slot's host directory, overwriting
// any existing content.
func (m *Manager) WriteCode(slot job.ScratchSlot, filename string, code []byte) error {
	target := filepath.Join(slot.HostPath, filename)
	if err := os.WriteFile(target, code, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", rcerr.ErrScratchUnavailable, target, err)
	}
	return nil
}

// Release recursively removes the job's scratch directory. Failures are
// logged, not surfaced: release runs on every exit path, including
// already-degraded ones, and the janitor sweeps anything left behind.
func (m *Manager) Release(slot job.ScratchSlot) {
	if slot.HostPath == "" {
		return
	}
	if err := os.RemoveAll(slot.HostPath); err != nil {
		logging.L().Warn("scratch release failed",
			zap.String("job_id", slot.JobID),
			zap.String("path", slot.HostPath),
			zap.Error(err),
		)
	}
}

// SweepOrphans removes scratch directories older than maxAge that were
// left behind by a process that crashed between allocate and release.
// It makes no liveness check: any directory whose modification time is
// older than maxAge is removed, whether or not a job is still using it.
func (m *Manager) SweepOrphans(maxAge time.Duration) (swept int, err error) {
	entries, err := os.ReadDir(m.hostRoot)
	if err != nil {
		return 0, fmt.Errorf("read scratch root %s: %w", m.hostRoot, err)
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, statErr := entry.Info()
		if statErr != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.hostRoot, entry.Name())
		if rmErr := os.RemoveAll(path); rmErr != nil {
			logging.L().Warn("janitor sweep failed to remove orphaned scratch dir",
				zap.String("path", path), zap.Error(rmErr))
			continue
		}
		swept++
	}
	return swept, nil
}
