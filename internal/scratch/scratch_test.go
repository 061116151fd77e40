package scratch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rce-core/pkg/job"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(root, "/code")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAllocateCreatesJobDirectory(t *testing.T) {
	m := newTestManager(t)

	slot, err := m.Allocate("job-1")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if info, err := os.Stat(slot.HostPath); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s", slot.HostPath)
	}
	if slot.SandboxPath != filepath.Join("/code", "job-1") {
		t.Errorf("unexpected sandbox path: %s", slot.SandboxPath)
	}
}

func TestWriteCodeWritesFile(t *testing.T) {
	m := newTestManager(t)
	slot, err := m.Allocate("job-2")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if err := m.WriteCode(slot, "script.py", []byte("print('hi')")); err != nil {
		t.Fatalf("WriteCode: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(slot.HostPath, "script.py"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "print('hi')" {
		t.Errorf("unexpected file content: %q", data)
	}
}

func TestReleaseRemovesDirectory(t *testing.T) {
	m := newTestManager(t)
	slot, err := m.Allocate("job-3")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	m.Release(slot)

	if _, err := os.Stat(slot.HostPath); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", slot.HostPath, err)
	}
}

func TestReleaseOnEmptySlotIsNoop(t *testing.T) {
	m := newTestManager(t)
	m.Release(job.ScratchSlot{})
}

func TestSweepOrphansRemovesOldDirsOnly(t *testing.T) {
	m := newTestManager(t)

	oldSlot, err := m.Allocate("old-job")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	oldTime := time.Now().Add(-time.Hour)
	if err := os.Chtimes(oldSlot.HostPath, oldTime, oldTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	freshSlot, err := m.Allocate("fresh-job")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	swept, err := m.SweepOrphans(10 * time.Minute)
	if err != nil {
		t.Fatalf("SweepOrphans: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept directory, got %d", swept)
	}
	if _, err := os.Stat(oldSlot.HostPath); !os.IsNotExist(err) {
		t.Errorf("expected old job dir to be swept")
	}
	if _, err := os.Stat(freshSlot.HostPath); err != nil {
		t.Errorf("expected fresh job dir to survive, got err %v", err)
	}
}
