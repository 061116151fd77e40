package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rce-core/pkg/job"
)

func TestAuditLoggerWritesOneJSONLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewAuditLogger(path)
	require.NoError(t, err)

	logger.Log(AuditEntry{JobID: "job-1", Language: "python", Status: "completed", ExitCode: 0})
	logger.Log(AuditEntry{JobID: "job-2", Language: "python", Status: "failed", ExitCode: 1, Error: "boom"})

	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	var entry AuditEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "job-1", entry.JobID)
	assert.Equal(t, "completed", entry.Status)
}

func TestExecuteLogsAuditEntryWhenEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	exec := newTestExecutor(t, &fakeRuntime{})
	require.NoError(t, exec.EnableAuditLog(path))

	exec.Execute(context.Background(), job.Job{JobID: "job-3", Language: "brainfuck"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
