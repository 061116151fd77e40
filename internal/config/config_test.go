package config

import (
	"os"
	"testing"
)

func TestFromEnvAppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg := FromEnv()

	if cfg.QueueURL == "" {
		t.Error("expected a default QueueURL")
	}
	if cfg.DispatcherWorkers != 1 {
		t.Errorf("expected default DispatcherWorkers=1, got %d", cfg.DispatcherWorkers)
	}
	if cfg.EnablePackageCache {
		t.Error("expected package cache disabled by default")
	}
}

func TestFromEnvHonorsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISPATCHER_WORKERS", "4")
	t.Setenv("ENABLE_PACKAGE_CACHE", "true")

	cfg := FromEnv()
	if cfg.DispatcherWorkers != 4 {
		t.Errorf("expected DispatcherWorkers=4, got %d", cfg.DispatcherWorkers)
	}
	if !cfg.EnablePackageCache {
		t.Error("expected package cache enabled via env override")
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	cfg := FromEnv()
	cfg.QueueURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject an empty QueueURL")
	}
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := FromEnv()
	cfg.DispatcherWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to reject zero DispatcherWorkers")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"QUEUE_URL", "RECORD_STORE_URL", "SCRATCH_VOLUME_NAME", "SCRATCH_HOST_PATH",
		"SANDBOX_RUNTIME_SOCKET", "SUBMISSION_QUEUE_NAME", "ANALYSIS_CHANNEL_NAME",
		"DISPATCHER_WORKERS", "SHUTDOWN_GRACE", "CONTAINER_REMOVE_TIMEOUT",
		"ENABLE_PACKAGE_CACHE", "JANITOR_INTERVAL", "HEALTH_ADDR", "ENVIRONMENT",
	} {
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Unsetenv %s: %v", key, err)
		}
	}
}
