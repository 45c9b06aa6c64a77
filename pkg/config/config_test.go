package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	original, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, original)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestConfig_Load_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Core.DefaultThreads != 4 {
		t.Errorf("Expected DefaultThreads=4, got %d", cfg.Core.DefaultThreads)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Expected Store.Driver=memory, got %s", cfg.Store.Driver)
	}
}

func TestConfig_Load_EnvOverrides(t *testing.T) {
	withEnv(t, "ENGINE_DEFAULT_THREADS", "8")
	withEnv(t, "ENGINE_STORE_DRIVER", "sqlite")

	tempDir := t.TempDir()
	withEnv(t, "ENGINE_OUTPUT_ROOT", filepath.Join(tempDir, "downloads"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with env vars failed: %v", err)
	}

	if cfg.Core.DefaultThreads != 8 {
		t.Errorf("Expected DefaultThreads=8 from env, got %d", cfg.Core.DefaultThreads)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected Store.Driver=sqlite from env, got %s", cfg.Store.Driver)
	}
	if !strings.Contains(cfg.Paths.OutputRoot, "downloads") {
		t.Errorf("Expected OutputRoot to contain 'downloads', got %s", cfg.Paths.OutputRoot)
	}
}

func TestConfig_PathValidation(t *testing.T) {
	tempDir := t.TempDir()
	withEnv(t, "ENGINE_OUTPUT_ROOT", filepath.Join(tempDir, "data"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if _, err := os.Stat(cfg.Paths.OutputRoot); os.IsNotExist(err) {
		t.Errorf("OutputRoot directory should have been created: %s", cfg.Paths.OutputRoot)
	}
}

func TestConfig_InvalidStoreDriver(t *testing.T) {
	withEnv(t, "ENGINE_STORE_DRIVER", "postgres")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for an unknown store driver")
	}
}

func TestConfig_JobOutputDir(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	dir := cfg.JobOutputDir("job-123")
	if !strings.Contains(dir, "job-123") {
		t.Errorf("JobOutputDir should contain the job id, got %s", dir)
	}
}
