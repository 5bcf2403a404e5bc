package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fluxorio/symphony/pkg/config"
)

func TestLoadApp_FileThenEnv(t *testing.T) {
	yamlContent := `
pool:
  workers: 8
  queue_capacity: 64
  queue_policy: reject
listener:
  addr: "127.0.0.1:0"
  serve_limit: 2
audit:
  driver: sqlite3
  dsn: "file:audit.db"
`
	path := filepath.Join(t.TempDir(), "symphony.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}

	t.Setenv("SYMPHONY_POOL_WORKERS", "2")
	t.Setenv("SYMPHONY_LOG_LEVEL", "debug")

	cfg, err := config.LoadApp(path)
	if err != nil {
		t.Fatalf("LoadApp failed: %v", err)
	}

	// Environment variables should override file values
	if cfg.Pool.Workers != 2 {
		t.Errorf("Pool.Workers = %v, want 2", cfg.Pool.Workers)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %v, want debug", cfg.Log.Level)
	}
	// File values survive where env is silent
	if cfg.Pool.QueuePolicy != "reject" || cfg.Listener.ServeLimit != 2 {
		t.Errorf("file values lost: policy=%q serve_limit=%d", cfg.Pool.QueuePolicy, cfg.Listener.ServeLimit)
	}
	// Defaults survive where both are silent
	if cfg.Audit.Table != "job_results" {
		t.Errorf("Audit.Table = %v, want job_results", cfg.Audit.Table)
	}
	if cfg.Page.SleepDelayDuration().Seconds() != 8 {
		t.Errorf("Page.SleepDelay = %v, want 8s", cfg.Page.SleepDelayDuration())
	}
}

func TestLoadApp_NoFile(t *testing.T) {
	cfg, err := config.LoadApp("")
	if err != nil {
		t.Fatalf("LoadApp(\"\") failed: %v", err)
	}
	if cfg.Pool.Workers != 4 {
		t.Errorf("Pool.Workers = %v, want 4", cfg.Pool.Workers)
	}
}

func TestSaveThenLoad(t *testing.T) {
	for _, name := range []string{"symphony.yaml", "symphony.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := config.Default()
			want.Pool.Workers = 12
			if err := config.Save(path, want); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			got := &config.Config{}
			if err := config.Load(path, got); err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.Pool.Workers != 12 || got.Listener.Addr != want.Listener.Addr {
				t.Errorf("Load() = %+v, want %+v", got.Pool, want.Pool)
			}
		})
	}
}
