package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/webcollect/collector/internal/store"
	"github.com/webcollect/collector/internal/sync"
)

func newTestEngine(t *testing.T) *sync.Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return sync.New(st, sync.Settings{}, log.New(io.Discard, "", 0))
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.PullInterval = 50 * time.Millisecond
	cfg.DrainInterval = 20 * time.Millisecond
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PullInterval <= 0 || cfg.DrainInterval <= 0 || cfg.DebounceInterval <= 0 {
		t.Errorf("expected positive intervals, got %+v", cfg)
	}
	if cfg.Logger == nil {
		t.Error("expected a default logger")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	d, err := New(newTestEngine(t), testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Let a few cycles run, then shut down.
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}

func TestConfigWatcherReconfiguresEngine(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("remote:\n  enabled: false\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	engine := newTestEngine(t)
	cfg := testConfig()
	cfg.ConfigPath = cfgPath

	d, err := New(engine, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Give the watcher time to attach before rewriting the file.
	time.Sleep(100 * time.Millisecond)

	content := "remote:\n  url: libsql://db.example.turso.io\n  token: secret\n  enabled: true\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if engine.StatusMessage() == "cloud sync enabled" {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("engine was not reconfigured from the changed config file")
}
