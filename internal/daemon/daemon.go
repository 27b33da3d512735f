// Package daemon runs background synchronization for the bookmark library.
//
// The daemon:
//  1. Drains the retry ledger on startup and on a timer
//  2. Runs periodic pull-merge cycles for bookmarks and categories
//  3. Watches the config file and reconfigures the engine on changes
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/webcollect/collector/internal/config"
	"github.com/webcollect/collector/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// PullInterval is how often to run a full pull-merge cycle.
	PullInterval time.Duration

	// DrainInterval is how often to sweep the retry ledger.
	DrainInterval time.Duration

	// DebounceInterval is how long to wait before acting on config file
	// changes. This batches rapid editor writes together.
	DebounceInterval time.Duration

	// ConfigPath is the config file to watch. Empty disables watching.
	ConfigPath string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PullInterval:     5 * time.Minute,
		DrainInterval:    time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates periodic sync cycles and config reloads.
type Daemon struct {
	engine *sync.Manager
	config *Config

	watcher *fsnotify.Watcher

	pendingReload   bool
	pendingReloadAt time.Time
	reloadMu        stdsync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New creates a new Daemon around a constructed engine.
// Use Start() to begin syncing.
func New(engine *sync.Manager, cfg *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		engine: engine,
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// An initial ledger drain and pull cycle run immediately; afterwards the
// periodic loops take over. This blocks until ctx is cancelled or an error
// occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.runCycle()

	if d.config.ConfigPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher

		// Watch the directory, not the file: editors replace config files
		// atomically and the inode-level watch would go stale.
		dir := filepath.Dir(d.config.ConfigPath)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching config: %s", d.config.ConfigPath)

		d.wg.Add(1)
		go d.watchConfigEvents()
	}

	d.wg.Add(2)
	go d.runPullLoop()
	go d.runDrainLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	// Let in-flight remote replication settle so a shutdown right after a
	// local write does not strand the mutation.
	d.engine.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// runCycle performs one drain + pull + category sync pass. Failures are
// logged, never fatal: a disabled or unreachable remote must not kill the
// daemon.
func (d *Daemon) runCycle() {
	ctx := d.ctx

	if _, err := d.engine.DrainRetries(ctx); err != nil {
		d.config.Logger.Printf("Ledger drain failed: %v", err)
	}

	if _, err := d.engine.Pull(ctx); err != nil {
		if errors.Is(err, sync.ErrDisabled) {
			d.config.Logger.Printf("Skipping pull: %s", d.engine.StatusMessage())
			return
		}
		d.config.Logger.Printf("Pull failed: %v", err)
	}

	if _, err := d.engine.SyncCategories(ctx); err != nil && !errors.Is(err, sync.ErrDisabled) {
		d.config.Logger.Printf("Category sync failed: %v", err)
	}
}

// runPullLoop runs periodic pull cycles.
func (d *Daemon) runPullLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runCycle()
		}
	}
}

// runDrainLoop sweeps the retry ledger periodically, between full cycles.
func (d *Daemon) runDrainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.engine.DrainRetries(d.ctx); err != nil {
				d.config.Logger.Printf("Ledger drain failed: %v", err)
			}
		}
	}
}

// watchConfigEvents monitors the config file and schedules debounced
// reloads.
func (d *Daemon) watchConfigEvents() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.config.ConfigPath) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			d.queueReload()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)

		case <-ticker.C:
			d.maybeReload()
		}
	}
}

// queueReload marks a pending reload with the current timestamp.
func (d *Daemon) queueReload() {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	d.pendingReload = true
	d.pendingReloadAt = time.Now()
}

// maybeReload reloads the config once the debounce interval has passed.
func (d *Daemon) maybeReload() {
	d.reloadMu.Lock()
	if !d.pendingReload || time.Since(d.pendingReloadAt) < d.config.DebounceInterval {
		d.reloadMu.Unlock()
		return
	}
	d.pendingReload = false
	d.reloadMu.Unlock()

	cfg, err := config.Load(d.config.ConfigPath)
	if err != nil {
		d.config.Logger.Printf("Config reload failed: %v", err)
		return
	}

	d.config.Logger.Println("Config changed, reconfiguring engine")
	d.engine.Reconfigure(sync.Settings{
		URL:     cfg.Remote.URL,
		Token:   cfg.Remote.Token,
		Enabled: cfg.Remote.Enabled,
	})
}
