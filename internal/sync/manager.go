// Package sync implements the synchronization and conflict-resolution engine
// between the local bookmark store and a remote SQL-over-HTTP database.
//
// Design in brief:
//   - Local writes come first and never block on the network. Remote
//     mutations are replayed asynchronously and recorded in a durable retry
//     ledger when they fail.
//   - Coordinated operations (push, pull, category save, category push,
//     ledger drain) serialize behind a single-flight FIFO lock.
//   - Merges are total functions: divergent local/remote state always
//     produces a result, preferring "keep more data" over failing.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	stdsync "sync"
	"time"

	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/store"
	"github.com/webcollect/collector/internal/turso"
)

// ErrDisabled is returned by every remote-touching operation when cloud sync
// is disabled or incompletely configured. No network I/O is attempted.
var ErrDisabled = errors.New("cloud sync is not enabled")

// maxRetries is the retry ceiling for ledger entries. An entry that has
// failed this many recorded attempts is abandoned, never retried again.
const maxRetries = 3

// Settings carries the remote configuration the engine reads at
// initialization. The engine never refreshes or rotates the credential.
type Settings struct {
	// URL is the database endpoint (libsql:// or https://).
	URL string

	// Token is the bearer credential attached to every call.
	Token string

	// Enabled gates all remote activity.
	Enabled bool
}

// Ready reports whether the settings permit remote activity.
func (s Settings) Ready() bool {
	return s.Enabled && s.URL != "" && s.Token != ""
}

// Manager is the synchronization coordinator. One instance exists per
// process; all sync state (flight lock, retry ledger access, transport)
// lives on it rather than in package globals.
type Manager struct {
	store  *store.Store
	logger *log.Logger
	lock   *flightLock

	// retryMu serializes read-modify-write cycles on the persisted retry
	// ledger. Failure paths append from outside the flight lock, so the
	// ledger needs its own guard.
	retryMu stdsync.Mutex

	// mu guards settings and client, which Reconfigure swaps at runtime.
	mu       stdsync.RWMutex
	settings Settings
	client   *turso.Client

	// bg tracks spawned remote replication attempts so Wait can block
	// until they settle. A process that exits without waiting would kill
	// an attempt before the request is dialed, leaving no ledger entry.
	bg stdsync.WaitGroup

	notifier Notifier
}

// New creates the engine around an open local store.
//
// If the settings are incomplete or disabled, the engine still serves local
// operations; remote operations fail fast with ErrDisabled. If logger is
// nil, a default logger writing to stderr is used.
func New(st *store.Store, settings Settings, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	m := &Manager{
		store:    st,
		logger:   logger,
		lock:     newFlightLock(logger),
		settings: settings,
	}
	if settings.Ready() {
		m.client = turso.NewClient(settings.URL, settings.Token, logger)
	}
	return m
}

// Reconfigure swaps the remote settings at runtime (used by the daemon's
// config watcher). In-flight operations finish against the old client.
func (m *Manager) Reconfigure(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = settings
	if settings.Ready() {
		m.client = turso.NewClient(settings.URL, settings.Token, m.logger)
	} else {
		m.client = nil
	}
	m.logger.Printf("reconfigured: %s", statusMessage(settings))
}

// SetNotifier registers an observer for sync events. Pass nil to detach.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// transport returns the current client, or nil when sync is disabled.
func (m *Manager) transport() *turso.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.settings.Ready() {
		return nil
	}
	return m.client
}

func (m *Manager) notify(fn func(Notifier)) {
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()
	if n != nil {
		fn(n)
	}
}

// SaveBookmark persists the bookmark locally and replicates it to the remote
// store asynchronously. The local write is synchronous and authoritative;
// its failure is returned. A remote failure is recorded in the retry ledger
// and never surfaces here.
func (m *Manager) SaveBookmark(ctx context.Context, b *schema.Bookmark) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid bookmark: %w", err)
	}
	b.SetDefaults()
	b.NormalizeTags()

	bookmarks, err := m.store.Bookmarks(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range bookmarks {
		if existing.ID == b.ID {
			bookmarks[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		bookmarks = append([]*schema.Bookmark{b}, bookmarks...)
	}

	if err := m.store.SetBookmarks(ctx, bookmarks); err != nil {
		return err
	}

	m.notify(func(n Notifier) { n.BookmarkSaved(b) })

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), turso.DefaultTimeout)
		defer cancel()
		m.saveRemote(ctx, b, false)
	}()

	return nil
}

// DeleteBookmark removes the bookmark locally and issues the remote delete
// asynchronously. Unknown ids are a no-op locally but the remote delete is
// still sent (idempotent on both sides). No tombstone is kept once the
// remote delete succeeds.
func (m *Manager) DeleteBookmark(ctx context.Context, id string) error {
	bookmarks, err := m.store.Bookmarks(ctx)
	if err != nil {
		return err
	}

	kept := bookmarks[:0]
	for _, b := range bookmarks {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if err := m.store.SetBookmarks(ctx, kept); err != nil {
		return err
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), turso.DefaultTimeout)
		defer cancel()
		m.deleteRemote(ctx, id, false)
	}()

	return nil
}

// Wait blocks until every background remote replication attempt spawned so
// far has settled (succeeded, or failed and been recorded in the retry
// ledger). Short-lived callers must wait before exiting: an attempt killed
// mid-flight by process exit was never made, so it leaves no ledger entry
// and the mutation is silently lost.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// saveRemote upserts one bookmark into the remote store.
//
// The screenshot column is always written empty: screenshots are local-only
// payloads and never mirrored remotely. On failure, the mutation is recorded
// in the retry ledger unless this call is itself a ledger replay.
func (m *Manager) saveRemote(ctx context.Context, b *schema.Bookmark, isRetry bool) *turso.Result {
	client := m.transport()
	if client == nil {
		return &turso.Result{Err: ErrDisabled.Error()}
	}

	tagsJSON, err := json.Marshal(b.Tags)
	if err != nil {
		// Tags are plain strings; this cannot realistically fail.
		tagsJSON = []byte("[]")
	}

	query := `
	INSERT INTO bookmarks (id, url, title, description, summary, category, tags, screenshot, domain, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		summary = excluded.summary,
		category = excluded.category,
		tags = excluded.tags,
		screenshot = excluded.screenshot,
		updated_at = excluded.updated_at
	`

	category := b.Category
	if category == "" {
		category = schema.DefaultCategoryName
	}

	res := client.Execute(ctx, query,
		b.ID,
		b.URL,
		b.Title,
		b.Description,
		b.Summary,
		category,
		string(tagsJSON),
		"", // screenshot stays local
		b.Domain,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)

	if !res.Success && !isRetry {
		if rerr := m.recordRetry(ctx, schema.RetrySave, b.ID, b); rerr != nil {
			res.Err = fmt.Sprintf("%s (retry not recorded: %v)", res.Err, rerr)
		}
	}
	return res
}

// deleteRemote removes one bookmark from the remote store.
func (m *Manager) deleteRemote(ctx context.Context, id string, isRetry bool) *turso.Result {
	client := m.transport()
	if client == nil {
		return &turso.Result{Err: ErrDisabled.Error()}
	}

	res := client.Execute(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if !res.Success && !isRetry {
		if rerr := m.recordRetry(ctx, schema.RetryDelete, id, nil); rerr != nil {
			res.Err = fmt.Sprintf("%s (retry not recorded: %v)", res.Err, rerr)
		}
	}
	return res
}

// formatTime renders a timestamp for the remote TEXT columns. The zero time
// is stored as the current moment so freshly imported rows sort sensibly.
func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads a remote TEXT timestamp. Unknown or malformed values
// yield the zero time; merges treat that as "older than everything" rather
// than failing.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
