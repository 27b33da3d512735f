package sync

import (
	"context"

	"github.com/webcollect/collector/internal/schema"
)

// Engine is the coordinated synchronization surface consumed by the daemon
// and the CLI. *Manager is the only implementation.
//
// All coordinated operations serialize behind one process-wide single-flight
// lock with strict FIFO fairness: callers are granted the lock in request
// order and an operation runs to completion before the next begins. There is
// no cancellation of a started cycle; the transport's request timeout bounds
// how long any one network call can hold the lock.
//
// The engine is resilient by construction: individual bookmark failures
// during a push are recorded in the retry ledger and do not stop the push;
// merges are total functions; the ledger drain swallows per-entry failures.
type Engine interface {
	// SaveBookmark writes the bookmark locally (synchronous, never blocks
	// on the network) and replicates it to the remote store asynchronously.
	SaveBookmark(ctx context.Context, b *schema.Bookmark) error

	// DeleteBookmark removes the bookmark locally and remotely.
	DeleteBookmark(ctx context.Context, id string) error

	// Push uploads the full local bookmark list, reporting per-item
	// failures. Returns ErrDisabled when sync is not configured.
	Push(ctx context.Context) (*PushResult, error)

	// Pull merges the remote bookmark list into local state; locally-newer
	// records are re-uploaded asynchronously after the merge persists.
	Pull(ctx context.Context) (*PullResult, error)

	// SaveCategories replaces the local category tree and pushes it.
	SaveCategories(ctx context.Context, categories []schema.Category) error

	// PushCategories uploads the category tree and prunes remote leftovers
	// in one atomic batch.
	PushCategories(ctx context.Context) (*CategoryPushResult, error)

	// SyncCategories pulls and merges the remote category tree.
	SyncCategories(ctx context.Context) (*CategorySyncResult, error)

	// DeleteCategory removes a category, reassigning its bookmarks to the
	// default bucket first.
	DeleteCategory(ctx context.Context, id string) (int, error)

	// RenameCategory renames a category and fans the new name out to every
	// bookmark referencing the old one.
	RenameCategory(ctx context.Context, id, newName string) (int, error)

	// DrainRetries replays the durable retry ledger once.
	DrainRetries(ctx context.Context) (*DrainResult, error)

	// Wait blocks until all background remote replication attempts spawned
	// so far have settled. Short-lived processes call it before exiting so
	// asynchronous mutations are either delivered or ledgered, never lost.
	Wait()

	// IsSyncing reports whether a coordinated operation is in flight.
	IsSyncing() bool

	// PendingRetryCount counts ledger entries awaiting replay.
	PendingRetryCount(ctx context.Context) (int, error)

	// StatusMessage describes the configuration state for display.
	StatusMessage() string
}

var _ Engine = (*Manager)(nil)
