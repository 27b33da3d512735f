package sync

import "github.com/webcollect/collector/internal/schema"

// Notifier observes engine events for dashboards and other listeners.
//
// Callbacks fire synchronously on the goroutine that completed the
// operation; implementations must not block. A nil notifier is valid and
// means no observation.
type Notifier interface {
	// BookmarkSaved fires after a bookmark is durably written locally.
	BookmarkSaved(b *schema.Bookmark)

	// PushComplete fires after a full-library push, successful or not.
	PushComplete(result *PushResult)

	// PullComplete fires after a pull-merge cycle persisted new local state.
	PullComplete(result *PullResult)

	// CategoriesPushed fires after a category batch push succeeded.
	CategoriesPushed(result *CategoryPushResult)

	// CategoriesSynced fires after a category pull-merge cycle.
	CategoriesSynced(result *CategorySyncResult)

	// DrainComplete fires after a retry ledger sweep.
	DrainComplete(result *DrainResult)
}
