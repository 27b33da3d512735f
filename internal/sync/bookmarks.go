package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/turso"
)

// FailedItem identifies one bookmark that could not be pushed, for
// user-facing diagnostics. Partial failures report these rather than an
// opaque aggregate error.
type FailedItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Err   string `json:"error"`
}

// PushResult aggregates a full-library push.
type PushResult struct {
	// Success is true only if zero bookmarks failed.
	Success      bool         `json:"success"`
	SuccessCount int          `json:"successCount"`
	FailCount    int          `json:"failCount"`
	Failed       []FailedItem `json:"failedItems,omitempty"`
	Message      string       `json:"message"`
}

// PullResult reports a pull-merge cycle.
type PullResult struct {
	// Bookmarks is the merged list that became the new local state.
	Bookmarks []*schema.Bookmark `json:"bookmarks"`

	// Uploaded counts locally-newer bookmarks queued for re-upload.
	Uploaded int    `json:"uploaded"`
	Message  string `json:"message"`
}

// Push uploads the full local bookmark list to the remote store.
//
// The loop never aborts on a single failure: each failed upsert is recorded
// in the retry ledger and the remaining bookmarks are still attempted. The
// result carries per-item failures alongside the aggregate counts.
func (m *Manager) Push(ctx context.Context) (*PushResult, error) {
	if m.transport() == nil {
		return nil, ErrDisabled
	}

	m.lock.Acquire("push")
	defer m.lock.Release("push")

	bookmarks, err := m.store.Bookmarks(ctx)
	if err != nil {
		return nil, err
	}

	result := &PushResult{}
	for _, b := range bookmarks {
		res := m.saveRemote(ctx, b, false)
		if res.Success {
			result.SuccessCount++
			continue
		}
		result.FailCount++
		result.Failed = append(result.Failed, FailedItem{ID: b.ID, Title: b.Title, Err: res.Err})
		m.logger.Printf("push failed for %s: %s", b.ID, res.Err)
	}

	result.Success = result.FailCount == 0
	result.Message = fmt.Sprintf("push complete: %d succeeded, %d failed", result.SuccessCount, result.FailCount)
	m.logger.Print(result.Message)

	m.notify(func(n Notifier) { n.PushComplete(result) })
	return result, nil
}

// Pull fetches the remote bookmark list, merges it with local state and
// persists the merged result as the new local state.
//
// Merge rules (per id):
//   - present on both sides: the strictly newer UpdatedAt wins; a winning
//     remote record still inherits the local screenshot, since screenshots
//     never live remotely and must not be lost on pull. A winning local
//     record is marked for re-upload.
//   - remote-only: adopted verbatim.
//   - local-only: kept and marked for upload.
//
// Re-uploads run asynchronously after the critical section so Pull returns
// promptly.
func (m *Manager) Pull(ctx context.Context) (*PullResult, error) {
	if m.transport() == nil {
		return nil, ErrDisabled
	}

	m.lock.Acquire("pull")
	defer m.lock.Release("pull")

	remote, err := m.fetchRemoteBookmarks(ctx)
	if err != nil {
		return nil, err
	}

	local, err := m.store.Bookmarks(ctx)
	if err != nil {
		return nil, err
	}

	merged, toUpload := MergeBookmarks(local, remote)

	if err := m.store.SetBookmarks(ctx, merged); err != nil {
		return nil, err
	}

	if len(toUpload) > 0 {
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			for _, b := range toUpload {
				ctx, cancel := context.WithTimeout(context.Background(), turso.DefaultTimeout)
				m.saveRemote(ctx, b, false)
				cancel()
			}
		}()
	}

	result := &PullResult{
		Bookmarks: merged,
		Uploaded:  len(toUpload),
		Message:   fmt.Sprintf("pull complete: %d bookmarks, %d queued for upload", len(merged), len(toUpload)),
	}
	m.logger.Print(result.Message)

	m.notify(func(n Notifier) { n.PullComplete(result) })
	return result, nil
}

// MergeBookmarks combines the local and remote bookmark lists into one
// consistent list, returning it together with the bookmarks that must be
// re-uploaded (local strictly newer, or local-only).
//
// This is a total function: missing timestamps compare as the zero time and
// never fail the merge. The merged list is sorted by CreatedAt descending.
func MergeBookmarks(local, remote []*schema.Bookmark) (merged, toUpload []*schema.Bookmark) {
	localByID := make(map[string]*schema.Bookmark, len(local))
	for _, b := range local {
		localByID[b.ID] = b
	}

	for _, r := range remote {
		l, ok := localByID[r.ID]
		if !ok {
			merged = append(merged, r)
			continue
		}

		if l.EffectiveTime().After(r.EffectiveTime()) {
			merged = append(merged, l)
			toUpload = append(toUpload, l)
		} else {
			if l.Screenshot != "" {
				r.Screenshot = l.Screenshot
			}
			merged = append(merged, r)
		}
		delete(localByID, r.ID)
	}

	// Local-only bookmarks, in their original order.
	for _, b := range local {
		if _, ok := localByID[b.ID]; ok {
			merged = append(merged, b)
			toUpload = append(toUpload, b)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	return merged, toUpload
}

// fetchRemoteBookmarks loads the full remote bookmark table.
func (m *Manager) fetchRemoteBookmarks(ctx context.Context) ([]*schema.Bookmark, error) {
	client := m.transport()
	if client == nil {
		return nil, ErrDisabled
	}

	res := client.Execute(ctx, "SELECT * FROM bookmarks ORDER BY created_at DESC")
	if !res.Success {
		return nil, fmt.Errorf("failed to fetch remote bookmarks: %s", res.Err)
	}

	bookmarks := make([]*schema.Bookmark, 0, len(res.Rows))
	for _, row := range res.Rows {
		bookmarks = append(bookmarks, rowToBookmark(res.Columns, row))
	}
	return bookmarks, nil
}

// rowToBookmark converts one remote result row into a Bookmark using the
// result's column order. Unknown columns are ignored; malformed tags decode
// to an empty list.
func rowToBookmark(columns []string, row []any) *schema.Bookmark {
	obj := make(map[string]string, len(columns))
	for i, col := range columns {
		if i >= len(row) {
			break
		}
		if s, ok := row[i].(string); ok {
			obj[col] = s
		}
	}

	b := &schema.Bookmark{
		ID:          obj["id"],
		URL:         obj["url"],
		Title:       obj["title"],
		Description: obj["description"],
		Summary:     obj["summary"],
		Category:    obj["category"],
		Screenshot:  obj["screenshot"],
		Domain:      obj["domain"],
		CreatedAt:   parseTime(obj["created_at"]),
		UpdatedAt:   parseTime(obj["updated_at"]),
	}

	if raw := obj["tags"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &b.Tags); err != nil {
			b.Tags = []string{}
		}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if b.Category == "" {
		b.Category = schema.DefaultCategoryName
	}
	return b
}
