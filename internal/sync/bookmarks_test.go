package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/webcollect/collector/internal/schema"
)

func mkBookmark(id string, created, updated time.Time) *schema.Bookmark {
	return &schema.Bookmark{
		ID:        id,
		URL:       "https://example.com/" + id,
		Title:     id,
		Category:  schema.DefaultCategoryName,
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func TestMergeBookmarksLocalNewerWins(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	local := mkBookmark("b1", base, base.Add(2*time.Hour))
	local.Title = "local edit"
	remote := mkBookmark("b1", base, base.Add(time.Hour))
	remote.Title = "stale remote"

	merged, toUpload := MergeBookmarks([]*schema.Bookmark{local}, []*schema.Bookmark{remote})

	if len(merged) != 1 || merged[0].Title != "local edit" {
		t.Fatalf("expected local copy to win, got %+v", merged)
	}
	if len(toUpload) != 1 || toUpload[0].ID != "b1" {
		t.Errorf("expected winning local copy queued for upload, got %+v", toUpload)
	}
}

func TestMergeBookmarksRemoteWinsKeepsScreenshot(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	local := mkBookmark("b1", base, base.Add(time.Hour))
	local.Screenshot = "data:image/png;base64,xxxx"
	remote := mkBookmark("b1", base, base.Add(2*time.Hour))
	remote.Title = "remote edit"

	merged, toUpload := MergeBookmarks([]*schema.Bookmark{local}, []*schema.Bookmark{remote})

	if len(merged) != 1 || merged[0].Title != "remote edit" {
		t.Fatalf("expected remote copy to win, got %+v", merged)
	}
	if merged[0].Screenshot != local.Screenshot {
		t.Error("expected the local screenshot to survive a remote win")
	}
	if len(toUpload) != 0 {
		t.Errorf("remote win must not trigger an upload, got %+v", toUpload)
	}
}

func TestMergeBookmarksEqualTimestampsPreferRemote(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	local := mkBookmark("b1", base, base)
	local.Title = "local"
	remote := mkBookmark("b1", base, base)
	remote.Title = "remote"

	merged, toUpload := MergeBookmarks([]*schema.Bookmark{local}, []*schema.Bookmark{remote})

	// Only a strictly newer local copy wins; ties take the remote side.
	if merged[0].Title != "remote" {
		t.Errorf("expected remote copy on timestamp tie, got %q", merged[0].Title)
	}
	if len(toUpload) != 0 {
		t.Errorf("tie must not trigger an upload, got %+v", toUpload)
	}
}

func TestMergeBookmarksDisjointSides(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	localOnly := mkBookmark("local-1", base.Add(time.Hour), base.Add(time.Hour))
	remoteOnly := mkBookmark("remote-1", base, base)

	merged, toUpload := MergeBookmarks(
		[]*schema.Bookmark{localOnly},
		[]*schema.Bookmark{remoteOnly},
	)

	if len(merged) != 2 {
		t.Fatalf("expected union of both sides, got %d", len(merged))
	}
	if len(toUpload) != 1 || toUpload[0].ID != "local-1" {
		t.Errorf("expected local-only bookmark queued for upload, got %+v", toUpload)
	}
}

func TestMergeBookmarksSortedByCreatedAtDesc(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	merged, _ := MergeBookmarks(
		[]*schema.Bookmark{mkBookmark("old", base, base)},
		[]*schema.Bookmark{
			mkBookmark("newest", base.Add(2*time.Hour), base.Add(2*time.Hour)),
			mkBookmark("middle", base.Add(time.Hour), base.Add(time.Hour)),
		},
	)

	want := []string{"newest", "middle", "old"}
	for i, id := range want {
		if merged[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, merged[i].ID)
		}
	}
}

func TestMergeBookmarksMissingTimestamps(t *testing.T) {
	// A record with no timestamps compares as the zero time and loses, but
	// never fails the merge.
	local := &schema.Bookmark{ID: "b1", URL: "https://a", Title: "local"}
	remote := mkBookmark("b1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	remote.Title = "remote"

	merged, toUpload := MergeBookmarks([]*schema.Bookmark{local}, []*schema.Bookmark{remote})

	if len(merged) != 1 || merged[0].Title != "remote" {
		t.Errorf("expected timestamped remote to win, got %+v", merged)
	}
	if len(toUpload) != 0 {
		t.Errorf("unexpected uploads: %+v", toUpload)
	}
}

func TestPushReportsPartialFailure(t *testing.T) {
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		if len(s.Params) > 0 && s.Params[0] == "b2" {
			return stmtErr("constraint failed")
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	base := time.Now().UTC()
	bookmarks := []*schema.Bookmark{
		mkBookmark("b1", base, base),
		mkBookmark("b2", base, base),
		mkBookmark("b3", base, base),
	}
	if err := m.store.SetBookmarks(ctx, bookmarks); err != nil {
		t.Fatalf("SetBookmarks failed: %v", err)
	}

	result, err := m.Push(ctx)
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if result.Success {
		t.Error("expected partial failure")
	}
	if result.SuccessCount != 2 || result.FailCount != 1 {
		t.Errorf("expected 2 ok / 1 failed, got %d / %d", result.SuccessCount, result.FailCount)
	}
	if len(result.Failed) != 1 || result.Failed[0].ID != "b2" {
		t.Errorf("unexpected failed items: %+v", result.Failed)
	}

	// The failed upsert must land in the retry ledger.
	entries, err := m.store.RetryQueue(ctx)
	if err != nil {
		t.Fatalf("RetryQueue failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "b2" || entries[0].Op != schema.RetrySave {
		t.Errorf("unexpected ledger: %+v", entries)
	}
	if entries[0].Retries != 1 {
		t.Errorf("expected first failure recorded with 1 retry, got %d", entries[0].Retries)
	}
}

func TestPushWritesEmptyScreenshot(t *testing.T) {
	var screenshotParam any = "unset"
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		if strings.Contains(s.Q, "INSERT INTO bookmarks") && len(s.Params) >= 8 {
			screenshotParam = s.Params[7]
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	b := mkBookmark("b1", time.Now().UTC(), time.Now().UTC())
	b.Screenshot = "data:image/png;base64,huge"
	if err := m.store.SetBookmarks(ctx, []*schema.Bookmark{b}); err != nil {
		t.Fatalf("SetBookmarks failed: %v", err)
	}

	if _, err := m.Push(ctx); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if screenshotParam != "" {
		t.Errorf("expected empty screenshot column, got %v", screenshotParam)
	}
}

func TestPullMergesAndPersists(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"id", "url", "title", "description", "summary", "category", "tags", "screenshot", "domain", "created_at", "updated_at"}

	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		if strings.HasPrefix(s.Q, "SELECT") {
			return okRows(columns, [][]any{
				{"b1", "https://example.com/b1", "remote edit", "", "", "News", `["go"]`, "", "example.com",
					base.Format(time.RFC3339), base.Add(2 * time.Hour).Format(time.RFC3339)},
				{"b2", "https://example.com/b2", "remote only", "", "", "", "[]", "", "example.com",
					base.Format(time.RFC3339), base.Format(time.RFC3339)},
			})
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	local := mkBookmark("b1", base, base.Add(time.Hour))
	local.Screenshot = "shot"
	if err := m.store.SetBookmarks(ctx, []*schema.Bookmark{local}); err != nil {
		t.Fatalf("SetBookmarks failed: %v", err)
	}

	result, err := m.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if len(result.Bookmarks) != 2 {
		t.Fatalf("expected 2 merged bookmarks, got %d", len(result.Bookmarks))
	}
	if result.Uploaded != 0 {
		t.Errorf("expected no re-uploads, got %d", result.Uploaded)
	}

	got, err := m.store.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("Bookmarks failed: %v", err)
	}
	byID := make(map[string]*schema.Bookmark)
	for _, b := range got {
		byID[b.ID] = b
	}

	b1 := byID["b1"]
	if b1 == nil || b1.Title != "remote edit" {
		t.Fatalf("expected the newer remote copy of b1, got %+v", b1)
	}
	if b1.Screenshot != "shot" {
		t.Error("expected the local screenshot to survive the pull")
	}
	if len(b1.Tags) != 1 || b1.Tags[0] != "go" {
		t.Errorf("expected decoded tags, got %v", b1.Tags)
	}

	b2 := byID["b2"]
	if b2 == nil {
		t.Fatal("expected remote-only b2 to be adopted")
	}
	if b2.Category != schema.DefaultCategoryName {
		t.Errorf("expected empty remote category to default, got %q", b2.Category)
	}
}

func TestPullReuploadsLocallyNewer(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"id", "url", "title", "description", "summary", "category", "tags", "screenshot", "domain", "created_at", "updated_at"}

	uploaded := make(chan string, 1)
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		switch {
		case strings.HasPrefix(s.Q, "SELECT"):
			return okRows(columns, [][]any{
				{"b1", "https://example.com/b1", "stale remote", "", "", "News", "[]", "", "example.com",
					base.Format(time.RFC3339), base.Format(time.RFC3339)},
			})
		case strings.Contains(s.Q, "INSERT INTO bookmarks"):
			select {
			case uploaded <- s.Params[0].(string):
			default:
			}
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	local := mkBookmark("b1", base, base.Add(time.Hour))
	local.Title = "local edit"
	if err := m.store.SetBookmarks(ctx, []*schema.Bookmark{local}); err != nil {
		t.Fatalf("SetBookmarks failed: %v", err)
	}

	result, err := m.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if result.Uploaded != 1 {
		t.Fatalf("expected 1 queued re-upload, got %d", result.Uploaded)
	}

	select {
	case id := <-uploaded:
		if id != "b1" {
			t.Errorf("expected b1 re-uploaded, got %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the background re-upload")
	}
}

func TestDeleteBookmark(t *testing.T) {
	deleted := make(chan string, 1)
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		if strings.HasPrefix(s.Q, "DELETE FROM bookmarks") {
			select {
			case deleted <- s.Params[0].(string):
			default:
			}
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	base := time.Now().UTC()
	if err := m.store.SetBookmarks(ctx, []*schema.Bookmark{
		mkBookmark("b1", base, base),
		mkBookmark("b2", base, base),
	}); err != nil {
		t.Fatalf("SetBookmarks failed: %v", err)
	}

	if err := m.DeleteBookmark(ctx, "b1"); err != nil {
		t.Fatalf("DeleteBookmark failed: %v", err)
	}

	got, _ := m.store.Bookmarks(ctx)
	if len(got) != 1 || got[0].ID != "b2" {
		t.Errorf("expected only b2 to remain, got %+v", got)
	}

	select {
	case id := <-deleted:
		if id != "b1" {
			t.Errorf("expected remote delete of b1, got %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the background delete")
	}
}
