package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/store"
)

// fakeStmt mirrors the wire shape of one statement for test assertions.
type fakeStmt struct {
	Q      string `json:"q"`
	Params []any  `json:"params"`
}

// fakeRemote serves the statements protocol, answering each statement
// through handle. handle returns either a results or an error object.
func fakeRemote(t *testing.T, handle func(s fakeStmt) map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Statements []fakeStmt `json:"statements"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([]map[string]any, 0, len(req.Statements))
		for _, s := range req.Statements {
			out = append(out, handle(s))
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func okRows(columns []string, rows [][]any) map[string]any {
	if rows == nil {
		rows = [][]any{}
	}
	return map[string]any{"results": map[string]any{
		"columns":       columns,
		"rows":          rows,
		"rows_affected": 1,
	}}
}

func stmtErr(msg string) map[string]any {
	return map[string]any{"error": map[string]any{"message": msg}}
}

func newTestManager(t *testing.T, url string) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return New(st, Settings{URL: url, Token: "test-token", Enabled: true},
		log.New(io.Discard, "", 0))
}

func newDisabledManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return New(st, Settings{}, log.New(io.Discard, "", 0))
}

func TestDisabledOperationsFailFast(t *testing.T) {
	m := newDisabledManager(t)
	ctx := context.Background()

	if _, err := m.Push(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("Push: expected ErrDisabled, got %v", err)
	}
	if _, err := m.Pull(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("Pull: expected ErrDisabled, got %v", err)
	}
	if _, err := m.PushCategories(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("PushCategories: expected ErrDisabled, got %v", err)
	}
	if _, err := m.SyncCategories(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("SyncCategories: expected ErrDisabled, got %v", err)
	}
}

func TestDisabledSaveStillWritesLocally(t *testing.T) {
	m := newDisabledManager(t)
	ctx := context.Background()

	b := schema.NewBookmark("https://example.com", "Example")
	if err := m.SaveBookmark(ctx, b); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}

	got, err := m.store.Bookmarks(ctx)
	if err != nil {
		t.Fatalf("Bookmarks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("expected local write despite disabled sync, got %+v", got)
	}
}

func TestSaveBookmarkReplacesById(t *testing.T) {
	m := newDisabledManager(t)
	ctx := context.Background()

	b := schema.NewBookmark("https://example.com", "First")
	if err := m.SaveBookmark(ctx, b); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}

	b.Title = "Second"
	b.UpdateTimestamp()
	if err := m.SaveBookmark(ctx, b); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}

	got, _ := m.store.Bookmarks(ctx)
	if len(got) != 1 {
		t.Fatalf("expected replacement, got %d bookmarks", len(got))
	}
	if got[0].Title != "Second" {
		t.Errorf("expected updated title, got %q", got[0].Title)
	}
}

func TestWaitSettlesBackgroundReplication(t *testing.T) {
	deleted := make(chan string, 1)
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		if strings.HasPrefix(strings.TrimSpace(s.Q), "DELETE") {
			id, _ := s.Params[0].(string)
			deleted <- id
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	b := schema.NewBookmark("https://example.com", "Example")
	if err := m.SaveBookmark(ctx, b); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}
	if err := m.DeleteBookmark(ctx, b.ID); err != nil {
		t.Fatalf("DeleteBookmark failed: %v", err)
	}
	m.Wait()

	// Once Wait returns, the remote delete must already have been sent;
	// a process exiting here loses nothing.
	select {
	case id := <-deleted:
		if id != b.ID {
			t.Errorf("remote delete for %q, want %q", id, b.ID)
		}
	default:
		t.Fatal("remote delete not attempted before Wait returned")
	}
}

func TestInterruptedDeleteRecoverableFromLedger(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		if failing.Load() {
			return stmtErr("connection reset")
		}
		return okRows(nil, nil)
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	if err := m.DeleteBookmark(ctx, "gone-1"); err != nil {
		t.Fatalf("DeleteBookmark failed: %v", err)
	}
	m.Wait()

	entries, err := m.store.RetryQueue(ctx)
	if err != nil {
		t.Fatalf("RetryQueue failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry after failed delete, got %d", len(entries))
	}
	if entries[0].Op != schema.RetryDelete || entries[0].ID != "gone-1" || entries[0].Retries != 1 {
		t.Errorf("unexpected ledger entry: %+v", entries[0])
	}

	// A later run replays the delete from the ledger, so the remote row
	// cannot outlive the local deletion and come back on the next pull.
	failing.Store(false)
	result, err := m.DrainRetries(ctx)
	if err != nil {
		t.Fatalf("DrainRetries failed: %v", err)
	}
	if result.Replayed != 1 || result.Remaining != 0 {
		t.Errorf("expected 1 replayed, 0 remaining, got %+v", result)
	}
	entries, _ = m.store.RetryQueue(ctx)
	if len(entries) != 0 {
		t.Errorf("expected empty ledger after drain, got %d entries", len(entries))
	}
}

func TestInterruptedSaveRecoverableFromLedger(t *testing.T) {
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		return stmtErr("connection reset")
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	b := schema.NewBookmark("https://example.com", "Example")
	if err := m.SaveBookmark(ctx, b); err != nil {
		t.Fatalf("SaveBookmark failed: %v", err)
	}
	m.Wait()

	entries, err := m.store.RetryQueue(ctx)
	if err != nil {
		t.Fatalf("RetryQueue failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Op != schema.RetrySave || entries[0].ID != b.ID {
		t.Fatalf("expected one save ledger entry for %s, got %+v", b.ID, entries)
	}
	if entries[0].Bookmark == nil || entries[0].Bookmark.URL != b.URL {
		t.Errorf("ledger entry missing bookmark payload: %+v", entries[0])
	}
}

func TestLedgerWriteFailureSurfacedInResult(t *testing.T) {
	srv := fakeRemote(t, func(s fakeStmt) map[string]any {
		return stmtErr("connection reset")
	})
	defer srv.Close()

	m := newTestManager(t, srv.URL)
	ctx := context.Background()

	// Break the local store underneath the ledger.
	if err := m.store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b := schema.NewBookmark("https://example.com", "Example")
	res := m.saveRemote(ctx, b, false)
	if res.Success {
		t.Fatal("expected remote failure")
	}
	if !strings.Contains(res.Err, "retry not recorded") {
		t.Errorf("expected unrecorded-retry signal in result, got %q", res.Err)
	}
}

func TestReconfigure(t *testing.T) {
	m := newDisabledManager(t)

	if m.transport() != nil {
		t.Fatal("expected nil transport while disabled")
	}

	m.Reconfigure(Settings{URL: "https://db.example", Token: "tok", Enabled: true})
	if m.transport() == nil {
		t.Fatal("expected transport after enabling")
	}

	m.Reconfigure(Settings{URL: "https://db.example", Token: "tok", Enabled: false})
	if m.transport() != nil {
		t.Fatal("expected nil transport after disabling")
	}
}

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		want string
	}{
		{"configured but off", Settings{URL: "u", Token: "t"}, "cloud sync configured but not enabled"},
		{"fully off", Settings{}, "cloud sync disabled"},
		{"missing url", Settings{Enabled: true, Token: "t"}, "database URL not set"},
		{"missing token", Settings{Enabled: true, URL: "u"}, "auth token not set"},
		{"ready", Settings{Enabled: true, URL: "u", Token: "t"}, "cloud sync enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusMessage(tt.s); got != tt.want {
				t.Errorf("statusMessage(%+v) = %q, want %q", tt.s, got, tt.want)
			}
		})
	}
}

func TestStatusSnapshot(t *testing.T) {
	m := newDisabledManager(t)

	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Enabled || status.Syncing {
		t.Errorf("unexpected snapshot: %+v", status)
	}
	if status.Message != "cloud sync disabled" {
		t.Errorf("unexpected message: %q", status.Message)
	}
	if status.PendingRetries != 0 {
		t.Errorf("expected no pending retries, got %d", status.PendingRetries)
	}
}
