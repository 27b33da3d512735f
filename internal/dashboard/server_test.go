package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/store"
	"github.com/webcollect/collector/internal/sync"
)

func startTestServer(t *testing.T, engine sync.Engine) *Server {
	t.Helper()
	s := NewServer(&Config{
		Port:   0, // pick a free port
		Engine: engine,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func newTestEngine(t *testing.T) *sync.Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return sync.New(st, sync.Settings{}, log.New(io.Discard, "", 0))
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.GetAddr()))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("unexpected health response: %+v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := startTestServer(t, newTestEngine(t))

	resp, err := http.Get(fmt.Sprintf("http://%s/status", s.GetAddr()))
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Syncing        bool   `json:"syncing"`
		PendingRetries int    `json:"pending_retries"`
		Message        string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode status response: %v", err)
	}
	if body.Syncing {
		t.Error("no sync should be running")
	}
	if body.Message != "cloud sync disabled" {
		t.Errorf("unexpected status message: %q", body.Message)
	}
}

func TestStatusEndpointWithoutEngine(t *testing.T) {
	s := startTestServer(t, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", s.GetAddr()))
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without an engine, got %d", resp.StatusCode)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	s := startTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", s.GetAddr()), nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait until the server registered the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatal("client was not registered")
	}

	handler := NewHandler(s, log.New(io.Discard, "", 0))
	handler.BookmarkSaved(&schema.Bookmark{ID: "b1", URL: "https://example.com", Title: "Example"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != MessageTypeBookmarkSaved {
		t.Errorf("expected %s, got %s", MessageTypeBookmarkSaved, msg.Type)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ID != "b1" {
		t.Errorf("expected bookmark b1, got %s", payload.ID)
	}
}
