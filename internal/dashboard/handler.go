package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/webcollect/collector/internal/schema"
	"github.com/webcollect/collector/internal/sync"
)

// Handler bridges engine events to the WebSocket server. It implements
// sync.Notifier; callbacks only marshal and enqueue, they never block.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

var _ sync.Notifier = (*Handler)(nil)

// BookmarkSaved broadcasts a locally saved bookmark
func (h *Handler) BookmarkSaved(b *schema.Bookmark) {
	h.send(MessageTypeBookmarkSaved, map[string]interface{}{
		"id":       b.ID,
		"url":      b.URL,
		"title":    b.Title,
		"category": b.Category,
	})
}

// PushComplete broadcasts the outcome of a full-library push
func (h *Handler) PushComplete(result *sync.PushResult) {
	h.send(MessageTypePush, map[string]interface{}{
		"success":       result.Success,
		"success_count": result.SuccessCount,
		"fail_count":    result.FailCount,
		"message":       result.Message,
	})
}

// PullComplete broadcasts the outcome of a pull-merge cycle
func (h *Handler) PullComplete(result *sync.PullResult) {
	h.send(MessageTypePull, map[string]interface{}{
		"bookmarks": len(result.Bookmarks),
		"uploaded":  result.Uploaded,
		"message":   result.Message,
	})
}

// CategoriesPushed broadcasts a completed category push
func (h *Handler) CategoriesPushed(result *sync.CategoryPushResult) {
	h.send(MessageTypeCategories, map[string]interface{}{
		"action":  "pushed",
		"success": result.Success,
		"count":   result.Count,
		"message": result.Message,
	})
}

// CategoriesSynced broadcasts a completed category pull-merge
func (h *Handler) CategoriesSynced(result *sync.CategorySyncResult) {
	h.send(MessageTypeCategories, map[string]interface{}{
		"action":   "synced",
		"count":    len(result.Categories),
		"changed":  result.Changed,
		"uploaded": result.Uploaded,
		"message":  result.Message,
	})
}

// DrainComplete broadcasts the outcome of a retry ledger sweep
func (h *Handler) DrainComplete(result *sync.DrainResult) {
	h.send(MessageTypeDrain, map[string]interface{}{
		"replayed":  result.Replayed,
		"abandoned": result.Abandoned,
		"remaining": result.Remaining,
	})
}

func (h *Handler) send(typ MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("Failed to marshal %s event: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	})
}
