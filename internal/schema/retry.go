package schema

import (
	"fmt"
	"time"
)

// RetryOp names the remote operation a retry entry replays.
type RetryOp string

const (
	// RetrySave replays a bookmark upsert.
	RetrySave RetryOp = "save"
	// RetryDelete replays a bookmark delete.
	RetryDelete RetryOp = "delete"
)

// RetryEntry is one durably recorded failed remote mutation, pending replay.
//
// The ledger holds at most one entry per (Op, ID) pair; repeated failures
// increment Retries on the existing entry rather than duplicating it.
type RetryEntry struct {
	Op RetryOp `json:"type"`

	// ID is the bookmark id the operation targets.
	ID string `json:"id"`

	// Bookmark carries the full payload for save operations; nil for deletes.
	Bookmark *Bookmark `json:"data,omitempty"`

	// Retries counts attempts so far.
	Retries int `json:"retries"`

	// CreatedAt is when the entry was first recorded. Informational.
	CreatedAt time.Time `json:"timestamp"`
}

// Key returns the deduplication key for the ledger: one entry per (Op, ID).
func (e *RetryEntry) Key() string {
	return fmt.Sprintf("%s:%s", e.Op, e.ID)
}

// Validate checks if the RetryEntry has valid field values.
func (e *RetryEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch e.Op {
	case RetrySave:
		if e.Bookmark == nil {
			return fmt.Errorf("save entry %s has no bookmark payload", e.ID)
		}
	case RetryDelete:
	default:
		return fmt.Errorf("unknown retry op %q", e.Op)
	}
	return nil
}
