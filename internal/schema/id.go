package schema

import "github.com/google/uuid"

// NewID returns a fresh opaque identifier. IDs are unique, assigned at
// creation, and never reused; entities are keyed by them in both stores.
func NewID() string {
	return uuid.NewString()
}
