// Package schema provides the entity types shared by the local store and the
// cloud synchronization engine.
//
// Bookmarks and categories are flat, JSON-friendly structures with
// last-write-wins semantics: every mutation bumps UpdatedAt, and the sync
// engine resolves conflicts by comparing timestamps.
package schema

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// MaxTitleLen bounds the stored page title.
	MaxTitleLen = 500

	// MaxTags bounds the number of tags on a single bookmark.
	MaxTags = 20

	// MaxTagLen bounds the length of a single tag in runes.
	MaxTagLen = 64
)

// Bookmark represents a saved, annotated reference to a webpage.
//
// The Screenshot field is local-only: it may hold a large data URI and is
// never mirrored to the remote store. Pull merges must take care to preserve
// it (see internal/sync).
type Bookmark struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Page Metadata =====
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Domain      string `json:"domain,omitempty"`

	// ===== Annotations =====
	Summary  string   `json:"summary,omitempty"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`

	// ===== Local-Only Payload =====
	Screenshot string `json:"screenshot,omitempty"`

	// ===== Timestamps (conflict resolution) =====
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewBookmark creates a bookmark for the given page with a fresh ID and
// current timestamps. The domain is derived from the URL; tags are
// normalized. The category defaults to the implicit "Other" bucket.
func NewBookmark(pageURL, title string) *Bookmark {
	now := time.Now().UTC()
	b := &Bookmark{
		ID:        NewID(),
		URL:       pageURL,
		Title:     title,
		Category:  DefaultCategoryName,
		Domain:    DomainOf(pageURL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return b
}

// Validate checks if the Bookmark has valid field values.
func (b *Bookmark) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(b.Title) > MaxTitleLen {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLen, len(b.Title))
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (b *Bookmark) SetDefaults() {
	if b.Category == "" {
		b.Category = DefaultCategoryName
	}
	if b.Domain == "" {
		b.Domain = DomainOf(b.URL)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
}

// UpdateTimestamp sets UpdatedAt to current time.
// This must be called whenever any field is modified, since UpdatedAt is the
// authoritative field for sync conflict resolution.
func (b *Bookmark) UpdateTimestamp() {
	b.UpdatedAt = time.Now().UTC()
}

// EffectiveTime returns the timestamp used for conflict resolution:
// UpdatedAt, falling back to CreatedAt, falling back to the zero time.
// An unknown timestamp never fails a merge; it simply loses every comparison.
func (b *Bookmark) EffectiveTime() time.Time {
	if !b.UpdatedAt.IsZero() {
		return b.UpdatedAt
	}
	return b.CreatedAt
}

// NormalizeTags trims, deduplicates and length-bounds the tag list in place.
// Tag order is preserved for the first occurrence of each tag.
func (b *Bookmark) NormalizeTags() {
	seen := make(map[string]bool, len(b.Tags))
	out := b.Tags[:0]
	for _, tag := range b.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		if runes := []rune(tag); len(runes) > MaxTagLen {
			tag = string(runes[:MaxTagLen])
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) >= MaxTags {
			break
		}
	}
	b.Tags = out
}

// DomainOf extracts the host portion of a URL for display and grouping.
// Returns "" if the URL cannot be parsed.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
