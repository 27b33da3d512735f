package turso

import "context"

// InitSchema creates the remote tables if they don't exist.
//
// Normally the remote schema is provisioned by a setup step outside the sync
// engine; this exists so `collect remote init` can perform that step. It is
// idempotent - safe to call multiple times.
func (c *Client) InitSchema(ctx context.Context) *BatchResult {
	stmts := []Statement{
		{Query: `
		CREATE TABLE IF NOT EXISTS bookmarks (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			description TEXT,
			summary TEXT,
			category TEXT,
			tags TEXT,  -- JSON array
			screenshot TEXT,
			domain TEXT,
			created_at TEXT,
			updated_at TEXT
		)`},
		{Query: `
		CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			icon TEXT,
			parent_id TEXT,
			sort_order INTEGER,
			created_at TEXT,
			updated_at TEXT
		)`},
		{Query: `CREATE INDEX IF NOT EXISTS idx_bookmarks_created ON bookmarks(created_at)`},
		{Query: `CREATE INDEX IF NOT EXISTS idx_categories_sort ON categories(sort_order)`},
	}
	return c.Batch(ctx, stmts)
}
