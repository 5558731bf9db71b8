package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS artworks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    platform TEXT NOT NULL,
    work_id TEXT NOT NULL,
    page INTEGER NOT NULL,
    user_id INTEGER,
    username TEXT,
    title TEXT,
    author TEXT,
    author_id TEXT,
    original_url TEXT,
    thumb_url TEXT,
    filename TEXT,
    extension TEXT,
    size INTEGER DEFAULT 0,
    width INTEGER DEFAULT 0,
    height INTEGER DEFAULT 0,
    nsfw INTEGER DEFAULT 0,
    ai INTEGER DEFAULT 0,
    guest INTEGER DEFAULT 0,
    raw_info TEXT,
    file_id_thumb TEXT,
    file_id_original TEXT,
    message_link TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    post_count INTEGER DEFAULT 1,
    UNIQUE(platform, work_id, page)
);

CREATE TABLE IF NOT EXISTS artwork_tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    work_id TEXT NOT NULL,
    tag TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_confirmations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    message_id INTEGER NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_artworks_work ON artworks(platform, work_id);
CREATE INDEX IF NOT EXISTS idx_artworks_work_id ON artworks(work_id);
CREATE INDEX IF NOT EXISTS idx_artwork_tags_work ON artwork_tags(work_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
