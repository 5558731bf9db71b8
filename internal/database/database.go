// Package database is the dedup and cache store: artwork page rows, the
// append-only tag audit trail, and pending restart confirmations.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalPages   int
	TotalWorks   int
	GuestPages   int
	Platforms    int
	TagRows      int
	TotalReposts int
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	row := db.conn.QueryRow(`SELECT COUNT(*),
		COUNT(DISTINCT platform || ':' || work_id),
		COALESCE(SUM(guest), 0),
		COUNT(DISTINCT platform),
		COALESCE(SUM(post_count - 1), 0)
		FROM artworks`)
	if err := row.Scan(&s.TotalPages, &s.TotalWorks, &s.GuestPages, &s.Platforms, &s.TotalReposts); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM artwork_tags").Scan(&s.TagRows); err != nil {
		return nil, err
	}
	return s, nil
}
