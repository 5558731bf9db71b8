package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/NahidaBot/Nahida-Picbot/internal/artwork"
)

const timeLayout = "2006-01-02 15:04:05"

// SaveArtworks persists a batch of page records in one transaction. Records
// with a zero ID are inserted; the rest are updated in place. Callers invoke
// this only after the publish step succeeds, so a failed canonical publish
// leaves no canonical artifact behind.
func (db *DB) SaveArtworks(records []*artwork.Artwork) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, a := range records {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
		if a.PostCount == 0 {
			a.PostCount = 1
		}

		if a.ID == 0 {
			res, err := tx.Exec(
				`INSERT INTO artworks (platform, work_id, page, user_id, username,
					title, author, author_id, original_url, thumb_url, filename,
					extension, size, width, height, nsfw, ai, guest, raw_info,
					file_id_thumb, file_id_original, message_link,
					created_at, updated_at, post_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.Platform, a.WorkID, a.Page, a.UserID, a.Username,
				a.Title, a.Author, a.AuthorID, a.OriginalURL, a.ThumbURL, a.FileName,
				a.Extension, a.Size, a.Width, a.Height, boolInt(a.NSFW), boolInt(a.AI),
				boolInt(a.Guest), a.RawInfo, a.FileIDThumb, a.FileIDOriginal, a.MessageLink,
				a.CreatedAt.Format(timeLayout), a.UpdatedAt.Format(timeLayout), a.PostCount,
			)
			if err != nil {
				return fmt.Errorf("inserting %s/%s page %d: %w", a.Platform, a.WorkID, a.Page, err)
			}
			a.ID, _ = res.LastInsertId()
			continue
		}

		_, err := tx.Exec(
			`UPDATE artworks SET user_id = ?, username = ?, nsfw = ?, ai = ?,
				guest = ?, file_id_thumb = ?, file_id_original = ?, message_link = ?,
				updated_at = ?, post_count = ?
			WHERE id = ?`,
			a.UserID, a.Username, boolInt(a.NSFW), boolInt(a.AI), boolInt(a.Guest),
			a.FileIDThumb, a.FileIDOriginal, a.MessageLink,
			a.UpdatedAt.Format(timeLayout), a.PostCount, a.ID,
		)
		if err != nil {
			return fmt.Errorf("updating artwork %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// FindCanonical returns the first non-guest page for a work, or nil. Guest
// rows never count as duplicates.
func (db *DB) FindCanonical(platform, workID string) (*artwork.Artwork, error) {
	rows, err := db.conn.Query(selectArtwork+
		` WHERE platform = ? AND work_id = ? AND guest = 0 ORDER BY page LIMIT 1`,
		platform, workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records, err := scanArtworks(rows)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// GetPages returns every page cached for a work regardless of guest state,
// ordered by page number. An empty slice means a cache miss.
func (db *DB) GetPages(platform, workID string) ([]*artwork.Artwork, error) {
	rows, err := db.conn.Query(selectArtwork+
		` WHERE platform = ? AND work_id = ? ORDER BY page`,
		platform, workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtworks(rows)
}

// GetWorkPages returns pages for a work id across platforms, optionally
// restricted to canonical rows. Used by the manual originals replay, which
// only has a bare work id extracted from a message URL.
func (db *DB) GetWorkPages(workID string, canonicalOnly bool) ([]*artwork.Artwork, error) {
	query := selectArtwork + ` WHERE work_id = ?`
	if canonicalOnly {
		query += ` AND guest = 0`
	}
	query += ` ORDER BY page`

	rows, err := db.conn.Query(query, workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtworks(rows)
}

// Unmark deletes every page and tag row for a work id. Administrative: this
// is the only hard delete in the system.
func (db *DB) Unmark(workID string) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin unmark: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM artworks WHERE work_id = ?", workID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec("DELETE FROM artwork_tags WHERE work_id = ?", workID); err != nil {
		return 0, err
	}

	removed, _ := res.RowsAffected()
	return removed, tx.Commit()
}

const selectArtwork = `SELECT id, platform, work_id, page, user_id, username,
	title, author, author_id, original_url, thumb_url, filename, extension,
	size, width, height, nsfw, ai, guest, raw_info, file_id_thumb,
	file_id_original, message_link, created_at, updated_at, post_count
	FROM artworks`

func scanArtworks(rows *sql.Rows) ([]*artwork.Artwork, error) {
	var records []*artwork.Artwork
	for rows.Next() {
		var a artwork.Artwork
		var nsfw, ai, guest int
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.Platform, &a.WorkID, &a.Page, &a.UserID,
			&a.Username, &a.Title, &a.Author, &a.AuthorID, &a.OriginalURL,
			&a.ThumbURL, &a.FileName, &a.Extension, &a.Size, &a.Width, &a.Height,
			&nsfw, &ai, &guest, &a.RawInfo, &a.FileIDThumb, &a.FileIDOriginal,
			&a.MessageLink, &createdAt, &updatedAt, &a.PostCount); err != nil {
			return nil, err
		}
		a.NSFW = nsfw != 0
		a.AI = ai != 0
		a.Guest = guest != 0
		a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		a.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
		records = append(records, &a)
	}
	return records, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
