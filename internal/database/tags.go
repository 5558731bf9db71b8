package database

// AppendTags records curated tags for a work in the append-only audit table.
// The pipeline never reads these back; they exist for offline inspection.
func (db *DB) AppendTags(workID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, tag := range tags {
		if _, err := tx.Exec(
			"INSERT INTO artwork_tags (work_id, tag) VALUES (?, ?)", workID, tag,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTags returns the audit trail for a work, in insertion order.
func (db *DB) GetTags(workID string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT tag FROM artwork_tags WHERE work_id = ? ORDER BY id", workID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
