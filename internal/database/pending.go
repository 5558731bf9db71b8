package database

import "database/sql"

// PendingConfirmation is a status message awaiting an edit after a restart.
// Persisting it here (instead of a scratch file) keeps the continuation
// crash-safe: the next startup either finds it or it never existed.
type PendingConfirmation struct {
	ID        int64
	ChatID    int64
	MessageID int64
}

// SavePendingConfirmation records a status message to be edited on next startup.
func (db *DB) SavePendingConfirmation(chatID, messageID int64) error {
	_, err := db.conn.Exec(
		"INSERT INTO pending_confirmations (chat_id, message_id) VALUES (?, ?)",
		chatID, messageID,
	)
	return err
}

// TakePendingConfirmation returns and removes the oldest pending confirmation,
// or nil when none is stored.
func (db *DB) TakePendingConfirmation() (*PendingConfirmation, error) {
	var p PendingConfirmation
	err := db.conn.QueryRow(
		"SELECT id, chat_id, message_id FROM pending_confirmations ORDER BY id LIMIT 1",
	).Scan(&p.ID, &p.ChatID, &p.MessageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := db.conn.Exec("DELETE FROM pending_confirmations WHERE id = ?", p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}
