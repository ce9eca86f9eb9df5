package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/scout/internal/chat"
	"github.com/hpungsan/scout/internal/errors"
)

// GetSetting returns the value stored under key.
// The bool is false when the key is absent.
func GetSetting(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// SetSetting inserts or replaces the value stored under key.
func SetSetting(db *sql.DB, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSetting removes key. Deleting an absent key is not an error.
func DeleteSetting(db *sql.DB, key string) error {
	if _, err := db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSettingsWithPrefix removes every key starting with prefix and
// returns the number removed.
func DeleteSettingsWithPrefix(db *sql.DB, prefix string) (int, error) {
	result, err := db.Exec(`DELETE FROM settings WHERE key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

// InsertTurn appends a chat turn.
func InsertTurn(ctx context.Context, db *sql.DB, t chat.Turn) error {
	query := `
		INSERT INTO chat_turns (session_id, role, content, memory_mode, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	memory := 0
	if t.MemoryMode {
		memory = 1
	}
	if _, err := db.ExecContext(ctx, query, t.SessionID, string(t.Role), t.Content, memory, t.Timestamp.UnixMilli()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListTurns returns all chat turns in insertion order.
func ListTurns(ctx context.Context, db *sql.DB) ([]chat.Turn, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, role, content, memory_mode, created_at
		FROM chat_turns
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	turns := make([]chat.Turn, 0)
	for rows.Next() {
		var (
			t       chat.Turn
			role    string
			memory  int
			created int64
		)
		if err := rows.Scan(&t.SessionID, &role, &t.Content, &memory, &created); err != nil {
			return nil, errors.NewInternal(err)
		}
		t.Role = chat.Role(role)
		t.MemoryMode = memory != 0
		t.Timestamp = time.UnixMilli(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return turns, nil
}

// DeleteTurns removes the whole transcript. Only used by an application reset.
func DeleteTurns(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM chat_turns`); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
