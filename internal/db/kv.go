package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/scout/internal/chat"
)

// Well-known settings keys.
const (
	KeyBaseURL    = "api.base_url"
	KeyCredential = "gpss.credential"
)

// KV adapts the settings table to the small key-value ports used by the
// session, results and orchestrator packages.
type KV struct {
	db *sql.DB
}

// NewKV wraps database.
func NewKV(database *sql.DB) *KV {
	return &KV{db: database}
}

// Get returns the value under key; the bool is false when absent.
func (k *KV) Get(key string) (string, bool, error) {
	return GetSetting(k.db, key)
}

// Set stores value under key.
func (k *KV) Set(key, value string) error {
	return SetSetting(k.db, key, value)
}

// Delete removes key.
func (k *KV) Delete(key string) error {
	return DeleteSetting(k.db, key)
}

// DeletePrefix removes every key under prefix.
func (k *KV) DeletePrefix(prefix string) (int, error) {
	return DeleteSettingsWithPrefix(k.db, prefix)
}

// Credential returns the stored GPSS credential, "" when unset.
func (k *KV) Credential() (string, error) {
	v, _, err := GetSetting(k.db, KeyCredential)
	return v, err
}

// SetCredential stores the GPSS credential. An empty value removes it.
func (k *KV) SetCredential(v string) error {
	if v == "" {
		return DeleteSetting(k.db, KeyCredential)
	}
	return SetSetting(k.db, KeyCredential, v)
}

// TurnLog persists the chat transcript.
type TurnLog struct {
	db *sql.DB
}

// NewTurnLog wraps database.
func NewTurnLog(database *sql.DB) *TurnLog {
	return &TurnLog{db: database}
}

// Append adds t to the end of the transcript.
func (l *TurnLog) Append(ctx context.Context, t chat.Turn) error {
	return InsertTurn(ctx, l.db, t)
}

// List returns the transcript in insertion order.
func (l *TurnLog) List(ctx context.Context) ([]chat.Turn, error) {
	return ListTurns(ctx, l.db)
}

// Clear removes every turn.
func (l *TurnLog) Clear(ctx context.Context) error {
	return DeleteTurns(ctx, l.db)
}
