package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/autofill/pkg/types"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	position    INTEGER PRIMARY KEY,
	keyname     TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL,
	is_secret   INTEGER NOT NULL DEFAULT 0,
	fake_value  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// SQLiteStore keeps the snapshot in an SQLite database: items in order in
// the items table, Safe Mode state and the whitelist in meta.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create vault directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault database: %w", err)
	}
	// One connection keeps pragmas and :memory: databases consistent.
	db.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create vault schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the snapshot.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	meta, err := s.loadMeta(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.SafeMode = meta["safe_mode"] == "true"
	if raw, ok := meta["metadata"]; ok && raw != "" {
		var md types.VaultMetadata
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode vault metadata: %w", err)
		}
		snap.Metadata = &md
	}
	if raw, ok := meta["whitelist"]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &snap.Whitelist); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode whitelist: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT keyname, description, value, is_secret, fake_value FROM items ORDER BY position`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item  types.PersonalInfoItem
			value string
		)
		if err := rows.Scan(&item.Keyname, &item.Description, &value, &item.IsSecret, &item.FakeValue); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan item: %w", err)
		}
		if err := json.Unmarshal([]byte(value), &item.Value); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode value of %s: %w", item.Keyname, err)
		}
		snap.Items = append(snap.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to read items: %w", err)
	}
	return snap, nil
}

func (s *SQLiteStore) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan vault meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// Save replaces the stored snapshot in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	metadata := ""
	if snap.Metadata != nil {
		raw, err := json.Marshal(snap.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode vault metadata: %w", err)
		}
		metadata = string(raw)
	}
	whitelist, err := json.Marshal(append([]string{}, snap.Whitelist...))
	if err != nil {
		return fmt.Errorf("failed to encode whitelist: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	for i, item := range snap.Items {
		value, err := json.Marshal(item.Value)
		if err != nil {
			return fmt.Errorf("failed to encode value of %s: %w", item.Keyname, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (position, keyname, description, value, is_secret, fake_value) VALUES (?, ?, ?, ?, ?, ?)`,
			i, item.Keyname, item.Description, string(value), item.IsSecret, item.FakeValue); err != nil {
			return fmt.Errorf("failed to insert item %s: %w", item.Keyname, err)
		}
	}

	safeMode := "false"
	if snap.SafeMode {
		safeMode = "true"
	}
	for k, v := range map[string]string{
		"safe_mode": safeMode,
		"metadata":  metadata,
		"whitelist": string(whitelist),
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("failed to store %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vault: %w", err)
	}
	return nil
}
