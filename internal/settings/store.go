// Package settings persists project-scoped key/value settings and the
// records of resources imported through the bridge.
package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LoaderNamespace holds url -> source path for imported resources
const LoaderNamespace = "tk-multi-loader2"

var ErrNotFound = errors.New("setting not found")

// Store handles settings persistence
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the settings database in dataDir
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "settings.db")
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS project_settings (
		project_id TEXT NOT NULL,
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (project_id, namespace, key)
	);

	CREATE TABLE IF NOT EXISTS resource_records (
		project_id TEXT NOT NULL,
		url TEXT NOT NULL,
		path TEXT NOT NULL,
		usage TEXT NOT NULL DEFAULT '',
		destination TEXT NOT NULL DEFAULT '',
		fingerprint TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		mod_time DATETIME,
		imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (project_id, url)
	);
	CREATE INDEX IF NOT EXISTS idx_records_project ON resource_records(project_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Set stores value as JSON under (projectID, namespace, key)
func (s *Store) Set(projectID, namespace, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s/%s: %w", namespace, key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO project_settings (project_id, namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		projectID, namespace, key, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store setting: %w", err)
	}
	return nil
}

// Get returns the raw JSON value stored under (projectID, namespace, key)
func (s *Store) Get(projectID, namespace, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRow(`
		SELECT value FROM project_settings WHERE project_id = ? AND namespace = ? AND key = ?`,
		projectID, namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query setting: %w", err)
	}
	return json.RawMessage(value), nil
}

// Namespace returns every key of a namespace, decoded. An empty namespace
// yields an empty map.
func (s *Store) Namespace(projectID, namespace string) (map[string]any, error) {
	rows, err := s.db.Query(`
		SELECT key, value FROM project_settings WHERE project_id = ? AND namespace = ? ORDER BY key`,
		projectID, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]any{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode setting %s/%s: %w", namespace, key, err)
		}
		out[key] = decoded
	}
	return out, rows.Err()
}

// Delete removes a setting. Deleting a missing key is not an error.
func (s *Store) Delete(projectID, namespace, key string) error {
	_, err := s.db.Exec(`
		DELETE FROM project_settings WHERE project_id = ? AND namespace = ? AND key = ?`,
		projectID, namespace, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}
