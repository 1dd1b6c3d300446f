package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage persists memory items in a SQLite database. Multiple stores
// may share one file by using distinct namespaces.
type SQLiteStorage struct {
	db        *sql.DB
	namespace string
}

// NewSQLiteStorage opens (or creates) the database at path and scopes all
// operations to the given namespace.
func NewSQLiteStorage(path, namespace string) (*SQLiteStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	s := &SQLiteStorage{db: db, namespace: namespace}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate memory database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memory_items (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_accessed DATETIME NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		PRIMARY KEY (namespace, key)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_items_accessed ON memory_items(namespace, last_accessed);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveItem inserts or replaces the item in this namespace.
func (s *SQLiteStorage) SaveItem(item Item) error {
	valueJSON, err := json.Marshal(item.Value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	var metaJSON *string
	if len(item.Metadata) > 0 {
		data, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		str := string(data)
		metaJSON = &str
	}

	_, err = s.db.Exec(`
		INSERT INTO memory_items (namespace, key, value, created_at, last_accessed, access_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			metadata = excluded.metadata
	`, s.namespace, item.Key, string(valueJSON), item.CreatedAt, item.LastAccessed, item.AccessCount, metaJSON)
	return err
}

// LoadAll returns every item in this namespace.
func (s *SQLiteStorage) LoadAll() ([]Item, error) {
	rows, err := s.db.Query(`
		SELECT key, value, created_at, last_accessed, access_count, metadata
		FROM memory_items
		WHERE namespace = ?
	`, s.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var valueJSON string
		var metaJSON sql.NullString
		if err := rows.Scan(&item.Key, &valueJSON, &item.CreatedAt, &item.LastAccessed, &item.AccessCount, &metaJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(valueJSON), &item.Value); err != nil {
			// Legacy rows may hold raw strings rather than JSON.
			item.Value = valueJSON
		}
		if metaJSON.Valid && metaJSON.String != "" {
			var meta map[string]interface{}
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				item.Metadata = meta
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem removes the keyed item from this namespace.
func (s *SQLiteStorage) DeleteItem(key string) error {
	_, err := s.db.Exec("DELETE FROM memory_items WHERE namespace = ? AND key = ?", s.namespace, key)
	return err
}

// Clear deletes all items in this namespace.
func (s *SQLiteStorage) Clear() error {
	_, err := s.db.Exec("DELETE FROM memory_items WHERE namespace = ?", s.namespace)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// OpenStore builds a store from config, wiring SQLite persistence when
// requested. The namespace keeps distinct agents apart inside one file.
func OpenStore(cfg Config, namespace string) (*Store, error) {
	if !cfg.Persist {
		return NewStore(cfg), nil
	}
	path := cfg.StoragePath
	if path == "" {
		path = filepath.Join(".troupe", "memory.db")
	}
	storage, err := NewSQLiteStorage(path, namespace)
	if err != nil {
		return nil, err
	}
	return NewStoreWithStorage(cfg, storage)
}
