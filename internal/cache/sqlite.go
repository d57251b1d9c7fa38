package cache

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps the committed unit in a one-row sqlite database, which
// makes Commit a transactional replace.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("cache database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Commit(payloads ...string) error {
	data, err := json.Marshal(payloads)
	if err != nil {
		return fmt.Errorf("marshal cache unit: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO payload_unit (slot, committed_at, payloads) VALUES (0, ?, ?)",
		time.Now().Unix(), string(data),
	)
	if err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Retrieve() (string, error) {
	var data string
	err := s.db.QueryRow("SELECT payloads FROM payload_unit WHERE slot = 0").Scan(&data)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read unit: %w", err)
	}

	var payloads []string
	if err := json.Unmarshal([]byte(data), &payloads); err != nil {
		return "", fmt.Errorf("unmarshal unit: %w", err)
	}
	if len(payloads) == 0 {
		return "", ErrNotFound
	}
	return payloads[0], nil
}

// Backup copies the unit row into the backup table. When the unit table is
// empty an explicit empty marker row is written, so Recover can tell
// "backed up empty" from "never backed up".
func (s *SQLiteStore) Backup() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin backup: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM payload_backup"); err != nil {
		return fmt.Errorf("reset backup: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO payload_backup SELECT * FROM payload_unit"); err != nil {
		return fmt.Errorf("copy unit to backup: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO payload_backup (slot, committed_at, payloads) VALUES (0, 0, '[]')",
	); err != nil {
		return fmt.Errorf("mark backup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit backup: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recover() error {
	var committedAt int64
	var data string
	err := s.db.QueryRow("SELECT committed_at, payloads FROM payload_backup WHERE slot = 0").
		Scan(&committedAt, &data)
	if err == sql.ErrNoRows {
		return ErrNoBackup
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	var payloads []string
	if err := json.Unmarshal([]byte(data), &payloads); err != nil {
		return fmt.Errorf("unmarshal backup: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin recover: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM payload_unit"); err != nil {
		return fmt.Errorf("drop unit: %w", err)
	}
	if len(payloads) > 0 {
		if _, err := tx.Exec(
			"INSERT INTO payload_unit (slot, committed_at, payloads) VALUES (0, ?, ?)",
			committedAt, data,
		); err != nil {
			return fmt.Errorf("restore unit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recover: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clean() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin clean: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM payload_unit"); err != nil {
		return fmt.Errorf("clean unit: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM payload_backup"); err != nil {
		return fmt.Errorf("clean backup: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clean: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
