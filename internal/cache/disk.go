package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiskStore keeps the committed unit as a JSON document on disk. Commit goes
// through a temp file and a rename so a crash never leaves a half-written
// unit behind.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) payloadPath() string {
	return filepath.Join(s.dir, "payload.json")
}

func (s *DiskStore) backupPath() string {
	return filepath.Join(s.dir, "backup.json")
}

func (s *DiskStore) Commit(payloads ...string) error {
	data, err := json.MarshalIndent(unit{CommittedAt: time.Now().UTC(), Payloads: payloads}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache unit: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "payload-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp unit: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp unit: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp unit: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.payloadPath()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

func (s *DiskStore) Retrieve() (string, error) {
	data, err := os.ReadFile(s.payloadPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read cache unit: %w", err)
	}

	var u unit
	if err := json.Unmarshal(data, &u); err != nil {
		return "", fmt.Errorf("unmarshal cache unit: %w", err)
	}
	if len(u.Payloads) == 0 {
		return "", ErrNotFound
	}
	return u.Payloads[0], nil
}

// Backup snapshots the current unit into a sibling file. An empty store
// backs up as an explicitly empty unit, so Recover can tell "backed up
// empty" from "never backed up".
func (s *DiskStore) Backup() error {
	data, err := os.ReadFile(s.payloadPath())
	if errors.Is(err, os.ErrNotExist) {
		empty, merr := json.Marshal(unit{Payloads: []string{}})
		if merr != nil {
			return fmt.Errorf("marshal empty backup: %w", merr)
		}
		data = empty
	} else if err != nil {
		return fmt.Errorf("read unit for backup: %w", err)
	}

	if err := os.WriteFile(s.backupPath(), data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func (s *DiskStore) Recover() error {
	data, err := os.ReadFile(s.backupPath())
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoBackup
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	var u unit
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("unmarshal backup: %w", err)
	}
	if len(u.Payloads) == 0 {
		if err := os.Remove(s.payloadPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("drop unit: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(s.payloadPath(), data, 0o644); err != nil {
		return fmt.Errorf("restore unit: %w", err)
	}
	return nil
}

func (s *DiskStore) Clean() error {
	for _, path := range []string{s.payloadPath(), s.backupPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clean cache: %w", err)
		}
	}
	return nil
}

func (s *DiskStore) Close() error {
	return nil
}
