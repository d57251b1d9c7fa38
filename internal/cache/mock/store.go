package mock

import (
	"github.com/ElvertMora/grimoirelab-perceval/internal/cache"
)

// Store keeps the committed unit in memory and records every call, so tests
// can assert exactly when the cache was touched.
type Store struct {
	Unit        []string
	BackupUnit  []string
	HasBackup   bool
	Calls       []string
	CommitErr   error
	RetrieveErr error
}

func (s *Store) Commit(payloads ...string) error {
	s.Calls = append(s.Calls, "commit")
	if s.CommitErr != nil {
		return s.CommitErr
	}
	s.Unit = append([]string(nil), payloads...)
	return nil
}

func (s *Store) Retrieve() (string, error) {
	s.Calls = append(s.Calls, "retrieve")
	if s.RetrieveErr != nil {
		return "", s.RetrieveErr
	}
	if len(s.Unit) == 0 {
		return "", cache.ErrNotFound
	}
	return s.Unit[0], nil
}

func (s *Store) Backup() error {
	s.Calls = append(s.Calls, "backup")
	s.BackupUnit = append([]string(nil), s.Unit...)
	s.HasBackup = true
	return nil
}

func (s *Store) Recover() error {
	s.Calls = append(s.Calls, "recover")
	if !s.HasBackup {
		return cache.ErrNoBackup
	}
	s.Unit = append([]string(nil), s.BackupUnit...)
	return nil
}

func (s *Store) Clean() error {
	s.Calls = append(s.Calls, "clean")
	s.Unit = nil
	s.BackupUnit = nil
	s.HasBackup = false
	return nil
}

func (s *Store) Close() error {
	s.Calls = append(s.Calls, "close")
	return nil
}

// CallCount reports how many times op was recorded.
func (s *Store) CallCount(op string) int {
	n := 0
	for _, call := range s.Calls {
		if call == op {
			n++
		}
	}
	return n
}
