package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	badgerPayloadKey = []byte("payload")
	badgerBackupKey  = []byte("backup")
)

// BadgerStore keeps the committed unit in a badger key-value database.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Commit(payloads ...string) error {
	data, err := json.Marshal(unit{CommittedAt: time.Now().UTC(), Payloads: payloads})
	if err != nil {
		return fmt.Errorf("marshal cache unit: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerPayloadKey, data)
	})
	if err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

func (s *BadgerStore) Retrieve() (string, error) {
	var u unit
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerPayloadKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read unit: %w", err)
	}
	if len(u.Payloads) == 0 {
		return "", ErrNotFound
	}
	return u.Payloads[0], nil
}

// Backup copies the unit value under the backup key. An absent unit backs up
// as an explicit empty unit, so Recover can tell "backed up empty" from
// "never backed up".
func (s *BadgerStore) Backup() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerPayloadKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			empty, merr := json.Marshal(unit{Payloads: []string{}})
			if merr != nil {
				return merr
			}
			return txn.Set(badgerBackupKey, empty)
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Set(badgerBackupKey, data)
	})
	if err != nil {
		return fmt.Errorf("backup unit: %w", err)
	}
	return nil
}

func (s *BadgerStore) Recover() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerBackupKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoBackup
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var u unit
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		if len(u.Payloads) == 0 {
			return txn.Delete(badgerPayloadKey)
		}
		return txn.Set(badgerPayloadKey, data)
	})
	if errors.Is(err, ErrNoBackup) {
		return ErrNoBackup
	}
	if err != nil {
		return fmt.Errorf("recover unit: %w", err)
	}
	return nil
}

func (s *BadgerStore) Clean() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(badgerPayloadKey); err != nil {
			return err
		}
		return txn.Delete(badgerBackupKey)
	})
	if err != nil {
		return fmt.Errorf("clean cache: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
