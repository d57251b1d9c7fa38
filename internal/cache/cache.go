package cache

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Store persists the raw payloads a fetch run committed. Stores hold a
// single slot: each Commit replaces the previous unit wholesale. Keeping a
// history of units is out of scope.
type Store interface {
	// Commit replaces the stored unit with the given payloads.
	Commit(payloads ...string) error
	// Retrieve returns the payload from the most recent Commit, or
	// ErrNotFound when nothing has been committed yet.
	Retrieve() (string, error)
	// Backup preserves the current unit (or its absence) so Recover can
	// restore it later.
	Backup() error
	// Recover restores whatever the last Backup preserved. ErrNoBackup
	// when Backup has never run.
	Recover() error
	// Clean drops the stored unit and any backup.
	Clean() error
	// Close releases the store's resources.
	Close() error
}

var (
	// ErrNotFound means the store holds no committed unit.
	ErrNotFound = errors.New("cache holds no committed payload")
	// ErrNoBackup means Recover was called without a preceding Backup.
	ErrNoBackup = errors.New("cache has no backup to recover")
)

// unit is one committed set of payloads, as the disk and badger stores
// serialize it.
type unit struct {
	CommittedAt time.Time `json:"committed_at"`
	Payloads    []string  `json:"payloads"`
}

// Store flavors selectable through configuration.
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// NewStore builds the configured store flavor rooted at dir.
func NewStore(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFiles:
		return NewDiskStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "cache.db"))
	case BackendBadger:
		return NewBadgerStore(filepath.Join(dir, "badger"))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// DefaultRoot returns the directory feed caches live under when the caller
// does not pick one.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".perceval", "cache")
	}
	return filepath.Join(home, ".perceval", "cache")
}

// PathForOrigin maps a feed origin to its cache directory under root. The
// origin is path-escaped so it always stays a single directory component.
func PathForOrigin(root, origin string) string {
	return filepath.Join(root, url.PathEscape(origin))
}
