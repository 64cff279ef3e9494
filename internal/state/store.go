// Package state persists sync bookkeeping in a local BadgerDB: which commit
// is indexed, which generation is live, and a raw-source cache of fetched
// corpus members.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	keyVersion = "state:version"
	keySlots   = "state:slots"

	// rawModulePrefix namespaces cached member sources, keyed by
	// "raw:<commit>:<path>".
	rawModulePrefix = "raw:"
)

// Version records what the current live generation was built from.
type Version struct {
	Commit      string    `json:"commit"`
	SyncedAt    time.Time `json:"synced_at"`
	RecordCount int       `json:"record_count"`
	MemberCount int       `json:"member_count"`
}

// Slots names the live generation and the previous one kept for rollback.
// Empty strings mean the slot is unoccupied.
type Slots struct {
	Current  string `json:"current"`
	Rollback string `json:"rollback"`
}

// Store is the local persistence layer. Safe for concurrent use; badger
// provides the transaction isolation.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens the state database at dir, creating it if needed.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens an ephemeral store backed by memory, for tests.
func OpenInMemory(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory state db: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Version returns the persisted version, or (nil, nil) if no sync has ever
// completed.
func (s *Store) Version() (*Version, error) {
	var version *Version
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyVersion))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			version = &Version{}
			return json.Unmarshal(val, version)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	return version, nil
}

// Slots returns the persisted generation slots. A fresh store returns zero
// slots rather than an error.
func (s *Store) Slots() (Slots, error) {
	var slots Slots
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keySlots))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &slots)
		})
	})
	if err != nil {
		return Slots{}, fmt.Errorf("read slots: %w", err)
	}
	return slots, nil
}

// CommitSwap records a completed swap: the new slots and the version they
// serve are written in one transaction, so readers never observe a live
// generation without its version or vice versa.
func (s *Store) CommitSwap(slots Slots, version Version) error {
	slotsBytes, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("marshal slots: %w", err)
	}
	versionBytes, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keySlots), slotsBytes); err != nil {
			return err
		}
		return txn.Set([]byte(keyVersion), versionBytes)
	})
	if err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}
	return nil
}

// CacheRawModule stores the fetched source of one member at one commit.
// The cache is advisory; losing it only costs a refetch.
func (s *Store) CacheRawModule(commit, path string, source []byte) error {
	key := rawModuleKey(commit, path)
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, source).WithTTL(7 * 24 * time.Hour)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache raw module %s: %w", path, err)
	}
	return nil
}

// RawModule returns the cached source of a member at a commit, or
// (nil, nil) on a cache miss.
func (s *Store) RawModule(commit, path string) ([]byte, error) {
	var source []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rawModuleKey(commit, path))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		source, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read raw module %s: %w", path, err)
	}
	return source, nil
}

func rawModuleKey(commit, path string) []byte {
	return []byte(rawModulePrefix + commit + ":" + path)
}
