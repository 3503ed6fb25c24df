package imagecache

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	policy retry.Policy
	now    func() time.Time
}

// NewSQLiteStore opens (creating if needed) the cache database at dbPath.
// Use ":memory:" for a throwaway cache.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.WrapError(err, errors.CategoryCache, "create cache directory").WithContext(logfields.KeyPath, dbPath).Build()
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCache, ErrDatabaseOpenFailed.Message()).WithContext(logfields.KeyPath, dbPath).Build()
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, policy: retry.DefaultPolicy(), now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, errors.WrapError(err, errors.CategoryCache, ErrInitializeSchemaFailed.Message()).WithContext(logfields.KeyPath, dbPath).Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	// In-memory databases stay in "memory" mode.
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS transforms (
		key TEXT PRIMARY KEY,
		format TEXT NOT NULL,
		data BLOB NOT NULL,
		used_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transforms_used_at ON transforms(used_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// JournalMode reports the active SQLite journal mode.
func (s *SQLiteStore) JournalMode(ctx context.Context) (string, error) {
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", fmt.Errorf("query journal mode: %w", err)
	}
	return mode, nil
}

// Get implements Store. A hit refreshes the entry's last-use time.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM transforms WHERE key = ?", key).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query transform: %w", err)
	}
	err = s.policy.Do(ctx, isBusy, func() error {
		_, err := s.db.ExecContext(ctx, "UPDATE transforms SET used_at = ? WHERE key = ?", s.now().Unix(), key)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("touch transform: %w", err)
	}
	return data, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, key, format string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.policy.Do(ctx, isBusy, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT OR REPLACE INTO transforms (key, format, data, used_at) VALUES (?, ?, ?, ?)",
			key, format, data, s.now().Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert transform: %w", err)
	}
	return nil
}

// Len implements Store.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transforms").Scan(&n); err != nil {
		return 0, fmt.Errorf("count transforms: %w", err)
	}
	return n, nil
}

// Prune deletes entries last used before cutoff and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	err := s.policy.Do(ctx, isBusy, func() error {
		var err error
		res, err = s.db.ExecContext(ctx, "DELETE FROM transforms WHERE used_at < ?", cutoff.Unix())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune transforms: %w", err)
	}
	return res.RowsAffected()
}

// isBusy matches SQLite lock contention from another process sharing the cache file.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
