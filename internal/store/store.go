// Package store persists the four pincafe collections in an embedded SQLite
// database.
//
// The database runs in WAL mode through the ncruces/go-sqlite3 driver. Each
// collection lives in its own table holding the record as JSON next to a few
// indexed helper columns:
//
//	products       id, category, data
//	categories     id, name (unique), data
//	dining_tables  id, data
//	transactions   id, date, data
//	settings       key, value
//
// Writes are serialized by the store and run inside one SQL transaction per
// Update call, so readers and ExportSnapshot never observe half of a change.
// Every committed local write advances Revision; imports do not.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"
)

var (
	// ErrStorageUnavailable wraps any failure to open, read or write the database.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when an insert reuses an existing id or a
	// category name that is already taken.
	ErrConflict = errors.New("record conflict")
)

// Options configures Open.
type Options struct {
	// NodeID seeds the snowflake id generator (0-1023). Devices sharing a
	// document must use different nodes; see NodeForDevice.
	NodeID int64

	// Logger receives warnings. Nil discards them.
	Logger *zap.Logger
}

// NodeForDevice maps a device id onto a snowflake node number.
func NodeForDevice(deviceID string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return int64(h.Sum32() % 1024)
}

// Store is the local persistence layer of one device.
type Store struct {
	conn   *sql.DB
	path   string
	node   atomic.Pointer[snowflake.Node]
	logger *zap.Logger

	// mu serializes writers and snapshot exports.
	mu       sync.Mutex
	revision atomic.Uint64
	closed   atomic.Bool
	onCommit atomic.Pointer[func(uint64)]
}

// Open opens or creates the database at path and initializes the schema.
//
// The caller must call Close when done so the WAL is checkpointed.
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, storageErr("create database directory", err)
	}

	// busy_timeout is per connection, so it goes in the DSN for the whole pool.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, storageErr("open database", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, storageErr("ping database", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: logger.Named("store"),
	}
	s.node.Store(node)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, storageErr("enable WAL mode", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the database. Calls made after Close
// fail with ErrStorageUnavailable. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("failed to checkpoint WAL", zap.Error(err))
	}
	if err := s.conn.Close(); err != nil {
		return storageErr("close database", err)
	}
	return nil
}

// Revision returns the number of committed local writes since Open.
func (s *Store) Revision() uint64 {
	return s.revision.Load()
}

// NewID returns a fresh snowflake id.
func (s *Store) NewID() int64 {
	return s.node.Load().Generate().Int64()
}

// SetNode switches the id generator to another snowflake node, for example
// once the device id is known.
func (s *Store) SetNode(nodeID int64) error {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("failed to create id generator: %w", err)
	}
	s.node.Store(node)
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dining_tables (
		id INTEGER PRIMARY KEY,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY,
		date TEXT NOT NULL,
		data TEXT NOT NULL
	);

	-- Device-local settings, never replicated
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
	`

	if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
		return storageErr("initialize schema", err)
	}
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return fmt.Errorf("%w: store is closed", ErrStorageUnavailable)
	}
	return nil
}

// Update runs fn inside one SQL transaction while holding the write lock.
// If fn returns an error the transaction is rolled back and the error is
// returned unchanged. A transaction that wrote anything advances Revision and
// then runs the commit hook, outside the lock.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	rev, err := s.commit(ctx, fn)
	if err != nil {
		return err
	}
	if rev > 0 {
		if hook := s.onCommit.Load(); hook != nil {
			(*hook)(rev)
		}
	}
	return nil
}

// commit returns the new revision, or 0 when fn wrote nothing.
func (s *Store) commit(ctx context.Context, fn func(tx *Tx) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty, err := s.updateLocked(ctx, fn)
	if err != nil || !dirty {
		return 0, err
	}
	return s.revision.Add(1), nil
}

// SetCommitHook registers fn to run after every Update that advanced
// Revision. It replaces any previous hook; nil removes it.
func (s *Store) SetCommitHook(fn func(revision uint64)) {
	if fn == nil {
		s.onCommit.Store(nil)
		return
	}
	s.onCommit.Store(&fn)
}

// updateLocked runs fn in a transaction. The caller holds s.mu.
func (s *Store) updateLocked(ctx context.Context, fn func(tx *Tx) error) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{ctx: ctx, q: sqlTx, store: s}
	if err := fn(tx); err != nil {
		return false, err
	}

	if err := sqlTx.Commit(); err != nil {
		return false, storageErr("commit transaction", err)
	}
	return tx.dirty, nil
}

// view runs fn against the connection pool without taking the write lock.
func (s *Store) view(ctx context.Context, fn func(r *Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return fn(&Tx{ctx: ctx, q: s.conn, store: s, readOnly: true})
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStorageUnavailable, op, err)
}
