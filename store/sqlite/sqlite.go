/*
Package sqlite provides a SQLite-backed implementation of kudos.TxStore.

PURPOSE:
  Persists the kudo ledger as one row of the ledger_records table, keyed by
  kudos.LedgerKey. The row value is the versioned JSON snapshot produced by
  kudos.EncodeSnapshot.

INTERFACES IMPLEMENTED:
  kudos.Store:   Load / Save
  kudos.TxStore: WithTx

DRIVERS:
  DriverCGO  ("sqlite3"): github.com/mattn/go-sqlite3, opened in WAL mode
  DriverPure ("sqlite"):  modernc.org/sqlite, no cgo, busy_timeout pragma

KEY TABLES:
  ledger_records: key -> (version, value_json, updated_at)

ATOMICITY:
  Save is a single UPSERT of the whole snapshot, so readers see the old row
  or the new row. WithTx wraps load+save in one SQL transaction under the
  store mutex.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single pooled connection so
  ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/kudos.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := kudos.NewService(store, kudos.NewSignatureAuthenticator(0))

SEE ALSO:
  - kudos/store.go:        Interface definitions
  - kudos/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/kudobank/kudos"
	_ "modernc.org/sqlite"
)

const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"

	maxBusyTimeoutMs = 5000
)

// Store implements kudos.TxStore using SQLite.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

// New creates a new SQLite store with the given database path using the
// cgo driver. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverCGO, dbPath)
}

// Open creates a store using the named driver (DriverCGO or DriverPure).
func Open(driver, dbPath string) (*Store, error) {
	dsn, err := dataSourceName(driver, dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driver: driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func dataSourceName(driver, dbPath string) (string, error) {
	switch driver {
	case DriverCGO:
		return dbPath + "?_journal_mode=WAL&_busy_timeout=" + fmt.Sprint(maxBusyTimeoutMs), nil
	case DriverPure:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", dbPath, maxBusyTimeoutMs), nil
	default:
		return "", fmt.Errorf("unknown sqlite driver %q", driver)
	}
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- One row per well-known record. The kudo ledger lives under 'KUDOS'.
	CREATE TABLE IF NOT EXISTS ledger_records (
		key TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		value_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (kudos.Store interface)
// =============================================================================

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load returns the persisted ledger, or an empty one if none exists.
func (s *Store) Load(ctx context.Context) (kudos.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadLedger(ctx, s.db)
}

// Save replaces the persisted ledger.
func (s *Store) Save(ctx context.Context, l kudos.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveLedger(ctx, s.db, l)
}

func loadLedger(ctx context.Context, db execQuerier) (kudos.Ledger, error) {
	var valueJSON string
	err := db.QueryRowContext(ctx,
		"SELECT value_json FROM ledger_records WHERE key = ?",
		kudos.LedgerKey,
	).Scan(&valueJSON)

	if err == sql.ErrNoRows {
		return kudos.NewLedger(), nil
	}
	if err != nil {
		return kudos.Ledger{}, kudos.ReadFailed(fmt.Errorf("failed to query ledger: %w", err))
	}

	l, err := kudos.DecodeSnapshot([]byte(valueJSON))
	if err != nil {
		return kudos.Ledger{}, kudos.ReadFailed(err)
	}
	return l, nil
}

func saveLedger(ctx context.Context, db execQuerier, l kudos.Ledger) error {
	valueJSON, err := kudos.EncodeSnapshot(l)
	if err != nil {
		return kudos.WriteFailed(err)
	}

	query := `
		INSERT INTO ledger_records (key, version, value_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			version = excluded.version,
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		kudos.LedgerKey,
		kudos.SnapshotVersion,
		string(valueJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return kudos.WriteFailed(fmt.Errorf("failed to save ledger: %w", err))
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (kudos.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store kudos.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kudos.WriteFailed(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return kudos.WriteFailed(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Load(ctx context.Context) (kudos.Ledger, error) {
	return loadLedger(ctx, ts.tx)
}

func (ts *txStore) Save(ctx context.Context, l kudos.Ledger) error {
	return saveLedger(ctx, ts.tx, l)
}

// =============================================================================
// UTILITIES
// =============================================================================

// RawSnapshot returns the stored JSON for the ledger record, or nil if none
// has been written.
func (s *Store) RawSnapshot(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var valueJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT value_json FROM ledger_records WHERE key = ?",
		kudos.LedgerKey,
	).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(valueJSON), nil
}
