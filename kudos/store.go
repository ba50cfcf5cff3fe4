/*
store.go - Persistence contract for the kudo ledger

PURPOSE:
  Defines the interface between the service and the durable medium. The
  whole ledger lives in one keyed record and is always read and written as
  a complete snapshot, so a Save is atomic by construction.

KEY INTERFACES:
  Store:   Load / Save the full snapshot
  TxStore: Store plus WithTx for an atomic load-modify-save sequence

SNAPSHOT FORMAT:
  The record stored under LedgerKey is a versioned JSON document:

    {"version":1,"counts":{"<principal>":3,"<principal>":1}}

  Keys are emitted in sorted order so equal ledgers encode to equal bytes.

IMPLEMENTATIONS:
  - kudos/store/memory.go:  In-memory for testing
  - store/sqlite/sqlite.go: SQLite (mattn or modernc driver)

SEE ALSO:
  - service.go: The only writer of the ledger
*/
package kudos

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// STORE - Whole-snapshot persistence
// =============================================================================

// LedgerKey is the well-known identifier of the persisted ledger record.
const LedgerKey = "KUDOS"

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Store persists the ledger as a single snapshot.
type Store interface {
	// Load returns the current snapshot, or an empty Ledger if none has
	// been saved yet. Failures are reported as a read StoreError.
	Load(ctx context.Context) (Ledger, error)

	// Save replaces the persisted snapshot. Readers observe either the old
	// or the new snapshot, never a mix. Failures are reported as a write
	// StoreError.
	Save(ctx context.Context, ledger Ledger) error
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic read-modify-write
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, nothing fn saved is kept.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// SNAPSHOT CODEC
// =============================================================================

type snapshotJSON struct {
	Version int                     `json:"version"`
	Counts  map[Principal]KudoCount `json:"counts"`
}

// EncodeSnapshot serializes l in the persisted format.
func EncodeSnapshot(l Ledger) ([]byte, error) {
	counts := l.counts
	if counts == nil {
		counts = map[Principal]KudoCount{}
	}
	return json.Marshal(snapshotJSON{Version: SnapshotVersion, Counts: counts})
}

// DecodeSnapshot parses a persisted snapshot. An empty input decodes to an
// empty ledger.
func DecodeSnapshot(data []byte) (Ledger, error) {
	if len(data) == 0 {
		return NewLedger(), nil
	}

	var snap snapshotJSON
	if err := json.Unmarshal(data, &snap); err != nil {
		return Ledger{}, fmt.Errorf("decode ledger snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return Ledger{}, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, snap.Version)
	}

	l := NewLedger()
	for p, n := range snap.Counts {
		l.Set(p, n)
	}
	return l, nil
}
