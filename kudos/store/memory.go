// Package store provides in-memory kudos.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/kudobank/kudos"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	ledger kudos.Ledger
	saves  int
}

func NewMemory() *Memory {
	return &Memory{ledger: kudos.NewLedger()}
}

// NewMemoryFrom creates a store pre-loaded with l.
func NewMemoryFrom(l kudos.Ledger) *Memory {
	return &Memory{ledger: l.Clone()}
}

// Load returns a copy of the current snapshot.
func (m *Memory) Load(_ context.Context) (kudos.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Clone(), nil
}

// Save replaces the snapshot with a copy of l.
func (m *Memory) Save(_ context.Context, l kudos.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(l)
	return nil
}

func (m *Memory) saveLocked(l kudos.Ledger) {
	m.ledger = l.Clone()
	m.saves++
}

// Saves returns how many snapshots have been written.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn while holding the write lock.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(kudos.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.ledger.Clone()
	saves := tm.saves

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.ledger = snapshot
		tm.saves = saves
		return err
	}
	return nil
}

type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Load(_ context.Context) (kudos.Ledger, error) {
	return tv.parent.ledger.Clone(), nil
}

func (tv *txMemoryView) Save(_ context.Context, l kudos.Ledger) error {
	tv.parent.saveLocked(l)
	return nil
}
