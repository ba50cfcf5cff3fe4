package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/kudobank/kudos"
)

func TestMemory_LoadEmpty(t *testing.T) {
	m := NewMemory()

	l, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, kudos.KudoCount(0), l.Get("anyone"))
}

func TestMemory_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	l := kudos.NewLedger()
	l.Set("alice", 1)
	require.NoError(t, m.Save(ctx, l))

	// Mutating the saved value or a loaded copy does not touch the store.
	l.Set("alice", 99)
	loaded, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), loaded.Get("alice"))

	loaded.Set("alice", 42)
	again, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), again.Get("alice"))
	assert.Equal(t, 1, m.Saves())
}

func TestTxMemory_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	tm := NewTxMemory()

	err := tm.WithTx(ctx, func(s kudos.Store) error {
		l, err := s.Load(ctx)
		require.NoError(t, err)
		l.Set("alice", 1)
		return s.Save(ctx, l)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tm.WithTx(ctx, func(s kudos.Store) error {
		l, _ := s.Load(ctx)
		l.Set("alice", 2)
		l.Set("bob", 1)
		require.NoError(t, s.Save(ctx, l))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	l, err := tm.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), l.Get("alice"))
	assert.Equal(t, kudos.KudoCount(0), l.Get("bob"))
	assert.Equal(t, 1, tm.Saves())
}
