package kudos_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/kudobank/kudos"
	"github.com/warp/kudobank/kudos/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	user1 kudos.Principal = "user-1"
	user2 kudos.Principal = "user-2"
	user3 kudos.Principal = "user-3"
)

func newTestService(st kudos.Store, opts ...kudos.Option) *kudos.Service {
	return kudos.NewService(st, kudos.CallerAuthenticator{}, opts...)
}

func as(p kudos.Principal) context.Context {
	return kudos.WithCaller(context.Background(), p)
}

func snapshot(t *testing.T, st kudos.Store) []byte {
	t.Helper()
	l, err := st.Load(context.Background())
	require.NoError(t, err)
	b, err := kudos.EncodeSnapshot(l)
	require.NoError(t, err)
	return b
}

// failingStore wraps a Memory store and fails on demand.
type failingStore struct {
	*store.Memory
	loadErr error
	saveErr error
}

func (f *failingStore) Load(ctx context.Context) (kudos.Ledger, error) {
	if f.loadErr != nil {
		return kudos.Ledger{}, f.loadErr
	}
	return f.Memory.Load(ctx)
}

func (f *failingStore) Save(ctx context.Context, l kudos.Ledger) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Memory.Save(ctx, l)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestGiveKudos_FirstCredit(t *testing.T) {
	svc := newTestService(store.NewTxMemory())

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))

	got, err := svc.GetKudos(context.Background(), user2)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), got)

	got, err = svc.GetKudos(context.Background(), user1)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(0), got, "giver does not receive anything")
}

func TestGiveKudos_RepeatCredit(t *testing.T) {
	svc := newTestService(store.NewTxMemory())

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))

	got, err := svc.GetKudos(context.Background(), user2)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(2), got)
}

func TestGiveKudos_Unauthorized(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTestService(st)
	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	before := snapshot(t, st)

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"no caller", context.Background()},
		{"different caller", as(user3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.GiveKudos(tt.ctx, user1, user2, kudos.Proof{})
			require.Error(t, err)
			assert.ErrorIs(t, err, kudos.ErrUnauthorized)

			var authErr *kudos.UnauthorizedError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, user1, authErr.Principal)

			assert.Equal(t, before, snapshot(t, st), "ledger must be byte-for-byte unchanged")
			got, err := svc.GetKudos(context.Background(), user2)
			require.NoError(t, err)
			assert.Equal(t, kudos.KudoCount(1), got)
		})
	}
}

func TestGetKudos_NeverReferenced(t *testing.T) {
	svc := newTestService(store.NewTxMemory())
	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))

	got, err := svc.GetKudos(context.Background(), user3)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(0), got)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestGiveKudos_OnlyRecipientChanges(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTestService(st)
	principals := []kudos.Principal{user1, user2, user3}

	require.NoError(t, svc.GiveKudos(as(user3), user3, user1, kudos.Proof{}))
	require.NoError(t, svc.GiveKudos(as(user1), user1, user3, kudos.Proof{}))

	before := make(map[kudos.Principal]kudos.KudoCount)
	for _, p := range principals {
		n, err := svc.GetKudos(context.Background(), p)
		require.NoError(t, err)
		before[p] = n
	}

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))

	for _, p := range principals {
		n, err := svc.GetKudos(context.Background(), p)
		require.NoError(t, err)
		if p == user2 {
			assert.Equal(t, before[p]+1, n)
		} else {
			assert.Equal(t, before[p], n, "count of %s must not change", p)
		}
	}
}

func TestGetKudos_RepeatedReadsAreStable(t *testing.T) {
	st := store.NewTxMemory()
	svc := newTestService(st)
	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	saves := st.Saves()

	first, err := svc.GetKudos(context.Background(), user2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		n, err := svc.GetKudos(context.Background(), user2)
		require.NoError(t, err)
		assert.Equal(t, first, n)
	}
	assert.Equal(t, saves, st.Saves(), "reads must not write")
}

func TestGiveKudos_SaveFailureLeavesNoPartialIncrement(t *testing.T) {
	st := &failingStore{Memory: store.NewMemory()}
	svc := newTestService(st)
	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))

	cause := errors.New("disk quota exceeded")
	st.saveErr = cause

	err := svc.GiveKudos(as(user1), user1, user2, kudos.Proof{})
	require.Error(t, err)
	assert.ErrorIs(t, err, kudos.ErrWriteFailed)
	assert.ErrorIs(t, err, cause)
	assert.True(t, kudos.IsStoreError(err))
	assert.False(t, kudos.IsClientError(err))

	st.saveErr = nil
	got, err := svc.GetKudos(context.Background(), user2)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), got)
}

func TestStoreReadFailure(t *testing.T) {
	cause := errors.New("medium unavailable")
	st := &failingStore{Memory: store.NewMemory(), loadErr: cause}
	svc := newTestService(st)

	_, err := svc.GetKudos(context.Background(), user1)
	assert.ErrorIs(t, err, kudos.ErrReadFailed)
	assert.ErrorIs(t, err, cause)

	err = svc.GiveKudos(as(user1), user1, user2, kudos.Proof{})
	assert.ErrorIs(t, err, kudos.ErrReadFailed)
	assert.Equal(t, 0, st.Saves())
}

func TestGiveKudos_Overflow(t *testing.T) {
	seed := kudos.NewLedger()
	seed.Set(user2, kudos.MaxKudoCount)
	st := &store.TxMemory{Memory: store.NewMemoryFrom(seed)}
	svc := newTestService(st)
	before := snapshot(t, st)

	err := svc.GiveKudos(as(user1), user1, user2, kudos.Proof{})
	require.Error(t, err)
	assert.ErrorIs(t, err, kudos.ErrArithmeticOverflow)
	assert.True(t, kudos.IsClientError(err))

	var overflow *kudos.OverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, user2, overflow.Principal)
	assert.Equal(t, kudos.MaxKudoCount, overflow.Count)

	assert.Equal(t, before, snapshot(t, st))
}

func TestGiveKudos_OneBelowMaxSucceeds(t *testing.T) {
	seed := kudos.NewLedger()
	seed.Set(user2, kudos.MaxKudoCount-1)
	svc := newTestService(&store.TxMemory{Memory: store.NewMemoryFrom(seed)})

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	got, err := svc.GetKudos(context.Background(), user2)
	require.NoError(t, err)
	assert.Equal(t, kudos.MaxKudoCount, got)
}

func TestGiveKudos_SelfCredit(t *testing.T) {
	svc := newTestService(store.NewTxMemory())

	require.NoError(t, svc.GiveKudos(as(user1), user1, user1, kudos.Proof{}))
	got, err := svc.GetKudos(context.Background(), user1)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), got)
}

func TestGiveKudos_EmptyPrincipal(t *testing.T) {
	svc := newTestService(store.NewTxMemory())

	assert.ErrorIs(t, svc.GiveKudos(as(user1), user1, "", kudos.Proof{}), kudos.ErrInvalidPrincipal)
	assert.ErrorIs(t, svc.GiveKudos(context.Background(), "", user2, kudos.Proof{}), kudos.ErrInvalidPrincipal)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestGiveKudos_ConcurrentCreditsAreNotLost(t *testing.T) {
	stores := map[string]kudos.Store{
		"tx store":    store.NewTxMemory(),
		"plain store": store.NewMemory(),
	}

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(st)
			const n = 50

			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- svc.GiveKudos(as(user1), user1, user2, kudos.Proof{})
				}()
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				require.NoError(t, err)
			}
			got, err := svc.GetKudos(context.Background(), user2)
			require.NoError(t, err)
			assert.Equal(t, kudos.KudoCount(n), got)
		})
	}
}

// =============================================================================
// OBSERVERS
// =============================================================================

func TestGiveKudos_NotifiesObserver(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var events []kudos.Event
	svc := newTestService(store.NewTxMemory(),
		kudos.WithClock(func() time.Time { return at }),
		kudos.WithObserver(kudos.ObserverFunc(func(_ context.Context, e kudos.Event) {
			events = append(events, e)
		})),
	)

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	assert.Error(t, svc.GiveKudos(context.Background(), user1, user2, kudos.Proof{}))

	require.Len(t, events, 2, "failed credits are not reported")
	assert.Equal(t, user1, events[0].From)
	assert.Equal(t, user2, events[0].To)
	assert.Equal(t, kudos.KudoCount(1), events[0].Count)
	assert.Equal(t, kudos.KudoCount(2), events[1].Count)
	assert.Equal(t, at, events[1].At)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestGiveKudos_PanickingObserverDoesNotFailCredit(t *testing.T) {
	svc := newTestService(store.NewTxMemory(),
		kudos.WithObserver(kudos.ObserverFunc(func(context.Context, kudos.Event) {
			panic("sink unavailable")
		})),
	)

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	got, err := svc.GetKudos(context.Background(), user2)
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), got)
}

func TestObservers_PanicIsIsolatedPerObserver(t *testing.T) {
	var delivered []kudos.Event
	svc := newTestService(store.NewTxMemory(),
		kudos.WithObserver(kudos.Observers{
			kudos.ObserverFunc(func(context.Context, kudos.Event) { panic("log sink down") }),
			kudos.ObserverFunc(func(_ context.Context, e kudos.Event) { delivered = append(delivered, e) }),
		}),
	)

	require.NoError(t, svc.GiveKudos(as(user1), user1, user2, kudos.Proof{}))
	require.Len(t, delivered, 1, "observers after a panicking one still run")
	assert.Equal(t, user2, delivered[0].To)
}

func TestCredit_ReturnsCommittedCount(t *testing.T) {
	svc := newTestService(store.NewTxMemory())

	got, err := svc.Credit(as(user1), user1, user2, kudos.Proof{})
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(1), got)

	got, err = svc.Credit(as(user3), user3, user2, kudos.Proof{})
	require.NoError(t, err)
	assert.Equal(t, kudos.KudoCount(2), got)

	got, err = svc.Credit(context.Background(), user1, user2, kudos.Proof{})
	assert.ErrorIs(t, err, kudos.ErrUnauthorized)
	assert.Equal(t, kudos.KudoCount(0), got)
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func TestLeaderboard(t *testing.T) {
	svc := newTestService(store.NewTxMemory())
	give := func(from, to kudos.Principal, times int) {
		for i := 0; i < times; i++ {
			require.NoError(t, svc.GiveKudos(as(from), from, to, kudos.Proof{}))
		}
	}
	give(user1, user2, 3)
	give(user2, user3, 1)
	give(user2, user1, 2)

	standings, err := svc.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, standings, 3)

	assert.Equal(t, user2, standings[0].Principal)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, "50.00", standings[0].Share.StringFixed(2))
	assert.Equal(t, user1, standings[1].Principal)
	assert.Equal(t, "33.33", standings[1].Share.StringFixed(2))
	assert.Equal(t, user3, standings[2].Principal)
	assert.Equal(t, "16.67", standings[2].Share.StringFixed(2))

	top, err := svc.Leaderboard(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, user2, top[0].Principal)
}

func TestLeaderboard_Empty(t *testing.T) {
	svc := newTestService(store.NewTxMemory())

	standings, err := svc.Leaderboard(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, standings)
}
