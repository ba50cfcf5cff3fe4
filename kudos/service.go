/*
service.go - GiveKudos / GetKudos

PURPOSE:
  The Service is the only component allowed to mutate the ledger. It owns
  the injected Store, gates every credit through the Authenticator, and
  runs the load-modify-save sequence atomically.

GIVE FLOW:
  1. Reject empty principals
  2. Authenticate `from` (no state touched on failure)
  3. Load ledger, read count for `to` (default 0)
  4. Reject if already at MaxKudoCount
  5. Save count+1
  6. Notify observer (best-effort, after commit)

  If steps 3-5 fail, the proof is released (ProofReleaser) so the caller
  can retry the same signed request.

ATOMICITY:
  Steps 3-5 run inside TxStore.WithTx when the store supports it, and under
  the service mutex otherwise. Either way a concurrent credit cannot read
  the same "before" value and lose an increment.

SELF-CREDIT:
  from == to is allowed.

SEE ALSO:
  - store.go:    Persistence contract
  - auth.go:     Authenticator implementations
  - observer.go: Event delivery
*/
package kudos

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service implements the public kudo operations.
type Service struct {
	store    Store
	auth     Authenticator
	observer Observer
	now      func() time.Time

	mu sync.Mutex // serializes writes when store is not a TxStore
}

// Option configures a Service.
type Option func(*Service)

// WithObserver registers an observer notified after each credit.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, auth Authenticator, opts ...Option) *Service {
	s := &Service{
		store:    store,
		auth:     auth,
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GiveKudos credits one kudo from `from` to `to`. The caller must prove
// control of `from` through proof.
func (s *Service) GiveKudos(ctx context.Context, from, to Principal, proof Proof) error {
	_, err := s.Credit(ctx, from, to, proof)
	return err
}

// Credit is GiveKudos returning the recipient's count as committed by this
// credit.
func (s *Service) Credit(ctx context.Context, from, to Principal, proof Proof) (KudoCount, error) {
	if from.IsZero() || to.IsZero() {
		return 0, ErrInvalidPrincipal
	}

	if err := s.auth.Authenticate(ctx, from, to, proof); err != nil {
		return 0, err
	}

	var after KudoCount
	err := s.update(ctx, func(st Store) error {
		ledger, err := st.Load(ctx)
		if err != nil {
			return ReadFailed(err)
		}

		current := ledger.Get(to)
		if current == MaxKudoCount {
			return &OverflowError{Principal: to, Count: current}
		}

		after = current + 1
		ledger.Set(to, after)
		if err := st.Save(ctx, ledger); err != nil {
			return WriteFailed(err)
		}
		return nil
	})
	if err != nil {
		// Nothing was committed, so the same proof may be retried.
		if r, ok := s.auth.(ProofReleaser); ok {
			r.Release(from, proof)
		}
		return 0, err
	}

	s.notify(ctx, Event{
		ID:    uuid.NewString(),
		From:  from,
		To:    to,
		Count: after,
		At:    s.now().UTC(),
	})
	return after, nil
}

// GetKudos returns the number of kudos user has received. No
// authentication is required.
func (s *Service) GetKudos(ctx context.Context, user Principal) (KudoCount, error) {
	ledger, err := s.store.Load(ctx)
	if err != nil {
		return 0, ReadFailed(err)
	}
	return ledger.Get(user), nil
}

func (s *Service) update(ctx context.Context, fn func(Store) error) error {
	if tx, ok := s.store.(TxStore); ok {
		return tx.WithTx(ctx, fn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.store)
}

func (s *Service) notify(ctx context.Context, e Event) {
	deliver(ctx, s.observer, e)
}

// =============================================================================
// LEADERBOARD
// =============================================================================

// Standing is a principal's position on the leaderboard.
type Standing struct {
	Rank      int
	Principal Principal
	Count     KudoCount
	Share     decimal.Decimal // percent of all kudos, 2 decimal places
}

// Leaderboard returns principals ordered by count (highest first, ties by
// principal). limit <= 0 returns everyone.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	ledger, err := s.store.Load(ctx)
	if err != nil {
		return nil, ReadFailed(err)
	}

	entries := ledger.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	total := decimal.NewFromInt(int64(ledger.Total()))
	hundred := decimal.NewFromInt(100)

	standings := make([]Standing, len(entries))
	for i, e := range entries {
		share := decimal.Zero
		if total.IsPositive() {
			share = decimal.NewFromInt(int64(e.Count)).Mul(hundred).Div(total).Round(2)
		}
		standings[i] = Standing{
			Rank:      i + 1,
			Principal: e.Principal,
			Count:     e.Count,
			Share:     share,
		}
	}
	return standings, nil
}
