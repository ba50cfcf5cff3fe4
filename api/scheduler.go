/*
scheduler.go - Background sweep of replay-protection state

PURPOSE:
  The signature authenticator remembers every nonce it accepts until the
  proof can no longer pass the time window. The sweeper periodically drops
  expired nonces so that memory stays bounded by request rate times skew.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once immediately on start
  - Logs only when something was removed

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 minute)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewNonceSweeper(auth)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - kudos/auth.go: SignatureAuthenticator.Prune
*/
package api

import (
	"log"
	"sync"
	"time"
)

// Pruner drops expired replay-protection state and reports how much.
type Pruner interface {
	Prune() int
}

// NonceSweeper periodically prunes a Pruner.
type NonceSweeper struct {
	Pruner        Pruner
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	swept  int
}

// NewNonceSweeper creates a new sweeper.
func NewNonceSweeper(p Pruner) *NonceSweeper {
	return &NonceSweeper{
		Pruner:        p,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
	}
}

// Start begins the sweeper. Calling Start on a running sweeper is a no-op.
func (s *NonceSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	log.Printf("[Sweeper] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the sweeper and waits for the background goroutine.
func (s *NonceSweeper) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[Sweeper] Stopped")
}

func (s *NonceSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-ticker.C:
			s.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow sweeps immediately and returns how many entries were removed.
func (s *NonceSweeper) RunNow() int {
	removed := s.Pruner.Prune()
	if removed > 0 {
		log.Printf("[Sweeper] Dropped %d expired nonces", removed)
	}

	s.mu.Lock()
	s.swept += removed
	s.mu.Unlock()
	return removed
}

// Swept returns the total number of entries removed since creation.
func (s *NonceSweeper) Swept() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swept
}
