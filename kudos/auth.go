/*
auth.go - Authorization gate for GiveKudos

PURPOSE:
  Before any mutation the service asks an Authenticator whether the caller
  controls the crediting principal. The answer is an ordinary error value,
  never a panic or an abort, so the caller sees the full error taxonomy.

IMPLEMENTATIONS:
  SignatureAuthenticator: `from` is an ed25519 public key and the Proof
                          carries a signature over GiveMessage. Stale and
                          replayed proofs are rejected.
  CallerAuthenticator:    The host already authenticated the caller and put
                          its principal on the context (WithCaller).

SEE ALSO:
  - identity/identity.go: Produces signed proofs
  - service.go:           Consumes Authenticate
*/
package kudos

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"
)

// Proof is the evidence a caller presents that it controls `from`.
type Proof struct {
	Nonce     string
	IssuedAt  time.Time
	Signature []byte
}

// Authenticator checks that the caller controls from. It returns nil on
// success and an error matching ErrUnauthorized otherwise.
type Authenticator interface {
	Authenticate(ctx context.Context, from, to Principal, proof Proof) error
}

// ProofReleaser is implemented by authenticators that consume a proof on
// success. Release makes the proof usable again after the credit it
// authorized failed to commit.
type ProofReleaser interface {
	Release(from Principal, proof Proof)
}

// GiveMessage is the exact byte string `from` signs to credit `to`. Binding
// the recipient, a nonce and the issue time stops a signature being reused
// for another recipient or replayed later.
func GiveMessage(from, to Principal, nonce string, issuedAt time.Time) []byte {
	return []byte(fmt.Sprintf("kudos/give/v1\n%s\n%s\n%s\n%d", from, to, nonce, issuedAt.Unix()))
}

// =============================================================================
// SIGNATURE AUTHENTICATOR
// =============================================================================

// DefaultMaxSkew bounds how far IssuedAt may drift from the server clock.
const DefaultMaxSkew = 5 * time.Minute

// inlinePruneThreshold is the nonce cache size above which Authenticate
// prunes on the request path. Below it, pruning is left to Prune.
const inlinePruneThreshold = 4096

// SignatureAuthenticator verifies ed25519 signatures over GiveMessage.
type SignatureAuthenticator struct {
	maxSkew time.Duration
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time // from+nonce -> issuedAt
}

// NewSignatureAuthenticator creates an authenticator accepting proofs issued
// within maxSkew of now. A non-positive maxSkew uses DefaultMaxSkew.
func NewSignatureAuthenticator(maxSkew time.Duration) *SignatureAuthenticator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return &SignatureAuthenticator{
		maxSkew: maxSkew,
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
}

// WithClock replaces the time source. Used by tests.
func (a *SignatureAuthenticator) WithClock(now func() time.Time) *SignatureAuthenticator {
	a.now = now
	return a
}

func (a *SignatureAuthenticator) Authenticate(_ context.Context, from, to Principal, proof Proof) error {
	if len(proof.Signature) == 0 {
		return &UnauthorizedError{Principal: from, Reason: "missing signature"}
	}
	if proof.Nonce == "" {
		return &UnauthorizedError{Principal: from, Reason: "missing nonce"}
	}

	pub, err := from.PublicKey()
	if err != nil {
		return &UnauthorizedError{Principal: from, Reason: "principal is not a verifiable key"}
	}

	now := a.now()
	if d := now.Sub(proof.IssuedAt); d > a.maxSkew || d < -a.maxSkew {
		return &UnauthorizedError{Principal: from, Reason: "proof outside accepted time window"}
	}

	if !ed25519.Verify(pub, GiveMessage(from, to, proof.Nonce, proof.IssuedAt), proof.Signature) {
		return &UnauthorizedError{Principal: from, Reason: "invalid signature"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.seen) > inlinePruneThreshold {
		a.pruneLocked(now)
	}
	key := string(from) + "/" + proof.Nonce
	if _, dup := a.seen[key]; dup {
		return &UnauthorizedError{Principal: from, Reason: "proof already used"}
	}
	a.seen[key] = proof.IssuedAt
	return nil
}

// Release forgets a nonce recorded by Authenticate. Until then the nonce
// stays reserved, so a concurrent replay of an in-flight proof is rejected.
func (a *SignatureAuthenticator) Release(from Principal, proof Proof) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.seen, string(from)+"/"+proof.Nonce)
}

// Prune drops expired nonces and returns how many were removed.
func (a *SignatureAuthenticator) Prune() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pruneLocked(a.now())
}

// Pending returns the number of nonces still remembered.
func (a *SignatureAuthenticator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// pruneLocked drops nonces that can no longer pass the time window check.
func (a *SignatureAuthenticator) pruneLocked(now time.Time) int {
	removed := 0
	for k, issued := range a.seen {
		if now.Sub(issued) > a.maxSkew {
			delete(a.seen, k)
			removed++
		}
	}
	return removed
}

// =============================================================================
// CALLER AUTHENTICATOR
// =============================================================================

type callerKey struct{}

// WithCaller returns a context carrying the already-authenticated caller.
func WithCaller(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// CallerFrom returns the caller stored by WithCaller.
func CallerFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(callerKey{}).(Principal)
	return p, ok && !p.IsZero()
}

// CallerAuthenticator trusts the caller identity placed on the context by the
// host and only checks that it matches `from`. The Proof is ignored.
type CallerAuthenticator struct{}

func (CallerAuthenticator) Authenticate(ctx context.Context, from, _ Principal, _ Proof) error {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return &UnauthorizedError{Principal: from, Reason: "no authenticated caller"}
	}
	if caller != from {
		return &UnauthorizedError{Principal: from, Reason: fmt.Sprintf("caller is %s", caller)}
	}
	return nil
}
