/*
Package kudos provides the kudo ledger: who has received how many kudos.

PURPOSE:
  One principal credits a single kudo to another principal, and anyone can
  read the accumulated count for a principal. This package holds the ledger
  data model, the store contract, the authorization gate and the service
  that ties them together.

KEY CONCEPTS IN THIS FILE (types.go):
  - Principal: An opaque identity (canonically a hex ed25519 public key)
  - KudoCount: Unsigned counter, never decremented
  - Ledger:    Principal -> KudoCount, absent key reads as zero

DESIGN PRINCIPLES:
  1. Lazy default: Ledger.Get returns 0 for principals never credited
  2. Single source of truth: the persisted Ledger is the only copy of counts
  3. Monotonic: there is no operation that lowers a count

USAGE:
  l := kudos.NewLedger()
  l.Set("alice", l.Get("alice")+1)

SEE ALSO:
  - store.go:   Store / TxStore persistence contract
  - service.go: GiveKudos / GetKudos
  - auth.go:    Authenticator implementations
*/
package kudos

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// =============================================================================
// PRINCIPAL - Identity able to authenticate its own actions
// =============================================================================

// Principal identifies an account. Compared by value.
type Principal string

// ParsePrincipal validates the canonical form: 64 hex characters encoding an
// ed25519 public key. Upper-case input is normalized.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not hex", ErrInvalidPrincipal, s)
	}
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: expected %d byte key, got %d", ErrInvalidPrincipal, ed25519.PublicKeySize, len(raw))
	}
	return Principal(s), nil
}

// PrincipalFromKey returns the canonical principal for an ed25519 public key.
func PrincipalFromKey(pub ed25519.PublicKey) Principal {
	return Principal(hex.EncodeToString(pub))
}

// PublicKey decodes the principal back into an ed25519 public key.
func (p Principal) PublicKey() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(string(p))
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q is not an ed25519 public key", ErrInvalidPrincipal, string(p))
	}
	return ed25519.PublicKey(raw), nil
}

func (p Principal) String() string { return string(p) }

// IsZero reports whether p is the empty principal.
func (p Principal) IsZero() bool { return p == "" }

// =============================================================================
// KUDO COUNT
// =============================================================================

// KudoCount is the total number of kudos a principal has received.
type KudoCount uint32

// MaxKudoCount is the largest representable count. Crediting a principal
// already at this value fails with ErrArithmeticOverflow.
const MaxKudoCount KudoCount = math.MaxUint32

// =============================================================================
// LEDGER - Principal -> KudoCount
// =============================================================================

// Ledger maps principals to their counts. The zero value is an empty ledger
// ready for reads; Set allocates on first write.
type Ledger struct {
	counts map[Principal]KudoCount
}

// Entry is one row of a ledger.
type Entry struct {
	Principal Principal
	Count     KudoCount
}

func NewLedger() Ledger {
	return Ledger{counts: make(map[Principal]KudoCount)}
}

// Get returns the count for p, or 0 if p has never been credited.
func (l Ledger) Get(p Principal) KudoCount {
	return l.counts[p]
}

// Set stores c for p.
func (l *Ledger) Set(p Principal, c KudoCount) {
	if l.counts == nil {
		l.counts = make(map[Principal]KudoCount)
	}
	l.counts[p] = c
}

// Len returns the number of principals with an entry.
func (l Ledger) Len() int {
	return len(l.counts)
}

// Clone returns a deep copy. Stores hand out clones so callers never alias
// the persisted snapshot.
func (l Ledger) Clone() Ledger {
	c := Ledger{counts: make(map[Principal]KudoCount, len(l.counts))}
	for p, n := range l.counts {
		c.counts[p] = n
	}
	return c
}

// Entries returns all entries sorted by principal.
func (l Ledger) Entries() []Entry {
	entries := make([]Entry, 0, len(l.counts))
	for p, n := range l.counts {
		entries = append(entries, Entry{Principal: p, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Principal < entries[j].Principal
	})
	return entries
}

// Total returns the sum of all counts.
func (l Ledger) Total() uint64 {
	var total uint64
	for _, n := range l.counts {
		total += uint64(n)
	}
	return total
}
