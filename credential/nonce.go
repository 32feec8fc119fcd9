package credential

import (
	"strings"
	"sync"
	"time"
)

// DefaultNonceCapacity bounds how many recently-seen nonces the ledger keeps
// before evicting the oldest entries.
const DefaultNonceCapacity = 4096

// NonceLedger is a bounded recently-seen-nonce set. Entries expire with the
// credential freshness window: once a credential is too old to verify, its
// nonce no longer needs tracking.
type NonceLedger struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	seen     map[string]time.Time
	order    []string
}

// NewNonceLedger constructs a ledger whose entries expire after ttl.
// Non-positive ttl falls back to the default freshness window, non-positive
// capacity to DefaultNonceCapacity.
func NewNonceLedger(ttl time.Duration, capacity int) *NonceLedger {
	if ttl <= 0 {
		ttl = DefaultFreshnessWindow
	}
	if capacity <= 0 {
		capacity = DefaultNonceCapacity
	}
	return &NonceLedger{
		ttl:      ttl,
		capacity: capacity,
		seen:     make(map[string]time.Time, capacity),
	}
}

// Remember records nonce at the supplied time. It returns false when the
// nonce was already seen within the ttl, which callers must treat as a
// replay. Blank nonces are always rejected.
func (l *NonceLedger) Remember(nonce string, now time.Time) bool {
	if l == nil {
		return true
	}
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	if _, ok := l.seen[nonce]; ok {
		return false
	}
	if len(l.order) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}
	l.seen[nonce] = now
	l.order = append(l.order, nonce)
	return true
}

// prune drops entries older than the ttl. Callers must hold the mutex.
func (l *NonceLedger) prune(now time.Time) {
	cutoff := now.Add(-l.ttl)
	kept := l.order[:0]
	for _, nonce := range l.order {
		at, ok := l.seen[nonce]
		if !ok {
			continue
		}
		if at.Before(cutoff) {
			delete(l.seen, nonce)
			continue
		}
		kept = append(kept, nonce)
	}
	l.order = kept
}
