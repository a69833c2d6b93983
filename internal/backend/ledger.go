package backend

import (
	"sync"
	"time"

	"keyremap/internal/input"
)

// DefaultLedgerTTL bounds how long an unmatched injection is remembered.
const DefaultLedgerTTL = 2 * time.Second

type ledgerEntry struct {
	ev      input.Event
	down    bool
	expires time.Time
}

// Ledger remembers synthesized events so a listener that cannot read an
// injection marker can still recognize them. Each recorded injection
// matches exactly one inbound event.
type Ledger struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries []ledgerEntry
}

// NewLedger creates a ledger whose entries expire after ttl.
func NewLedger(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &Ledger{ttl: ttl, now: time.Now}
}

// Record notes that ev is about to be injected.
func (l *Ledger) Record(ev input.Event, down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	l.entries = append(l.entries, ledgerEntry{ev: ev, down: down, expires: now.Add(l.ttl)})
}

// Forget drops the oldest entry for ev, used when injection failed after
// Record.
func (l *Ledger) Forget(ev input.Event, down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.take(ev, down)
}

// Consume reports whether an inbound event was injected by us and, if so,
// removes the matching entry.
func (l *Ledger) Consume(ev input.Event, down bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return l.take(ev, down)
}

// Len returns the number of pending entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.entries)
}

func (l *Ledger) take(ev input.Event, down bool) bool {
	for i, e := range l.entries {
		if e.ev == ev && e.down == down {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Ledger) prune(now time.Time) {
	n := 0
	for _, e := range l.entries {
		if now.Before(e.expires) {
			l.entries[n] = e
			n++
		}
	}
	l.entries = l.entries[:n]
}
