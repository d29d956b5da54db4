package track

import (
	"sync"

	"fieldtrace/internal/domain/track"
)

type ledgerKey struct {
	missionID string
	userID    string
}

type ledgerEntry struct {
	mu   sync.Mutex
	last int64
	set  bool
}

func (e *ledgerEntry) LastTimestamp() (int64, bool) {
	return e.last, e.set
}

func (e *ledgerEntry) Advance(ts int64) {
	if !e.set || ts > e.last {
		e.last = ts
		e.set = true
	}
}

func (e *ledgerEntry) Unlock() {
	e.mu.Unlock()
}

// MemoryLedger is the in-process throttle ledger, one entry per
// mission/user pair. It is injected into the pipeline rather than held
// as a package singleton so a sharded deployment can swap it for a
// distributed implementation. Entries are transient; a restart loses
// them, costing at most one extra trail point per pair.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[ledgerKey]*ledgerEntry
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[ledgerKey]*ledgerEntry)}
}

// Lock returns the pair's entry with its mutex held. Ingest holds the
// lock across the whole check-insert-advance sequence so concurrent
// single and bulk calls for one pair cannot interleave.
func (l *MemoryLedger) Lock(missionID, userID string) track.LedgerEntry {
	key := ledgerKey{missionID: missionID, userID: userID}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &ledgerEntry{}
		l.entries[key] = entry
	}
	l.mu.Unlock()

	entry.mu.Lock()
	return entry
}

// Forget drops the pair's entry.
func (l *MemoryLedger) Forget(missionID, userID string) {
	l.mu.Lock()
	delete(l.entries, ledgerKey{missionID: missionID, userID: userID})
	l.mu.Unlock()
}
