package notify

// Key identifies a notification for deduplication.
type Key struct {
	JobID string
	Kind  Kind
}

// Ledger remembers which (job, kind) pairs have already been announced. It is
// not safe for concurrent use; callers guard it with their own lock.
type Ledger struct {
	seen map[Key]struct{}
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[Key]struct{})}
}

// Mark records key and reports whether it was new.
func (l *Ledger) Mark(key Key) bool {
	if _, ok := l.seen[key]; ok {
		return false
	}
	l.seen[key] = struct{}{}
	return true
}

// Seen reports whether key has been recorded.
func (l *Ledger) Seen(key Key) bool {
	_, ok := l.seen[key]
	return ok
}

// Forget drops every key recorded for jobID.
func (l *Ledger) Forget(jobID string) {
	for _, kind := range []Kind{KindStarted, KindCompleted, KindFailed} {
		delete(l.seen, Key{JobID: jobID, Kind: kind})
	}
}

// Len returns the number of recorded keys.
func (l *Ledger) Len() int {
	return len(l.seen)
}
