package campaign

import "sync"

// Ledger is the per-phase identity→status map shared by all lanes.
type Ledger struct {
	mu       sync.Mutex
	statuses map[string]Status
}

func NewLedger() *Ledger {
	return &Ledger{statuses: make(map[string]Status)}
}

// Set records status for phone; the last write wins.
func (l *Ledger) Set(phone string, status Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[phone] = status
}

// Snapshot returns a copy safe to hand to a flush.
func (l *Ledger) Snapshot() map[string]Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Status, len(l.statuses))
	for k, v := range l.statuses {
		out[k] = v
	}
	return out
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = make(map[string]Status)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.statuses)
}
