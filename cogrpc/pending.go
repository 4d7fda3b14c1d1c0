package cogrpc

import (
	"sort"
	"sync"
)

// pendingSet holds the ids of delivered cargo still waiting for an ack.
// It belongs to a single DeliverCargo call.
type pendingSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{ids: make(map[string]struct{})}
}

// Add reports false if id was already pending.
func (p *pendingSet) Add(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[id]; ok {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

// Remove reports whether id was pending. The second return value is the
// number of ids still pending afterwards.
func (p *pendingSet) Remove(id string) (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ids[id]
	delete(p.ids, id)
	return ok, len(p.ids)
}

func (p *pendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

func (p *pendingSet) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ackLedger counts acknowledgements owed to the server during a
// CollectCargo call. Server ids are opaque and may repeat, hence counts.
type ackLedger struct {
	mu   sync.Mutex
	owed map[string]int
}

func newAckLedger() *ackLedger {
	return &ackLedger{owed: make(map[string]int)}
}

func (l *ackLedger) Owe(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owed[id]++
}

// Settle reports whether an ack for id was owed, and records it as paid.
func (l *ackLedger) Settle(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.owed[id]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(l.owed, id)
	} else {
		l.owed[id] = n - 1
	}
	return true
}

func (l *ackLedger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.owed {
		total += n
	}
	return total
}
