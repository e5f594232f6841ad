package po

import "sync"

type inflightKey struct {
	op string
	id int64
}

// InflightGate tracks mutating calls in flight, keyed by (operation, entity
// id). A duplicate trigger for the same pair is refused while the first is
// pending; other entities, and other operations on the same entity, stay
// operable.
type InflightGate struct {
	mu     sync.Mutex
	active map[inflightKey]struct{}
}

// NewInflightGate builds an empty gate.
func NewInflightGate() *InflightGate {
	return &InflightGate{active: make(map[inflightKey]struct{})}
}

// TryAcquire claims the (op, id) slot. The release func must be called once
// the request settles, success or failure.
func (g *InflightGate) TryAcquire(op string, id int64) (func(), bool) {
	key := inflightKey{op: op, id: id}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return nil, false
	}
	g.active[key] = struct{}{}
	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.active, key)
		})
	}
	return release, true
}

// Busy reports whether (op, id) currently has a request in flight. Views use
// it to disable the triggering control for that entity only.
func (g *InflightGate) Busy(op string, id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[inflightKey{op: op, id: id}]
	return busy
}
