package lock

import "sync"

// Coordinator owns the engine's mutual-exclusion discipline: one global lock
// covering all ledger mutation, plus lazily created per-symbol locks for call
// sites that never touch the ledger (the batch accumulator's pending map).
// Keeping the two tiers disjoint rules out lock-ordering deadlocks.
type Coordinator struct {
	global sync.Mutex

	mu      sync.Mutex
	symbols map[string]*sync.Mutex
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{symbols: make(map[string]*sync.Mutex)}
}

// WithGlobal runs fn while holding the global lock. The lock is released on
// every exit path, including panics.
func (c *Coordinator) WithGlobal(fn func()) {
	c.global.Lock()
	defer c.global.Unlock()
	fn()
}

// WithSymbol runs fn while holding the lock for symbol. Symbol locks are
// created on first use and never removed; the set is bounded by the number
// of distinct symbols ever seen.
func (c *Coordinator) WithSymbol(symbol string, fn func()) {
	m := c.symbolLock(symbol)
	m.Lock()
	defer m.Unlock()
	fn()
}

func (c *Coordinator) symbolLock(symbol string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.symbols[symbol]
	if !ok {
		m = &sync.Mutex{}
		c.symbols[symbol] = m
	}
	return m
}
