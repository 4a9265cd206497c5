package batch

import (
	"sync"

	"github.com/yanun0323/errors"

	"main/internal/lock"
	"main/internal/schema"
)

var ErrInvalidBatchSize = errors.New("batch size must be > 0")

// Processor admits a batch of orders as one atomic unit.
type Processor interface {
	ProcessOrdersBatch(orders []schema.Order) ([]schema.Decision, error)
}

// Accumulator buffers orders per symbol and flushes a symbol's batch
// through the processor when it reaches the configured size. Buffer
// mutation and the flush it triggers run under the symbol's lock, so
// two submitters of the same symbol cannot interleave a half-built
// batch.
type Accumulator struct {
	proc    Processor
	locks   *lock.Coordinator
	maxSize int

	mu      sync.Mutex
	pending map[string][]schema.Order
}

// NewAccumulator creates an accumulator flushing batches of maxSize.
func NewAccumulator(proc Processor, locks *lock.Coordinator, maxSize int) (*Accumulator, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	return &Accumulator{
		proc:    proc,
		locks:   locks,
		maxSize: maxSize,
		pending: make(map[string][]schema.Order),
	}, nil
}

// Submit buffers the order. When the symbol's buffer reaches the batch
// size it is flushed and the decisions for the whole batch are
// returned; otherwise decisions is nil and the order stays pending.
func (a *Accumulator) Submit(order schema.Order) ([]schema.Decision, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}

	var (
		decisions []schema.Decision
		err       error
	)
	a.locks.WithSymbol(order.Symbol, func() {
		a.mu.Lock()
		a.pending[order.Symbol] = append(a.pending[order.Symbol], order)
		full := len(a.pending[order.Symbol]) >= a.maxSize
		a.mu.Unlock()

		if full {
			decisions, err = a.flushLocked(order.Symbol)
		}
	})
	return decisions, err
}

// Flush admits the symbol's pending orders immediately. A symbol with
// nothing pending returns nil decisions.
func (a *Accumulator) Flush(symbol string) ([]schema.Decision, error) {
	var (
		decisions []schema.Decision
		err       error
	)
	a.locks.WithSymbol(symbol, func() {
		decisions, err = a.flushLocked(symbol)
	})
	return decisions, err
}

// FlushAll flushes every symbol with pending orders and returns the
// decisions keyed by symbol. The first flush error stops the sweep.
func (a *Accumulator) FlushAll() (map[string][]schema.Decision, error) {
	a.mu.Lock()
	symbols := make([]string, 0, len(a.pending))
	for symbol, orders := range a.pending {
		if len(orders) > 0 {
			symbols = append(symbols, symbol)
		}
	}
	a.mu.Unlock()

	results := make(map[string][]schema.Decision, len(symbols))
	for _, symbol := range symbols {
		decisions, err := a.Flush(symbol)
		if err != nil {
			return results, err
		}
		if decisions != nil {
			results[symbol] = decisions
		}
	}
	return results, nil
}

// Pending reports how many orders are buffered for the symbol.
func (a *Accumulator) Pending(symbol string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending[symbol])
}

// flushLocked runs under the symbol lock. The buffer is cleared before
// the processor runs and stays cleared on error; resubmitting a failed
// batch is the caller's call, not the accumulator's.
func (a *Accumulator) flushLocked(symbol string) ([]schema.Decision, error) {
	a.mu.Lock()
	orders := a.pending[symbol]
	delete(a.pending, symbol)
	a.mu.Unlock()

	if len(orders) == 0 {
		return nil, nil
	}

	decisions, err := a.proc.ProcessOrdersBatch(orders)
	if err != nil {
		return nil, errors.Wrapf(err, "flush %s batch", symbol)
	}
	return decisions, nil
}
