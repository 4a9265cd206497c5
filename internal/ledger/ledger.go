package ledger

import "main/internal/schema"

const marginEpsilon = 1e-8

// Account is the single account book owned by the ledger.
type Account struct {
	Equity          float64 `json:"equity"`
	UsedMargin      float64 `json:"usedMargin"`
	AvailableMargin float64 `json:"availableMargin"`
	RealizedPnL     float64 `json:"realizedPnL"`
	UnrealizedPnL   float64 `json:"unrealizedPnL"`
}

// Position is the net exposure for one symbol. AvgEntryPrice is meaningless
// while NetSize is zero and must be recomputed as a size-weighted blend when
// an order changes the sign of NetSize.
type Position struct {
	NetSize       float64 `json:"netSize"`
	AvgEntryPrice float64 `json:"avgEntryPrice"`
}

// Ledger holds the committed account and position state. It performs no
// locking of its own: all mutation runs under the coordinator's global lock,
// owned by the state manager.
type Ledger struct {
	account   Account
	positions map[string]Position
}

// New creates a ledger with the given starting equity, fully available.
func New(equity float64) *Ledger {
	return &Ledger{
		account: Account{
			Equity:          equity,
			AvailableMargin: equity,
		},
		positions: make(map[string]Position),
	}
}

// Simulate computes the state as if order were applied to the committed
// state, without mutating it. It never fails: malformed orders must be
// rejected by the caller before simulation.
func (l *Ledger) Simulate(order schema.Order) (Account, map[string]Position) {
	return Apply(l.account, l.positions, order)
}

// Apply is the pure order application used by Simulate and by batch staging:
// it folds one order onto an arbitrary account/position state and returns
// the resulting copies.
func Apply(account Account, positions map[string]Position, order schema.Order) (Account, map[string]Position) {
	next := clonePositions(positions)

	margin := order.Notional() / maxFloat(order.EffectiveLeverage(), marginEpsilon)
	account.UsedMargin += margin
	account.AvailableMargin -= margin

	pos := next[order.Symbol]
	pos = blend(pos, order)
	next[order.Symbol] = pos

	return account, next
}

// blend merges an incoming fill into a position, recomputing the average
// entry price as the size-weighted mix of the prior and incoming sizes.
func blend(pos Position, order schema.Order) Position {
	prior := pos.NetSize
	size := prior + order.SignedSize()

	switch {
	case size == 0:
		// Flat position: the entry price is unused, keep the order price
		// so the field never carries stale data.
		pos.AvgEntryPrice = order.Price
	case prior == 0:
		pos.AvgEntryPrice = order.Price
	default:
		total := absFloat(prior) + order.Size
		pos.AvgEntryPrice = (absFloat(prior)*pos.AvgEntryPrice + order.Size*order.Price) / total
	}
	pos.NetSize = size
	return pos
}

// Commit atomically replaces the committed state with a simulated one.
// The caller must hold the global lock and have passed rule evaluation.
func (l *Ledger) Commit(account Account, positions map[string]Position) {
	l.account = account
	l.positions = positions
}

// Account returns a copy of the committed account.
func (l *Ledger) Account() Account {
	return l.account
}

// Position returns a copy of the committed position for symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// TotalExposure is the sum of absolute notional across all positions.
func (l *Ledger) TotalExposure() float64 {
	return TotalExposure(l.positions)
}

// TotalExposure sums absolute notional over a position map.
func TotalExposure(positions map[string]Position) float64 {
	var sum float64
	for _, p := range positions {
		sum += absFloat(p.NetSize) * p.AvgEntryPrice
	}
	return sum
}

func clonePositions(positions map[string]Position) map[string]Position {
	next := make(map[string]Position, len(positions)+1)
	for symbol, p := range positions {
		next[symbol] = p
	}
	return next
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
