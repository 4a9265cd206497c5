package risk

import (
	"main/internal/ledger"
	"main/internal/schema"
)

const marginEpsilon = 1e-8

// Limits bundles the static risk constraints. Zero values disable the
// optional caps.
type Limits struct {
	MaxLeverage               float64            `json:"maxLeverage"`
	MinLiquidationBuffer      float64            `json:"minLiquidationBuffer"`
	MaxPositionPerSymbol      map[string]float64 `json:"maxPositionPerSymbol"`
	MaxTotalExposure          float64            `json:"maxTotalExposure"`
	CircuitBreakerMarginRatio float64            `json:"circuitBreakerMarginRatio"`
}

// Evaluate checks a simulated post-order state against the limits. It holds
// no mutable state, never mutates its inputs, and is safe to call from any
// number of goroutines without locking.
//
// Checks run in order and short-circuit on the first failure so every BLOCK
// carries the reason of the first rule violated.
func Evaluate(account ledger.Account, positions map[string]ledger.Position, order schema.Order, limits Limits) schema.Decision {
	if d := checkMargin(account); !d.Allowed() {
		return d
	}
	if d := checkLeverage(account, positions, order, limits); !d.Allowed() {
		return d
	}
	if d := checkLiquidationBuffer(account, positions, order, limits); !d.Allowed() {
		return d
	}
	if d := checkSymbolCap(positions, order, limits); !d.Allowed() {
		return d
	}
	return checkTotalExposure(positions, limits)
}

// checkMargin verifies the order's margin fits the committed equity-backed
// capacity: the simulated available margin going negative means the order
// consumed more than the account could back.
func checkMargin(account ledger.Account) schema.Decision {
	if account.AvailableMargin < 0 {
		return schema.Block(schema.ReasonMarginInsufficient)
	}
	return schema.Allow()
}

func checkLeverage(account ledger.Account, positions map[string]ledger.Position, order schema.Order, limits Limits) schema.Decision {
	if limits.MaxLeverage <= 0 {
		return schema.Allow()
	}
	pos := positions[order.Symbol]
	notional := absFloat(pos.NetSize) * pos.AvgEntryPrice
	margin := maxFloat(account.UsedMargin, marginEpsilon)
	if notional/margin > limits.MaxLeverage {
		return schema.Block(schema.ReasonLeverageExceeded)
	}
	return schema.Allow()
}

// checkLiquidationBuffer estimates the liquidation price of the resulting
// position (mirrored for long and short) and requires the order price to sit
// at least MinLiquidationBuffer away from it, as a fraction of order price.
// A flat resulting position has no liquidation price and passes.
func checkLiquidationBuffer(account ledger.Account, positions map[string]ledger.Position, order schema.Order, limits Limits) schema.Decision {
	if limits.MinLiquidationBuffer <= 0 {
		return schema.Allow()
	}
	pos := positions[order.Symbol]
	if pos.NetSize == 0 {
		return schema.Allow()
	}

	notional := maxFloat(absFloat(pos.NetSize)*pos.AvgEntryPrice, marginEpsilon)
	margin := maxFloat(account.UsedMargin, marginEpsilon)

	var liquidation float64
	if pos.NetSize > 0 {
		liquidation = pos.AvgEntryPrice * (1 - margin/notional)
	} else {
		liquidation = pos.AvgEntryPrice * (1 + margin/notional)
	}

	if absFloat(order.Price-liquidation)/order.Price < limits.MinLiquidationBuffer {
		return schema.Block(schema.ReasonLiquidationBuffer)
	}
	return schema.Allow()
}

func checkSymbolCap(positions map[string]ledger.Position, order schema.Order, limits Limits) schema.Decision {
	cap, ok := limits.MaxPositionPerSymbol[order.Symbol]
	if !ok || cap <= 0 {
		return schema.Allow()
	}
	if absFloat(positions[order.Symbol].NetSize) > cap {
		return schema.Block(schema.ReasonSymbolCapExceeded)
	}
	return schema.Allow()
}

func checkTotalExposure(positions map[string]ledger.Position, limits Limits) schema.Decision {
	if limits.MaxTotalExposure <= 0 {
		return schema.Allow()
	}
	if ledger.TotalExposure(positions) > limits.MaxTotalExposure {
		return schema.Block(schema.ReasonTotalExposureExceeded)
	}
	return schema.Allow()
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
