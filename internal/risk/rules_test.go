package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/ledger"
	"main/internal/schema"
)

func defaultLimits() Limits {
	return Limits{
		MaxLeverage:          5.0,
		MinLiquidationBuffer: 0.005,
	}
}

func evaluateFresh(t *testing.T, equity float64, order schema.Order, limits Limits) schema.Decision {
	t.Helper()
	l := ledger.New(equity)
	acct, positions := l.Simulate(order)
	return Evaluate(acct, positions, order, limits)
}

func TestEvaluateAllowsModerateOrder(t *testing.T) {
	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2}
	d := evaluateFresh(t, 100_000, order, defaultLimits())

	assert.Equal(t, schema.ActionAllow, d.Action)
	assert.Equal(t, schema.ReasonNone, d.Reason)
}

func TestEvaluateBlocksExcessiveLeverage(t *testing.T) {
	order := schema.Order{Symbol: "BTCUSDT", Size: 1.0, Price: 25_000, Direction: schema.DirectionLong, Leverage: 50}
	d := evaluateFresh(t, 100_000, order, defaultLimits())

	assert.Equal(t, schema.ActionBlock, d.Action)
	assert.Equal(t, schema.ReasonLeverageExceeded, d.Reason)
}

func TestEvaluateBlocksInsufficientMargin(t *testing.T) {
	// 10 BTC at 25k with 1x needs 250k margin against 100k equity.
	order := schema.Order{Symbol: "BTCUSDT", Size: 10, Price: 25_000, Direction: schema.DirectionLong, Leverage: 1}
	d := evaluateFresh(t, 100_000, order, defaultLimits())

	assert.Equal(t, schema.ActionBlock, d.Action)
	assert.Equal(t, schema.ReasonMarginInsufficient, d.Reason)
}

func TestEvaluateBlocksThinLiquidationBuffer(t *testing.T) {
	limits := Limits{MaxLeverage: 10, MinLiquidationBuffer: 0.5}
	// 5x leverage puts the estimated liquidation price 20% below entry,
	// inside the (absurdly wide) 50% required buffer.
	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 5}
	d := evaluateFresh(t, 100_000, order, limits)

	assert.Equal(t, schema.ActionBlock, d.Action)
	assert.Equal(t, schema.ReasonLiquidationBuffer, d.Reason)
}

func TestEvaluateLiquidationBufferMirroredForShorts(t *testing.T) {
	limits := Limits{MaxLeverage: 10, MinLiquidationBuffer: 0.5}
	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionShort, Leverage: 5}
	d := evaluateFresh(t, 100_000, order, limits)

	assert.Equal(t, schema.ActionBlock, d.Action)
	assert.Equal(t, schema.ReasonLiquidationBuffer, d.Reason)
}

func TestEvaluateSkipsLiquidationBufferWhenFlat(t *testing.T) {
	limits := Limits{MaxLeverage: 10, MinLiquidationBuffer: 0.5}
	l := ledger.New(1_000_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 1}))

	// Exactly flattens the position: no liquidation price to respect.
	closing := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionShort, Leverage: 1}
	acct, positions := l.Simulate(closing)
	d := Evaluate(acct, positions, closing, limits)

	assert.Equal(t, schema.ActionAllow, d.Action)
}

func TestEvaluateBlocksSymbolCap(t *testing.T) {
	limits := defaultLimits()
	limits.MaxPositionPerSymbol = map[string]float64{"BTCUSDT": 0.05}

	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2}
	d := evaluateFresh(t, 100_000, order, limits)

	assert.Equal(t, schema.ActionBlock, d.Action)
	assert.Equal(t, schema.ReasonSymbolCapExceeded, d.Reason)
}

func TestEvaluateSymbolCapOnlyAppliesToConfiguredSymbol(t *testing.T) {
	limits := defaultLimits()
	limits.MaxPositionPerSymbol = map[string]float64{"ETHUSDT": 0.05}

	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2}
	d := evaluateFresh(t, 100_000, order, limits)

	assert.Equal(t, schema.ActionAllow, d.Action)
}

func TestEvaluateBlocksTotalExposure(t *testing.T) {
	limits := defaultLimits()
	limits.MaxTotalExposure = 2000

	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2}
	d := evaluateFresh(t, 100_000, order, limits)

	assert.Equal(t, schema.ActionBlock, d.Action)
	assert.Equal(t, schema.ReasonTotalExposureExceeded, d.Reason)
}

func TestEvaluateShortCircuitsOnFirstFailure(t *testing.T) {
	limits := defaultLimits()
	limits.MaxTotalExposure = 1 // would also fail, but margin fails first

	order := schema.Order{Symbol: "BTCUSDT", Size: 10, Price: 25_000, Direction: schema.DirectionLong, Leverage: 1}
	d := evaluateFresh(t, 100_000, order, limits)

	assert.Equal(t, schema.ReasonMarginInsufficient, d.Reason)
}
