package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestSimulateDoesNotMutateCommittedState(t *testing.T) {
	l := New(100_000)

	acct, positions := l.Simulate(schema.Order{
		Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2,
	})

	assert.InDelta(t, 1250.0, acct.UsedMargin, 1e-9)
	assert.InDelta(t, 98_750.0, acct.AvailableMargin, 1e-9)
	assert.InDelta(t, 0.1, positions["BTCUSDT"].NetSize, 1e-9)
	assert.InDelta(t, 25_000.0, positions["BTCUSDT"].AvgEntryPrice, 1e-9)

	// Committed state untouched until Commit.
	assert.Zero(t, l.Account().UsedMargin)
	_, ok := l.Position("BTCUSDT")
	assert.False(t, ok)
}

func TestCommitReplacesState(t *testing.T) {
	l := New(100_000)
	order := schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2}

	l.Commit(l.Simulate(order))

	pos, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 0.1, pos.NetSize, 1e-9)
	assert.InDelta(t, 1250.0, l.Account().UsedMargin, 1e-9)
}

func TestBlendAveragesEntryPrice(t *testing.T) {
	l := New(1_000_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 1, Price: 1000, Direction: schema.DirectionLong, Leverage: 1}))
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 1, Price: 2000, Direction: schema.DirectionLong, Leverage: 1}))

	pos, _ := l.Position("ETHUSDT")
	assert.InDelta(t, 2.0, pos.NetSize, 1e-9)
	assert.InDelta(t, 1500.0, pos.AvgEntryPrice, 1e-9)
}

func TestBlendThroughSignFlip(t *testing.T) {
	l := New(1_000_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 1, Price: 1000, Direction: schema.DirectionLong, Leverage: 1}))
	// Sell 3: net goes from +1 to -2. The entry price blends prior and
	// incoming fills instead of being overwritten outright.
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 3, Price: 1200, Direction: schema.DirectionShort, Leverage: 1}))

	pos, _ := l.Position("ETHUSDT")
	assert.InDelta(t, -2.0, pos.NetSize, 1e-9)
	assert.InDelta(t, (1*1000.0+3*1200.0)/4.0, pos.AvgEntryPrice, 1e-9)
}

func TestBlendFlatFallsBackToOrderPrice(t *testing.T) {
	l := New(1_000_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 2, Price: 1000, Direction: schema.DirectionLong, Leverage: 1}))
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 2, Price: 1100, Direction: schema.DirectionShort, Leverage: 1}))

	pos, _ := l.Position("ETHUSDT")
	assert.Zero(t, pos.NetSize)
	assert.InDelta(t, 1100.0, pos.AvgEntryPrice, 1e-9)
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	l := New(100_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "BTCUSDT", Size: 0.5, Price: 20_000, Direction: schema.DirectionLong, Leverage: 5}))

	snap := l.Snapshot(7)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, uint64(7), snap.LastSeq)

	snap.Positions[0].Position.NetSize = 99
	pos, _ := l.Position("BTCUSDT")
	assert.InDelta(t, 0.5, pos.NetSize, 1e-9)
}

func TestRestoreRoundTrip(t *testing.T) {
	l := New(100_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "BTCUSDT", Size: 0.5, Price: 20_000, Direction: schema.DirectionLong, Leverage: 5}))
	snap := l.Snapshot(3)

	restored := New(0)
	restored.Restore(snap)

	assert.Equal(t, l.StateHash(), restored.StateHash())
}

func TestStateHashDeterministic(t *testing.T) {
	a := New(100_000)
	b := New(100_000)
	orders := []schema.Order{
		{Symbol: "BTCUSDT", Size: 0.1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 2},
		{Symbol: "ETHUSDT", Size: 1, Price: 1500, Direction: schema.DirectionShort, Leverage: 3},
	}
	for _, o := range orders {
		a.Commit(a.Simulate(o))
		b.Commit(b.Simulate(o))
	}

	assert.Equal(t, a.StateHash(), b.StateHash())

	b.Commit(b.Simulate(schema.Order{Symbol: "BTCUSDT", Size: 0.1, Price: 26_000, Direction: schema.DirectionLong, Leverage: 2}))
	assert.NotEqual(t, a.StateHash(), b.StateHash())
}

func TestTotalExposure(t *testing.T) {
	l := New(1_000_000)
	l.Commit(l.Simulate(schema.Order{Symbol: "BTCUSDT", Size: 1, Price: 25_000, Direction: schema.DirectionLong, Leverage: 5}))
	l.Commit(l.Simulate(schema.Order{Symbol: "ETHUSDT", Size: 10, Price: 1500, Direction: schema.DirectionShort, Leverage: 5}))

	assert.InDelta(t, 40_000.0, l.TotalExposure(), 1e-6)
}
