package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"main/internal/bus"
	"main/internal/schema"
)

func TestRecordFromEvent(t *testing.T) {
	event := bus.Event{
		Kind: bus.EventOrderCommitted,
		Order: schema.Order{
			Symbol:    "BTCUSDT",
			Size:      0.5,
			Price:     50000,
			Direction: schema.DirectionShort,
			Leverage:  10,
		},
		Entry: schema.LogEntry{
			Seq:           42,
			EntryID:       "01J0000000000000000000000X",
			PreStateHash:  "aa",
			PostStateHash: "bb",
			Timestamp:     1700000000000000000,
		},
	}

	record := recordFromEvent(event)
	assert.Equal(t, uint64(42), record.Seq)
	assert.Equal(t, "01J0000000000000000000000X", record.EntryID)
	assert.Equal(t, "BTCUSDT", record.Symbol)
	assert.Equal(t, int8(-1), record.Direction)
	assert.Equal(t, 10.0, record.Leverage)
	assert.Equal(t, "aa", record.PreStateHash)
	assert.Equal(t, "bb", record.PostStateHash)
	assert.Equal(t, int64(1700000000000000000), record.CommittedAt)
}

func TestRecordDefaultsLeverage(t *testing.T) {
	record := recordFromEvent(bus.Event{
		Order: schema.Order{Symbol: "ETHUSDT", Size: 1, Price: 3000, Direction: schema.DirectionLong},
	})
	assert.Equal(t, 1.0, record.Leverage)
}

func TestNewStoreRejectsNilDB(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}
