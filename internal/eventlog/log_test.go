package eventlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/ledger"
	"main/internal/schema"
)

func testOrder(symbol string, size float64) schema.Order {
	return schema.Order{
		Symbol:    symbol,
		Size:      size,
		Price:     50000,
		Direction: schema.DirectionLong,
		Leverage:  10,
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	log, err := Open(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	defer log.Close()

	for i := 1; i <= 3; i++ {
		entry := schema.LogEntry{Order: testOrder("BTCUSDT", 0.1)}
		require.NoError(t, log.Append(&entry))
		assert.Equal(t, uint64(i), entry.Seq)
		assert.NotEmpty(t, entry.EntryID)
		assert.NotZero(t, entry.Timestamp)
	}
	assert.Equal(t, uint64(4), log.NextSeq())
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	for range 5 {
		require.NoError(t, log.Append(&schema.LogEntry{Order: testOrder("ETHUSDT", 1)}))
	}
	require.NoError(t, log.Close())

	log, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer log.Close()
	assert.Equal(t, uint64(6), log.NextSeq())

	entries, err := log.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, uint64(5), entries[4].Seq)
	assert.Equal(t, "ETHUSDT", entries[0].Order.Symbol)
}

func TestSegmentRotationPreservesOrder(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SegmentMaxBytes = 256

	log, err := Open(cfg)
	require.NoError(t, err)
	defer log.Close()

	const n = 20
	for range n {
		require.NoError(t, log.Append(&schema.LogEntry{Order: testOrder("BTCUSDT", 0.5)}))
	}

	files, err := log.segmentFiles()
	require.NoError(t, err)
	assert.Greater(t, len(files), 1, "small segments should have rotated")

	entries, err := log.LoadAll()
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, entry := range entries {
		assert.Equal(t, uint64(i+1), entry.Seq)
	}
}

func TestLoadFailsOnCorruptLine(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, log.Append(&schema.LogEntry{Order: testOrder("BTCUSDT", 0.1)}))
	require.NoError(t, log.Close())

	files, err := log.segmentFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	f, err := os.OpenFile(files[0], os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(DefaultConfig(dir))
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestLoadFailsOnSequenceGap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events-20260101-000000-000001.log")
	lines := `{"seq":1,"entryId":"a","order":{"symbol":"BTCUSDT","size":1,"price":100,"direction":1},"preStateHash":"x","postStateHash":"y","timestamp":1}
{"seq":3,"entryId":"b","order":{"symbol":"BTCUSDT","size":1,"price":100,"direction":1},"preStateHash":"y","postStateHash":"z","timestamp":2}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	_, err := Open(DefaultConfig(dir))
	assert.ErrorIs(t, err, ErrSeqGap)
}

func TestAppendAfterCloseFails(t *testing.T) {
	log, err := Open(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, log.Close())

	err = log.Append(&schema.LogEntry{Order: testOrder("BTCUSDT", 0.1)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.LoadLatest()
	require.NoError(t, err)
	assert.False(t, ok)

	l := ledger.New(100000)
	first := l.Snapshot(3)
	first.Timestamp = 1000
	_, err = store.Save(first)
	require.NoError(t, err)

	second := l.Snapshot(7)
	second.Timestamp = 2000
	_, err = store.Save(second)
	require.NoError(t, err)

	got, ok, err := store.LoadLatest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.LastSeq)
	assert.Equal(t, int64(2000), got.Timestamp)
}
