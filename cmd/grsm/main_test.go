package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/batch"
	"main/internal/eventlog"
	"main/internal/grsm"
	"main/internal/health"
	"main/internal/lock"
	"main/internal/obs"
	"main/internal/schema"
)

func TestIntakeAdmitsSingleOrdersAndArrayBatches(t *testing.T) {
	dir := t.TempDir()
	log, err := eventlog.Open(eventlog.DefaultConfig(dir))
	require.NoError(t, err)
	defer log.Close()

	locks := lock.NewCoordinator()
	metrics := obs.NewMetrics()
	manager, err := grsm.New(grsm.Config{InitialEquity: 100000}, grsm.Deps{
		Log:     log,
		Locks:   locks,
		Metrics: metrics,
	})
	require.NoError(t, err)

	router := grsm.NewRouter(manager)
	accumulator, err := batch.NewAccumulator(router, locks, 16)
	require.NoError(t, err)
	latency := health.NewLatencyTracker(16)

	// One buffered order, one array batch admitted immediately, one
	// undecodable line.
	input := filepath.Join(dir, "orders.jsonl")
	content := `{"symbol":"BTCUSDT","size":0.1,"price":25000,"direction":1,"leverage":2}
[{"symbol":"ETHUSDT","size":1,"price":3000,"direction":1,"leverage":2},{"symbol":"SOLUSDT","size":10,"price":100,"direction":1,"leverage":2}]
not json
`
	require.NoError(t, os.WriteFile(input, []byte(content), 0o644))

	require.NoError(t, intake(input, accumulator, router, latency, metrics))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(3), snap.DecisionCounts[schema.ActionAllow])
	assert.Equal(t, uint64(1), snap.ValidationErrs)
	assert.Equal(t, uint64(3), manager.Snapshot().LastSeq)
}
