package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/audit"
	"main/internal/batch"
	"main/internal/bus"
	"main/internal/eventlog"
	"main/internal/grsm"
	"main/internal/health"
	"main/internal/lock"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/replay"
	"main/internal/schema"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	ordersPath := flag.String("orders", "-", "Order intake file, one JSON order per line (- for stdin)")
	verifyMode := flag.Bool("verify", false, "Verify the event log hash chain and exit")
	snapshotOnExit := flag.Bool("snapshot-on-exit", true, "Persist a ledger snapshot on shutdown")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if loaded.Profiling.Enabled {
		profiler, err := startProfiler(loaded.Profiling)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	if *verifyMode {
		if err := runVerify(loaded); err != nil {
			log.Fatalf("verify failed: %v", err)
		}
		return
	}

	if err := run(ctx, loaded, *ordersPath, *snapshotOnExit); err != nil {
		log.Fatalf("grsm failed: %v", err)
	}
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Resolve(ops.FileConfig{Equity: 100000})
	}
	return ops.Load(path)
}

func startProfiler(cfg ops.ProfilingConfig) (*pyroscope.Profiler, error) {
	name := cfg.ApplicationName
	if name == "" {
		name = "grsm"
	}
	addr := cfg.ServerAddress
	if addr == "" {
		addr = "http://localhost:4040"
	}
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: name,
		ServerAddress:   addr,
		Logger:          emptyLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

func runVerify(loaded ops.Loaded) error {
	eventLog, err := eventlog.Open(loaded.EventLog)
	if err != nil {
		return err
	}
	defer eventLog.Close()

	res, err := replay.Verify(eventLog, loaded.Manager.InitialEquity)
	if err != nil {
		return err
	}
	fmt.Printf("verified %d log entries, last seq %d\n", res.Replayed, res.LastSeq)
	return nil
}

func run(ctx context.Context, loaded ops.Loaded, ordersPath string, snapshotOnExit bool) error {
	eventLog, err := eventlog.Open(loaded.EventLog)
	if err != nil {
		return err
	}
	defer eventLog.Close()

	snapshots, err := eventlog.NewSnapshotStore(loaded.SnapshotDir)
	if err != nil {
		return err
	}

	eventBus := bus.New(loaded.BusCapacity)
	metrics := obs.NewMetrics()
	if loaded.Audit.Enabled {
		db, err := conn.OpenPostgres(loaded.Audit.Postgres, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = conn.ClosePostgres(db)
		}()
		store, err := audit.NewStore(db)
		if err != nil {
			return err
		}
		eventBus.Subscribe(bus.EventOrderCommitted, store.Handler())
	}
	eventBus.Start(ctx)
	defer eventBus.Close()

	locks := lock.NewCoordinator()
	manager, err := grsm.New(loaded.Manager, grsm.Deps{
		Log:       eventLog,
		Snapshots: snapshots,
		Bus:       eventBus,
		Locks:     locks,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	router := grsm.NewRouter(manager)
	accumulator, err := batch.NewAccumulator(router, locks, loaded.MaxBatchSize)
	if err != nil {
		return err
	}

	latency := health.NewLatencyTracker(loaded.LatencyWindow)
	monitor := health.NewMonitor(loaded.Health, manager, accumulator, latency)
	monitor.Start(ctx)
	defer monitor.Close()

	if loaded.SnapshotEvery > 0 {
		go snapshotLoop(ctx, manager, loaded.SnapshotEvery)
	}

	intakeDone := make(chan error, 1)
	go func() {
		intakeDone <- intake(ordersPath, accumulator, router, latency, metrics)
	}()

	select {
	case <-ctx.Done():
		logs.Info("signal received, shutting down")
	case <-sys.Shutdown():
		logs.Info("shutdown requested")
	case err := <-intakeDone:
		if err != nil {
			return err
		}
	}

	if _, err := accumulator.FlushAll(); err != nil {
		logs.Errorf("flush pending batches: %v", err)
	}
	if snapshotOnExit {
		path, err := manager.SaveSnapshot()
		if err != nil {
			logs.Errorf("save snapshot: %v", err)
		} else {
			logs.Infof("snapshot saved to %s", path)
		}
	}
	manager.Shutdown()

	snap := metrics.Snapshot()
	logs.Infof("decisions: %v, validation errors: %d, bus drops: %d, admission latency avg %s, append latency avg %s",
		snap.DecisionCounts, snap.ValidationErrs, eventBus.Drops(), snap.AdmissionLatency.Avg, snap.AppendLatency.Avg)
	return nil
}

// snapshotLoop persists a ledger snapshot at a fixed interval so recovery
// replays a short tail instead of the whole log.
func snapshotLoop(ctx context.Context, manager *grsm.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := manager.SaveSnapshot(); err != nil {
				logs.Errorf("periodic snapshot: %v", err)
			}
		}
	}
}

// intake reads one JSON value per line: a single order is buffered in the
// accumulator, an array is admitted immediately as one batch through the
// router. Single-order decisions surface when a batch flushes.
func intake(path string, accumulator *batch.Accumulator, router *grsm.Router, latency *health.LatencyTracker, metrics *obs.Metrics) error {
	var reader io.Reader = os.Stdin
	if path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		reader = file
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if line[0] == '[' {
			var orders []schema.Order
			if err := json.Unmarshal(line, &orders); err != nil {
				logs.Errorf("decode batch: %v", err)
				metrics.IncValidationError()
				continue
			}
			start := time.Now()
			decisions, err := router.ProcessBatch(orders)
			elapsed := time.Since(start)
			latency.Observe(elapsed)
			metrics.ObserveAdmission(elapsed)
			if err != nil {
				logs.Errorf("batch: %v", err)
				metrics.IncValidationError()
				continue
			}
			for _, decision := range decisions {
				metrics.ObserveDecision(decision)
				logs.Infof("decision %s reason=%s", decision.Action, decision.Reason)
			}
			continue
		}

		var order schema.Order
		if err := json.Unmarshal(line, &order); err != nil {
			logs.Errorf("decode order: %v", err)
			metrics.IncValidationError()
			continue
		}

		start := time.Now()
		decisions, err := accumulator.Submit(order)
		elapsed := time.Since(start)
		latency.Observe(elapsed)
		metrics.ObserveAdmission(elapsed)
		if err != nil {
			logs.Errorf("submit %s: %v", order.Symbol, err)
			metrics.IncValidationError()
			continue
		}
		for _, decision := range decisions {
			metrics.ObserveDecision(decision)
			logs.Infof("decision %s reason=%s", decision.Action, decision.Reason)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	results, err := accumulator.FlushAll()
	if err != nil {
		return err
	}
	for symbol, decisions := range results {
		for _, decision := range decisions {
			metrics.ObserveDecision(decision)
			logs.Infof("decision %s %s reason=%s", symbol, decision.Action, decision.Reason)
		}
	}
	return nil
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
