package ops

import (
	"encoding/json"
	"os"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/eventlog"
	"main/internal/grsm"
	"main/internal/health"
	"main/internal/risk"
	"main/pkg/conn"
)

const (
	defaultDataDir       = "data"
	defaultMaxBatchSize  = 16
	defaultBusCapacity   = 1024
	defaultLatencyWindow = 256
)

// FileConfig mirrors the JSON config layout. The admission core itself
// reads no files; everything is resolved here and injected.
type FileConfig struct {
	Equity        float64         `json:"equity"`
	Limits        risk.Limits     `json:"limits"`
	PartialCommit bool            `json:"partialCommit"`
	Batch         BatchConfig     `json:"batch"`
	Health        HealthConfig    `json:"health"`
	EventLog      EventLogConfig  `json:"eventLog"`
	Bus           BusConfig       `json:"bus"`
	Audit         AuditConfig     `json:"audit"`
	Profiling     ProfilingConfig `json:"profiling"`
}

// BatchConfig controls the per-symbol accumulator.
type BatchConfig struct {
	MaxBatchSize int `json:"maxBatchSize"`
}

// HealthConfig controls the background health loop.
type HealthConfig struct {
	IntervalMs        int64 `json:"intervalMs"`
	CriticalLatencyMs int64 `json:"criticalLatencyMs"`
	LatencyWindow     int   `json:"latencyWindow"`
}

// EventLogConfig controls log and snapshot persistence.
type EventLogConfig struct {
	Dir             string `json:"dir"`
	FilePrefix      string `json:"filePrefix"`
	SegmentMaxBytes int64  `json:"segmentMaxBytes"`

	// SnapshotIntervalMs enables periodic snapshots when > 0. A snapshot
	// is always taken on shutdown regardless of this setting.
	SnapshotIntervalMs int64 `json:"snapshotIntervalMs"`
}

// BusConfig controls the commit notification queue.
type BusConfig struct {
	Capacity int `json:"capacity"`
}

// AuditConfig enables the relational audit store.
type AuditConfig struct {
	Enabled  bool                `json:"enabled"`
	Postgres conn.PostgresConfig `json:"postgres"`
}

// ProfilingConfig enables continuous profiling.
type ProfilingConfig struct {
	Enabled         bool   `json:"enabled"`
	ApplicationName string `json:"applicationName"`
	ServerAddress   string `json:"serverAddress"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Manager       grsm.Config
	EventLog      eventlog.Config
	SnapshotDir   string
	SnapshotEvery time.Duration
	Health        health.MonitorConfig
	LatencyWindow int
	MaxBatchSize  int
	BusCapacity   int
	Audit         AuditConfig
	Profiling     ProfilingConfig
}

// Load reads a JSON config file and resolves component configs.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return Resolve(cfg)
}

// Resolve applies defaults and validates the file config.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Equity <= 0 {
		return Loaded{}, errors.New("config: equity must be > 0")
	}
	if cfg.Batch.MaxBatchSize < 0 {
		return Loaded{}, errors.New("config: maxBatchSize must be >= 0")
	}

	dir := cfg.EventLog.Dir
	if dir == "" {
		dir = defaultDataDir
	}
	logCfg := eventlog.DefaultConfig(dir)
	if cfg.EventLog.FilePrefix != "" {
		logCfg.FilePrefix = cfg.EventLog.FilePrefix
	}
	if cfg.EventLog.SegmentMaxBytes > 0 {
		logCfg.SegmentMaxBytes = cfg.EventLog.SegmentMaxBytes
	}

	loaded := Loaded{
		Manager: grsm.Config{
			InitialEquity: cfg.Equity,
			Limits:        cfg.Limits,
			PartialCommit: cfg.PartialCommit,
		},
		EventLog:      logCfg,
		SnapshotDir:   dir,
		SnapshotEvery: time.Duration(cfg.EventLog.SnapshotIntervalMs) * time.Millisecond,
		Health: health.MonitorConfig{
			Interval:        time.Duration(cfg.Health.IntervalMs) * time.Millisecond,
			CriticalLatency: time.Duration(cfg.Health.CriticalLatencyMs) * time.Millisecond,
		},
		LatencyWindow: cfg.Health.LatencyWindow,
		MaxBatchSize:  cfg.Batch.MaxBatchSize,
		BusCapacity:   cfg.Bus.Capacity,
		Audit:         cfg.Audit,
		Profiling:     cfg.Profiling,
	}
	if loaded.LatencyWindow <= 0 {
		loaded.LatencyWindow = defaultLatencyWindow
	}
	if loaded.MaxBatchSize == 0 {
		loaded.MaxBatchSize = defaultMaxBatchSize
	}
	if loaded.BusCapacity <= 0 {
		loaded.BusCapacity = defaultBusCapacity
	}
	return loaded, nil
}
