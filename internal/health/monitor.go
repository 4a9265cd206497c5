package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/ledger"
	"main/internal/schema"
)

const defaultInterval = time.Second

// AdmissionState is the slice of the state manager the monitor needs.
type AdmissionState interface {
	IsHalted() bool
	EmergencyFreeze(reason string)
	Snapshot() ledger.Snapshot
}

// BatchFlusher drains pending batches during a safe-mode response.
type BatchFlusher interface {
	FlushAll() (map[string][]schema.Decision, error)
}

// MonitorConfig controls the health loop.
type MonitorConfig struct {
	Interval time.Duration

	// CriticalLatency forces safe mode when the average observed
	// admission latency exceeds it. Zero disables the check.
	CriticalLatency time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	return c
}

// Monitor is the supervised health loop: each tick it flushes batches
// when the manager is halted, forces safe mode on critical latency and
// freezes the manager when the ledger breaks its margin invariant. It
// never clears an emergency; that stays an operator action.
type Monitor struct {
	cfg     MonitorConfig
	state   AdmissionState
	flusher BatchFlusher
	latency *LatencyTracker

	wg      sync.WaitGroup
	started uint32
	closed  uint32
	cancel  context.CancelFunc
}

// NewMonitor creates a health monitor. Flusher and latency may be nil,
// disabling the corresponding responses.
func NewMonitor(cfg MonitorConfig, state AdmissionState, flusher BatchFlusher, latency *LatencyTracker) *Monitor {
	return &Monitor{
		cfg:     cfg.withDefaults(),
		state:   state,
		flusher: flusher,
		latency: latency,
	}
}

// Start runs the loop in a new goroutine until ctx is done or Close.
func (m *Monitor) Start(ctx context.Context) {
	if !atomic.CompareAndSwapUint32(&m.started, 0, 1) {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()
}

// Close stops the loop and waits for the current tick to finish.
func (m *Monitor) Close() {
	if !atomic.CompareAndSwapUint32(&m.closed, 0, 1) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick runs one inspection pass. A panic inside a check is logged and
// the loop keeps running; the monitor must outlive its own bugs.
func (m *Monitor) tick() {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("health tick panic: %v", r)
		}
	}()

	if m.state.IsHalted() {
		m.flushPending("manager halted")
		return
	}

	if m.latency != nil && m.cfg.CriticalLatency > 0 {
		if stats := m.latency.Stats(); stats.Samples > 0 && stats.Avg > m.cfg.CriticalLatency {
			logs.Errorf("average admission latency %s over critical threshold %s", stats.Avg, m.cfg.CriticalLatency)
			m.state.EmergencyFreeze("admission latency critical")
			m.flushPending("latency critical")
			return
		}
	}

	snap := m.state.Snapshot()
	if snap.Account.UsedMargin > snap.Account.Equity {
		m.state.EmergencyFreeze("used margin exceeds equity")
	}
}

func (m *Monitor) flushPending(cause string) {
	if m.flusher == nil {
		return
	}
	if _, err := m.flusher.FlushAll(); err != nil {
		logs.Errorf("flush pending batches (%s): %v", cause, err)
	}
}
