package grsm

import (
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/eventlog"
	"main/internal/ledger"
	"main/internal/lock"
	"main/internal/obs"
	"main/internal/replay"
	"main/internal/risk"
	"main/internal/schema"
)

var (
	ErrShutdown          = errors.New("state manager is shut down")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrInvalidBatch      = errors.New("invalid order in batch")
	ErrInvalidEquity     = errors.New("initial equity must be > 0")
)

const defaultBreakerMarginRatio = 1.5

// Config carries the construction-time parameters of the state manager.
// The manager reads no environment or files itself.
type Config struct {
	InitialEquity float64
	Limits        risk.Limits

	// PartialCommit switches batch admission from the default
	// all-or-none policy to committing each allowed order even when
	// others in the batch are blocked.
	PartialCommit bool
}

func (c Config) withDefaults() Config {
	if c.Limits.CircuitBreakerMarginRatio <= 0 {
		c.Limits.CircuitBreakerMarginRatio = defaultBreakerMarginRatio
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.InitialEquity <= 0 {
		return ErrInvalidEquity
	}
	return nil
}

// Deps are the injected collaborators. Bus, Snapshots and Metrics may
// be nil; everything else is required.
type Deps struct {
	Log       *eventlog.Log
	Snapshots *eventlog.SnapshotStore
	Bus       *bus.Bus
	Locks     *lock.Coordinator
	Metrics   *obs.Metrics
}

func (d Deps) validate() error {
	if d.Log == nil {
		return errors.New("nil event log")
	}
	if d.Locks == nil {
		return errors.New("nil lock coordinator")
	}
	return nil
}

// Manager is the order-admission engine. It owns the ledger and is the
// only component that mutates it: every admission runs simulate,
// circuit-breaker check, rule evaluation, durable log append and
// commit as one critical section under the global lock, so commits are
// totally ordered and the log sequence reflects exactly that order.
type Manager struct {
	cfg    Config
	deps   Deps
	ledger *ledger.Ledger

	mu           sync.Mutex
	state        schema.LifecycleState
	freezeReason string
	frozenAt     time.Time
	lastSeq      uint64
}

// New recovers the ledger from the latest snapshot and log, then
// returns a manager in NORMAL state. A recovery failure fails the
// construction; a half-recovered manager is never observable.
func New(cfg Config, deps Deps) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	l := ledger.New(cfg.InitialEquity)
	res, err := replay.Recover(l, deps.Log, deps.Snapshots)
	if err != nil {
		return nil, errors.Wrap(err, "recover ledger")
	}

	return &Manager{
		cfg:     cfg,
		deps:    deps,
		ledger:  l,
		state:   schema.StateNormal,
		lastSeq: res.LastSeq,
	}, nil
}

// ProcessOrder admits a single order. A malformed order returns an
// error before any simulation; a well-formed order always gets a
// Decision. A log append failure fails the call and leaves the ledger
// untouched, so the ledger never runs ahead of the log.
func (m *Manager) ProcessOrder(order schema.Order) (schema.Decision, error) {
	if err := order.Validate(); err != nil {
		return schema.Decision{}, err
	}

	var (
		decision schema.Decision
		err      error
	)
	m.deps.Locks.WithGlobal(func() {
		decision, err = m.admit(order)
	})
	return decision, err
}

// ProcessOrdersBatch admits the orders as one unit. Under the default
// all-or-none policy a single blocked order prevents every commit; the
// returned decisions still report each order's individual outcome.
// With PartialCommit enabled each allowed order commits regardless of
// its neighbors.
func (m *Manager) ProcessOrdersBatch(orders []schema.Order) ([]schema.Decision, error) {
	for i, order := range orders {
		if err := order.Validate(); err != nil {
			return nil, errors.Wrapf(ErrInvalidBatch, "order %d: %v", i, err)
		}
	}
	if len(orders) == 0 {
		return nil, nil
	}

	var (
		decisions []schema.Decision
		err       error
	)
	m.deps.Locks.WithGlobal(func() {
		if m.cfg.PartialCommit {
			decisions, err = m.admitEach(orders)
		} else {
			decisions, err = m.admitAllOrNone(orders)
		}
	})
	return decisions, err
}

// admit runs under the global lock.
func (m *Manager) admit(order schema.Order) (schema.Decision, error) {
	if m.IsHalted() {
		return schema.Halted(), nil
	}

	account, positions := m.ledger.Simulate(order)
	if d := m.checkCircuitBreakers(account); !d.Allowed() {
		return d, nil
	}

	decision := risk.Evaluate(account, positions, order, m.cfg.Limits)
	if !decision.Allowed() {
		return decision, nil
	}

	if err := m.commit(order, account, positions); err != nil {
		return schema.Decision{}, err
	}
	return decision, nil
}

// admitAllOrNone evaluates the whole batch against cumulatively staged
// state and commits only when every order is allowed. Runs under the
// global lock.
func (m *Manager) admitAllOrNone(orders []schema.Order) ([]schema.Decision, error) {
	decisions := make([]schema.Decision, 0, len(orders))

	account := m.ledger.Account()
	positions := m.ledger.Positions()
	allAllowed := true
	for _, order := range orders {
		if m.IsHalted() {
			decisions = append(decisions, schema.Halted())
			allAllowed = false
			continue
		}
		simAccount, simPositions := ledger.Apply(account, positions, order)
		if d := m.checkCircuitBreakers(simAccount); !d.Allowed() {
			decisions = append(decisions, d)
			allAllowed = false
			continue
		}
		decision := risk.Evaluate(simAccount, simPositions, order, m.cfg.Limits)
		decisions = append(decisions, decision)
		if decision.Allowed() {
			account, positions = simAccount, simPositions
		} else {
			allAllowed = false
		}
	}
	if !allAllowed {
		return decisions, nil
	}

	for _, order := range orders {
		simAccount, simPositions := m.ledger.Simulate(order)
		if err := m.commit(order, simAccount, simPositions); err != nil {
			return decisions, err
		}
	}
	return decisions, nil
}

// admitEach is the explicit partial-commit mode: each order is admitted
// independently in batch order. Runs under the global lock.
func (m *Manager) admitEach(orders []schema.Order) ([]schema.Decision, error) {
	decisions := make([]schema.Decision, 0, len(orders))
	for _, order := range orders {
		decision, err := m.admit(order)
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// commit durably appends the log entry, then applies the simulated
// state and publishes the commit event. Append failure aborts the
// commit. Runs under the global lock.
func (m *Manager) commit(order schema.Order, account ledger.Account, positions map[string]ledger.Position) error {
	entry := schema.LogEntry{
		Order:         order,
		PreStateHash:  m.ledger.StateHash(),
		PostStateHash: ledger.HashState(account, positions),
	}
	start := time.Now()
	if err := m.deps.Log.Append(&entry); err != nil {
		return errors.Wrap(err, "append log entry")
	}
	m.deps.Metrics.ObserveAppend(time.Since(start))

	m.ledger.Commit(account, positions)
	m.mu.Lock()
	m.lastSeq = entry.Seq
	m.mu.Unlock()

	m.publish(bus.Event{Kind: bus.EventOrderCommitted, Order: order, Entry: entry})
	return nil
}

// checkCircuitBreakers inspects the simulated account before any rule
// evaluation, so an order that would itself breach the margin ratio
// trips the breaker instead of getting an ordinary BLOCK. A tripped
// breaker freezes the manager; the tripping order never commits.
func (m *Manager) checkCircuitBreakers(account ledger.Account) schema.Decision {
	if account.UsedMargin > m.cfg.Limits.CircuitBreakerMarginRatio*account.AvailableMargin {
		m.EmergencyFreeze("used margin breached circuit breaker ratio")
		return schema.Emergency(schema.ReasonCircuitBreaker)
	}
	return schema.Allow()
}

// EmergencyFreeze transitions the manager to EMERGENCY. Repeated calls
// while frozen only refresh the recorded reason. Clearing is always an
// explicit operator action; nothing unfreezes automatically.
func (m *Manager) EmergencyFreeze(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case schema.StateShutdown:
		return
	case schema.StateEmergency:
		m.freezeReason = reason
		return
	}

	m.state = schema.StateEmergency
	m.freezeReason = reason
	m.frozenAt = time.Now()
	logs.Errorf("emergency freeze: %s", reason)
	m.publish(bus.Event{Kind: bus.EventEmergency, Reason: reason})
}

// ClearEmergency returns a frozen manager to NORMAL. It is the only
// path out of EMERGENCY and is never called by any background loop.
func (m *Manager) ClearEmergency() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case schema.StateShutdown:
		return ErrShutdown
	case schema.StateNormal:
		return nil
	}
	if !schema.CanTransition(m.state, schema.StateNormal) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", m.state, schema.StateNormal)
	}

	logs.Infof("emergency cleared, was frozen at %s: %s", m.frozenAt.Format(time.RFC3339), m.freezeReason)
	m.state = schema.StateNormal
	m.freezeReason = ""
	m.frozenAt = time.Time{}
	return nil
}

// Shutdown moves the manager to its terminal state. Idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == schema.StateShutdown {
		return
	}
	m.state = schema.StateShutdown
	logs.Info("state manager shut down")
}

// IsHalted reports whether order intake is blocked.
func (m *Manager) IsHalted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Halted()
}

// State returns the current lifecycle state.
func (m *Manager) State() schema.LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FreezeReason returns the reason recorded by the last freeze, empty
// when not frozen.
func (m *Manager) FreezeReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freezeReason
}

// Snapshot returns a consistent copy of the ledger tagged with the
// last committed sequence number.
func (m *Manager) Snapshot() ledger.Snapshot {
	var snap ledger.Snapshot
	m.deps.Locks.WithGlobal(func() {
		m.mu.Lock()
		seq := m.lastSeq
		m.mu.Unlock()
		snap = m.ledger.Snapshot(seq)
	})
	return snap
}

// SaveSnapshot persists the current ledger state and returns the
// snapshot file path.
func (m *Manager) SaveSnapshot() (string, error) {
	if m.deps.Snapshots == nil {
		return "", errors.New("no snapshot store configured")
	}
	return m.deps.Snapshots.Save(m.Snapshot())
}

func (m *Manager) publish(event bus.Event) {
	if m.deps.Bus == nil {
		return
	}
	if err := m.deps.Bus.Publish(event); err != nil {
		if err == bus.ErrQueueFull {
			m.deps.Metrics.IncBusDrop()
		}
		logs.Errorf("publish %s event: %v", event.Kind, err)
	}
}
