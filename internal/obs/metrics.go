package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxAction = int(schema.ActionHalted)
	maxReason = int(schema.ReasonHalted)
)

// Metrics collects lightweight counters and latency stats for the
// admission path.
type Metrics struct {
	decisionCounts [maxAction + 1]uint64
	reasonCounts   [maxReason + 1]uint64
	validationErrs uint64
	busDrops       uint64

	admissionLatency LatencyStats
	appendLatency    LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	DecisionCounts   map[schema.DecisionAction]uint64
	ReasonCounts     map[schema.DecisionReason]uint64
	ValidationErrs   uint64
	BusDrops         uint64
	AdmissionLatency LatencySnapshot
	AppendLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveDecision counts the decision outcome and its reason.
func (m *Metrics) ObserveDecision(decision schema.Decision) {
	if m == nil {
		return
	}
	if idx := int(decision.Action); idx >= 0 && idx < len(m.decisionCounts) {
		atomic.AddUint64(&m.decisionCounts[idx], 1)
	}
	if decision.Reason == schema.ReasonNone {
		return
	}
	if idx := int(decision.Reason); idx >= 0 && idx < len(m.reasonCounts) {
		atomic.AddUint64(&m.reasonCounts[idx], 1)
	}
}

// IncValidationError counts a malformed order rejected before simulation.
func (m *Metrics) IncValidationError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.validationErrs, 1)
}

// IncBusDrop records a dropped commit notification.
func (m *Metrics) IncBusDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.busDrops, 1)
}

// ObserveAdmission measures one ProcessOrder round trip.
func (m *Metrics) ObserveAdmission(d time.Duration) {
	if m == nil {
		return
	}
	m.admissionLatency.Observe(d)
}

// ObserveAppend measures one durable log append.
func (m *Metrics) ObserveAppend(d time.Duration) {
	if m == nil {
		return
	}
	m.appendLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	decisions := make(map[schema.DecisionAction]uint64)
	for i := range m.decisionCounts {
		if v := atomic.LoadUint64(&m.decisionCounts[i]); v > 0 {
			decisions[schema.DecisionAction(i)] = v
		}
	}
	reasons := make(map[schema.DecisionReason]uint64)
	for i := range m.reasonCounts {
		if v := atomic.LoadUint64(&m.reasonCounts[i]); v > 0 {
			reasons[schema.DecisionReason(i)] = v
		}
	}
	return Snapshot{
		DecisionCounts:   decisions,
		ReasonCounts:     reasons,
		ValidationErrs:   atomic.LoadUint64(&m.validationErrs),
		BusDrops:         atomic.LoadUint64(&m.busDrops),
		AdmissionLatency: m.admissionLatency.Snapshot(),
		AppendLatency:    m.appendLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
