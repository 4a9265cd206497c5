package ledger

import (
	"sort"
	"time"
)

// Snapshot is an immutable copy of the committed state at a point in time.
// LastSeq is the sequence number of the last log entry the snapshot covers,
// which makes snapshot and log positions comparable during recovery.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	LastSeq   uint64          `json:"lastSeq"`
	Account   Account         `json:"account"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is one symbol's position inside a snapshot, kept sorted by
// symbol so the encoding is deterministic.
type PositionEntry struct {
	Symbol   string   `json:"symbol"`
	Position Position `json:"position"`
}

// Snapshot returns a defensive copy of the committed state. It never aliases
// the ledger's internal map.
func (l *Ledger) Snapshot(lastSeq uint64) Snapshot {
	entries := make([]PositionEntry, 0, len(l.positions))
	for symbol, p := range l.positions {
		entries = append(entries, PositionEntry{Symbol: symbol, Position: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		LastSeq:   lastSeq,
		Account:   l.account,
		Positions: entries,
	}
}

// Restore replaces the committed state with a snapshot. Recovery applies
// snapshots directly: they are already validated history and bypass
// simulation and rule evaluation.
func (l *Ledger) Restore(snapshot Snapshot) {
	l.account = snapshot.Account
	l.positions = make(map[string]Position, len(snapshot.Positions))
	for _, entry := range snapshot.Positions {
		l.positions[entry.Symbol] = entry.Position
	}
}

// Positions returns a copy of the committed position map.
func (l *Ledger) Positions() map[string]Position {
	return clonePositions(l.positions)
}
