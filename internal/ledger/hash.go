package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

type hashState struct {
	Account   Account         `json:"account"`
	Positions []PositionEntry `json:"positions"`
}

// StateHash returns the sha256 hex digest of the canonical encoding of the
// committed state. Log entries carry the pre/post hashes so recovery can
// verify it replays exactly the history that was committed.
func (l *Ledger) StateHash() string {
	return HashState(l.account, l.positions)
}

// HashState hashes an arbitrary account/position state canonically
// (positions sorted by symbol).
func HashState(account Account, positions map[string]Position) string {
	entries := make([]PositionEntry, 0, len(positions))
	for symbol, p := range positions {
		entries = append(entries, PositionEntry{Symbol: symbol, Position: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})

	data, err := json.Marshal(hashState{Account: account, Positions: entries})
	if err != nil {
		// Account and Position contain only plain numeric fields.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
