package replay

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/eventlog"
	"main/internal/ledger"
	"main/internal/schema"
)

var (
	ErrHashMismatch = errors.New("replay state hash mismatch")
)

// Result summarizes a recovery run.
type Result struct {
	FromSnapshot bool
	SnapshotSeq  uint64
	Replayed     int
	LastSeq      uint64
}

// Recover rebuilds the ledger from the latest snapshot plus every log
// entry past it. Each entry's state hashes are checked against the
// ledger as it is reapplied; any mismatch aborts the recovery, since a
// ledger that disagrees with its log must not accept new orders.
// Snapshots may be nil, in which case the full log is replayed onto
// the ledger's starting state.
func Recover(l *ledger.Ledger, log *eventlog.Log, snapshots *eventlog.SnapshotStore) (Result, error) {
	var res Result

	if snapshots != nil {
		snap, ok, err := snapshots.LoadLatest()
		if err != nil {
			return res, errors.Wrap(err, "load snapshot")
		}
		if ok {
			l.Restore(snap)
			res.FromSnapshot = true
			res.SnapshotSeq = snap.LastSeq
			res.LastSeq = snap.LastSeq
		}
	}

	entries, err := log.LoadAll()
	if err != nil {
		return res, errors.Wrap(err, "load event log")
	}

	for i := range entries {
		entry := &entries[i]
		if entry.Seq <= res.SnapshotSeq {
			continue
		}
		if err := apply(l, entry); err != nil {
			return res, err
		}
		res.Replayed++
		res.LastSeq = entry.Seq
	}

	if res.Replayed > 0 || res.FromSnapshot {
		logs.Infof("recovered ledger: snapshot seq %d, replayed %d entries, last seq %d",
			res.SnapshotSeq, res.Replayed, res.LastSeq)
	}
	return res, nil
}

// Verify replays the whole log onto a fresh ledger with the given
// starting equity and checks the hash chain end to end. The ledger
// under verification is discarded; only the result is reported.
func Verify(log *eventlog.Log, equity float64) (Result, error) {
	l := ledger.New(equity)
	return Recover(l, log, nil)
}

func apply(l *ledger.Ledger, entry *schema.LogEntry) error {
	if got := l.StateHash(); got != entry.PreStateHash {
		return errors.Wrapf(ErrHashMismatch, "seq %d: pre state %s, ledger %s", entry.Seq, entry.PreStateHash, got)
	}

	account, positions := l.Simulate(entry.Order)
	if got := ledger.HashState(account, positions); got != entry.PostStateHash {
		return errors.Wrapf(ErrHashMismatch, "seq %d: post state %s, computed %s", entry.Seq, entry.PostStateHash, got)
	}

	l.Commit(account, positions)
	return nil
}
