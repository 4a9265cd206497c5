package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/ledger"
)

const snapshotPrefix = "snapshot-"

// SnapshotStore persists ledger snapshots as JSON files. File names
// sort lexicographically by capture time so the latest snapshot is the
// last name in the directory listing.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore ensures the snapshot directory exists.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if dir == "" {
		return nil, errors.New("snapshot dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}
	return &SnapshotStore{dir: dir}, nil
}

// Save writes the snapshot atomically and returns its path. The file
// is written to a temp name first so a crash never leaves a partial
// snapshot with a valid name.
func (s *SnapshotStore) Save(snap ledger.Snapshot) (string, error) {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal snapshot")
	}

	name := fmt.Sprintf("%s%s-%012d.json",
		snapshotPrefix,
		time.Unix(0, snap.Timestamp).UTC().Format("20060102-150405.000000000"),
		snap.LastSeq,
	)
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "open snapshot file")
	}
	if _, err := file.Write(raw); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "write snapshot")
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "sync snapshot")
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "close snapshot")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "rename snapshot")
	}
	return path, nil
}

// LoadLatest returns the most recent snapshot, or ok=false when the
// directory holds none.
func (s *SnapshotStore) LoadLatest() (ledger.Snapshot, bool, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return ledger.Snapshot{}, false, errors.Wrap(err, "read snapshot dir")
	}

	var names []string
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		if strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ledger.Snapshot{}, false, nil
	}
	sort.Strings(names)

	latest := filepath.Join(s.dir, names[len(names)-1])
	raw, err := os.ReadFile(latest)
	if err != nil {
		return ledger.Snapshot{}, false, errors.Wrap(err, "read snapshot")
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ledger.Snapshot{}, false, errors.Wrapf(err, "decode snapshot %s", names[len(names)-1])
	}
	return snap, true, nil
}
