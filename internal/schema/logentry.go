package schema

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// LogEntry is the durable record of one committed order. Entries are appended
// exactly once, never mutated, and replayed in Seq order during recovery.
type LogEntry struct {
	Seq           uint64 `json:"seq"`
	EntryID       string `json:"entryId"`
	Order         Order  `json:"order"`
	PreStateHash  string `json:"preStateHash"`
	PostStateHash string `json:"postStateHash"`
	Timestamp     int64  `json:"timestamp"`
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// Monotonic entropy keeps IDs generated within one millisecond
	// lexicographically increasing, matching log append order.
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewEntryID returns a time-sortable ULID string for log/audit correlation.
func NewEntryID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}
