package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrClosed       = errors.New("event log closed")
	ErrCorruptEntry = errors.New("event log corrupt entry")
	ErrSeqGap       = errors.New("event log sequence gap")
)

// Log is an append-only record of committed orders, one JSON entry per
// line across size-rotated segment files. Append is synchronous: it
// assigns the next sequence number and does not return until the entry
// is flushed and fsynced, so a committed order is never ahead of its
// log record. Log does no locking of its own; callers serialize access.
type Log struct {
	cfg     Config
	seg     *segment
	segID   uint64
	nextSeq uint64
	closed  bool
}

type segment struct {
	file *os.File
	buf  *bufio.Writer
	size int64
}

// Open prepares the log directory and scans existing segments so the
// next Append continues the sequence. Corrupt segments fail the open.
func Open(cfg Config) (*Log, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	l := &Log{cfg: cfg, nextSeq: 1}
	entries, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	if n := len(entries); n > 0 {
		l.nextSeq = entries[n-1].Seq + 1
	}
	return l, nil
}

// NextSeq returns the sequence number the next Append will assign.
func (l *Log) NextSeq() uint64 {
	return l.nextSeq
}

// Append durably writes the entry, assigning its sequence number and
// timestamp. On error the entry was not recorded and must not be
// treated as committed.
func (l *Log) Append(entry *schema.LogEntry) error {
	if l.closed {
		return ErrClosed
	}

	entry.Seq = l.nextSeq
	if entry.EntryID == "" {
		entry.EntryID = schema.NewEntryID()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixNano()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal log entry")
	}
	line = append(line, '\n')

	if err := l.rotateIfNeeded(int64(len(line))); err != nil {
		return err
	}
	if _, err := l.seg.buf.Write(line); err != nil {
		return errors.Wrap(err, "write log entry")
	}
	if err := l.seg.buf.Flush(); err != nil {
		return errors.Wrap(err, "flush log segment")
	}
	if err := l.seg.file.Sync(); err != nil {
		return errors.Wrap(err, "sync log segment")
	}

	l.seg.size += int64(len(line))
	l.nextSeq++
	return nil
}

// LoadAll reads every entry from every segment in order. A record that
// fails to decode or breaks the sequence aborts the load; a truncated
// log must not be silently repaired.
func (l *Log) LoadAll() ([]schema.LogEntry, error) {
	files, err := l.segmentFiles()
	if err != nil {
		return nil, err
	}

	var entries []schema.LogEntry
	var wantSeq uint64 = 1
	for _, path := range files {
		loaded, err := loadSegment(path, &wantSeq)
		if err != nil {
			return nil, err
		}
		entries = append(entries, loaded...)
	}
	return entries, nil
}

// Close flushes and closes the active segment. Further appends fail.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.closeSegment()
}

func (l *Log) rotateIfNeeded(nextSize int64) error {
	if l.seg != nil && l.seg.size+nextSize <= l.cfg.SegmentMaxBytes {
		return nil
	}
	if err := l.closeSegment(); err != nil {
		return err
	}
	return l.openSegment()
}

func (l *Log) openSegment() error {
	ts := time.Now().UTC().Format("20060102-150405")
	for {
		l.segID++
		name := fmt.Sprintf("%s-%s-%06d.log", l.cfg.FilePrefix, ts, l.segID)
		path := filepath.Join(l.cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return errors.Wrap(err, "open log segment")
		}
		l.seg = &segment{
			file: file,
			buf:  bufio.NewWriterSize(file, l.cfg.BufferSize),
		}
		return nil
	}
}

func (l *Log) closeSegment() error {
	if l.seg == nil {
		return nil
	}
	seg := l.seg
	l.seg = nil
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (l *Log) segmentFiles() ([]string, error) {
	dirents, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "read log dir")
	}
	var files []string
	prefix := l.cfg.FilePrefix + "-"
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".log") {
			files = append(files, filepath.Join(l.cfg.Dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadSegment(path string, wantSeq *uint64) ([]schema.LogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read log segment")
	}

	var entries []schema.LogEntry
	for lineNo, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry schema.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, errors.Wrapf(ErrCorruptEntry, "%s line %d: %v", filepath.Base(path), lineNo+1, err)
		}
		if entry.Seq != *wantSeq {
			return nil, errors.Wrapf(ErrSeqGap, "%s: want seq %d, got %d", filepath.Base(path), *wantSeq, entry.Seq)
		}
		*wantSeq++
		entries = append(entries, entry)
	}
	return entries, nil
}
