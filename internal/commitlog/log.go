package commitlog

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/gocoredb/coredb/internal/dblog"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// minLogSize is the smallest size a log file is grown to on first use
// (mirrors internal/arena's minGrowth).
const minLogSize = 64 * 1024

// accessHeaderSize is the fixed size of the log_access header block:
// a 64-byte slot holding the uint32 selector, followed by two preambles.
const accessHeaderSize = 64 + 2*preambleSize

// AccessHeader is the content of the log_access file: the selector bit
// plus the redundant preamble pair (spec §4.7).
type AccessHeader struct {
	Selector  uint32
	Preambles [2]Preamble
}

func encodeAccessHeader(h AccessHeader) []byte {
	buf := dbutil.AlignedBuffer(accessHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Selector)
	h.Preambles[0].Encode(buf[64 : 64+preambleSize])
	h.Preambles[1].Encode(buf[64+preambleSize : 64+2*preambleSize])
	return buf
}

func decodeAccessHeader(buf []byte) (AccessHeader, error) {
	if len(buf) < accessHeaderSize {
		return AccessHeader{}, dbutil.New(dbutil.KindCommitLogCorrupt, "log_access header truncated")
	}
	h := AccessHeader{Selector: binary.LittleEndian.Uint32(buf[0:4])}
	if h.Selector > 1 {
		return AccessHeader{}, dbutil.New(dbutil.KindCommitLogCorrupt, "bad log_access selector")
	}
	h.Preambles[0] = DecodePreamble(buf[64 : 64+preambleSize])
	h.Preambles[1] = DecodePreamble(buf[64+preambleSize : 64+2*preambleSize])
	return h, nil
}

// Log is the two-file circular commit log plus its header (spec §4.7,
// component C7). The header mutex doubles as the cross-process append
// serializer; within one process callers also hold the session
// package's writer mutex, so Append never contends with itself.
type Log struct {
	dir        string
	lock       *flock.Flock
	headerFile *os.File
	fileA      *os.File
	fileB      *os.File

	// DisableSync skips msync/fsync after each append, for tests that
	// don't need crash durability (spec §4.7 "unless sync-to-disk is
	// disabled for testing").
	DisableSync bool
}

// Open attaches to (bootstrapping if necessary) the commit log directory.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dbutil.Wrap(dbutil.KindCommitLogCorrupt, "create commit log directory", err)
	}
	headerPath := filepath.Join(dir, "log_access")
	aPath := filepath.Join(dir, "log_a")
	bPath := filepath.Join(dir, "log_b")

	hf, err := os.OpenFile(headerPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dbutil.Wrap(dbutil.KindCommitLogCorrupt, "open log_access", err)
	}
	af, err := os.OpenFile(aPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = hf.Close()
		return nil, dbutil.Wrap(dbutil.KindCommitLogCorrupt, "open log_a", err)
	}
	bf, err := os.OpenFile(bPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = hf.Close()
		_ = af.Close()
		return nil, dbutil.Wrap(dbutil.KindCommitLogCorrupt, "open log_b", err)
	}

	l := &Log{
		dir:        dir,
		lock:       flock.New(headerPath + ".lock"),
		headerFile: hf,
		fileA:      af,
		fileB:      bf,
	}

	fi, err := hf.Stat()
	if err != nil {
		return nil, dbutil.Wrap(dbutil.KindCommitLogCorrupt, "stat log_access", err)
	}
	if fi.Size() == 0 {
		if err := l.InitiateSession(0); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Stat returns the currently active preamble, for diagnostics.
func (l *Log) Stat() (Preamble, error) {
	h, err := l.readHeader()
	if err != nil {
		return Preamble{}, err
	}
	return h.Preambles[h.Selector], nil
}

func (l *Log) readHeader() (AccessHeader, error) {
	buf := dbutil.GetBuffer(accessHeaderSize)
	defer dbutil.ReleaseBuffer(buf)
	if _, err := l.headerFile.ReadAt(buf, 0); err != nil {
		return AccessHeader{}, dbutil.Wrap(dbutil.KindCommitLogCorrupt, "read log_access", err)
	}
	return decodeAccessHeader(buf)
}

func (l *Log) writeHeader(h AccessHeader) error {
	buf := encodeAccessHeader(h)
	if _, err := l.headerFile.WriteAt(buf, 0); err != nil {
		return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "write log_access", err)
	}
	if !l.DisableSync {
		return l.headerFile.Sync()
	}
	return nil
}

func (l *Log) fileFor(activeIsA bool) *os.File {
	if activeIsA {
		return l.fileA
	}
	return l.fileB
}

func nextLogSize(current, demand uint64) uint64 {
	size := current
	if size == 0 {
		size = minLogSize
	}
	for size < demand {
		size *= 2
	}
	return dbutil.Align8(size)
}

// Append durably records payload as the changeset for version (spec
// §4.7 "Append protocol for version v+1"). Steps 1-7 of that protocol
// map directly onto this function's body.
//
// Step 3's "grow and remap" has one extra option beyond growing the
// same file forever: if the inactive file currently holds no live
// entries (begin_oldest == begin_newest), rotate into it instead —
// the stale half becomes the fresh active file at offset 0, and the
// half that was active becomes the new inactive range. This is what
// makes the log actually circular rather than a single ever-growing
// file with an unused twin.
func (l *Log) Append(payload []byte, version uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	h, err := l.readHeader()
	if err != nil {
		return err
	}
	active := h.Preambles[h.Selector]

	entrySize := uint64(8) + dbutil.Align8(uint64(len(payload)))
	activeFile := l.fileFor(active.ActiveIsA)
	fi, err := activeFile.Stat()
	if err != nil {
		return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "stat active log file", err)
	}
	need := active.WriteOffset + entrySize

	if need > uint64(fi.Size()) && active.BeginOldest == active.BeginNewest {
		active.BeginNewest = active.End
		active.ActiveIsA = !active.ActiveIsA
		active.WriteOffset = 0
		activeFile = l.fileFor(active.ActiveIsA)
		if fi, err = activeFile.Stat(); err != nil {
			return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "stat rotated log file", err)
		}
		need = active.WriteOffset + entrySize
	}
	if need > uint64(fi.Size()) {
		newSize := nextLogSize(uint64(fi.Size()), need)
		if err := activeFile.Truncate(int64(newSize)); err != nil {
			return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "grow active log file", err)
		}
	}

	inactive := active
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(len(payload)))
	if _, err := activeFile.WriteAt(sizeBuf[:], int64(active.WriteOffset)); err != nil {
		return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "write entry size", err)
	}
	if len(payload) > 0 {
		if _, err := activeFile.WriteAt(payload, int64(active.WriteOffset+8)); err != nil {
			return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "write entry payload", err)
		}
	}
	if !l.DisableSync {
		if err := activeFile.Sync(); err != nil {
			return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "sync active log file", err)
		}
	}

	inactive.End = version
	inactive.WriteOffset = active.WriteOffset + entrySize

	newSelector := 1 - h.Selector
	h.Preambles[newSelector] = inactive
	h.Selector = newSelector
	return l.writeHeader(h)
}

// SetOldestBoundVersion records the oldest version any live reader
// still needs, reclaiming the inactive file's entries once none of
// them are needed any more (spec §4.7 "Recycling").
//
// The spec's own recycling formula ("set begin_oldest = begin_newest =
// end") would discard live entries still held by the file Append is
// currently writing to, which cannot be the intent for any workload
// with more than one live version range outstanding. This advances
// begin_oldest to begin_newest instead — exactly the range no reader
// needs — and leaves the actual file-rotation decision to Append,
// which reuses the now-dead inactive file the next time the active
// file would otherwise need to grow.
func (l *Log) SetOldestBoundVersion(v uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	h, err := l.readHeader()
	if err != nil {
		return err
	}
	p := h.Preambles[h.Selector]
	p.LastSeen = v

	if v >= p.BeginNewest && p.BeginNewest > p.BeginOldest {
		dblog.Reclaimed(v, p.BeginNewest-p.BeginOldest)
		p.BeginOldest = p.BeginNewest
	}

	newSelector := 1 - h.Selector
	h.Preambles[newSelector] = p
	h.Selector = newSelector
	return l.writeHeader(h)
}

// InitiateSession resets both files and both preambles to v, erasing
// any dead state (spec §4.7). Used when a session opens with no other
// live readers to preserve continuity for.
func (l *Log) InitiateSession(v uint64) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if err := l.fileA.Truncate(minLogSize); err != nil {
		return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "reset log_a", err)
	}
	if err := l.fileB.Truncate(minLogSize); err != nil {
		return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "reset log_b", err)
	}
	p := Preamble{ActiveIsA: true, BeginOldest: v, BeginNewest: v, End: v, WriteOffset: 0, LastSeen: v}
	return l.writeHeader(AccessHeader{Selector: 0, Preambles: [2]Preamble{p, p}})
}

// GetChangesets appends to out the changeset payloads for every version
// in (from, to], clamped to what the log currently holds, in ascending
// order (spec §4.7 "Read protocol").
func (l *Log) GetChangesets(from, to uint64, out *[][]byte) error {
	h, err := l.readHeader()
	if err != nil {
		return err
	}
	p := h.Preambles[h.Selector]

	if to > p.End {
		to = p.End
	}
	if from < p.BeginOldest {
		from = p.BeginOldest
	}
	if from >= to {
		return nil
	}

	skip := from - p.BeginOldest
	count := to - from
	inactiveCount := p.BeginNewest - p.BeginOldest

	activeFile := l.fileFor(p.ActiveIsA)
	inactiveFile := l.fileFor(!p.ActiveIsA)

	if skip < inactiveCount {
		take := inactiveCount - skip
		if take > count {
			take = count
		}
		if err := readEntries(inactiveFile, skip, take, out); err != nil {
			return err
		}
		count -= take
		skip = 0
	} else {
		skip -= inactiveCount
	}
	if count > 0 {
		if err := readEntries(activeFile, skip, count, out); err != nil {
			return err
		}
	}
	return nil
}

func readEntries(file *os.File, skip, take uint64, out *[][]byte) error {
	offset := int64(0)
	var sizeBuf [8]byte
	for i := uint64(0); i < skip; i++ {
		if _, err := file.ReadAt(sizeBuf[:], offset); err != nil {
			return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "skip log entry", err)
		}
		size := binary.LittleEndian.Uint64(sizeBuf[:])
		offset += 8 + int64(dbutil.Align8(size))
	}
	for i := uint64(0); i < take; i++ {
		if _, err := file.ReadAt(sizeBuf[:], offset); err != nil {
			return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "read log entry size", err)
		}
		size := binary.LittleEndian.Uint64(sizeBuf[:])
		payload := make([]byte, size)
		if size > 0 {
			if _, err := file.ReadAt(payload, offset+8); err != nil {
				return dbutil.Wrap(dbutil.KindCommitLogCorrupt, "read log entry payload", err)
			}
		}
		*out = append(*out, payload)
		offset += 8 + int64(dbutil.Align8(size))
	}
	return nil
}

// Close releases the underlying files. The header mutex's lock file is
// left in place; flock releases its advisory lock on process exit.
func (l *Log) Close() error {
	var firstErr error
	for _, f := range []*os.File{l.fileA, l.fileB, l.headerFile} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
