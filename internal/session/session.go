// Package session coordinates one process's access to an arena and its
// commit log: snapshot isolation for readers, a single writer at a
// time, and the handoff between a commit's selector flip and the
// commit log append (spec §4.6, component C6).
package session

import (
	"sync"

	"github.com/gofrs/flock"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/commitlog"
	"github.com/gocoredb/coredb/internal/dblog"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// Session is the per-process coordinator wrapping one arena/commit-log
// pair. It is safe for concurrent use by multiple goroutines.
type Session struct {
	arena    *arena.Arena
	log      *commitlog.Log
	readers  *readerRegistry
	writerMu *flock.Flock
	localMu  sync.Mutex

	// DisableSync skips msync on the arena header at commit time (the
	// `disable_sync_to_disk` test-only knob, spec §6).
	DisableSync bool
}

// Open wires an already-opened arena and commit log into a Session.
// lockPath names the file backing the interprocess writer mutex; it
// should live alongside the arena's data file, not inside it, so a
// crashed writer's lock is released by the OS on process exit.
func Open(a *arena.Arena, log *commitlog.Log, lockPath string) *Session {
	return &Session{
		arena:    a,
		log:      log,
		readers:  newReaderRegistry(),
		writerMu: flock.New(lockPath),
	}
}

// ReadTxn is a snapshot pinned to the top ref observed at BeginRead.
type ReadTxn struct {
	s       *Session
	Version uint64
	Root    arena.Ref
}

// BeginRead pins the current top ref/version and registers the reader
// so a concurrent commit's reclamation step leaves it alone (spec
// §4.6 "begin_read").
func (s *Session) BeginRead() *ReadTxn {
	s.localMu.Lock()
	root, version := s.arena.Header().ActiveTopRef()
	s.localMu.Unlock()

	s.readers.begin(version)
	return &ReadTxn{s: s, Version: version, Root: root}
}

// End releases the snapshot. If it was the last reader pinning the
// oldest live version, arena blocks and commit-log entries older than
// the new oldest live version become reclaimable (spec §4.6 "end_read").
func (t *ReadTxn) End() {
	oldest, anyLive := t.s.readers.end(t.Version)
	if !anyLive {
		t.s.localMu.Lock()
		_, oldest = t.s.arena.Header().ActiveTopRef()
		t.s.localMu.Unlock()
	}
	t.s.arena.ReclaimUpTo(oldest)
	if err := t.s.log.SetOldestBoundVersion(oldest); err != nil {
		dblog.Recovered("commit_log_bound_update", err.Error())
	}
}

// WriteTxn is the single in-flight write transaction. It holds the
// writer mutex from BeginWrite until Commit or Rollback releases it.
type WriteTxn struct {
	s          *Session
	baseRoot   arena.Ref
	baseVer    uint64
	newRoot    arena.Ref
	newRootSet bool

	allocated []allocation
}

type allocation struct {
	ref  arena.Ref
	size uint64
}

// BeginWrite acquires the single writer slot — the in-process mutex
// first, then the interprocess flock, so two goroutines in this
// process contend cheaply before ever touching the filesystem — and
// snapshots the current top ref as the transaction's starting point
// (spec §4.6 "begin_write").
func (s *Session) BeginWrite() (*WriteTxn, error) {
	s.localMu.Lock()
	if err := s.writerMu.Lock(); err != nil {
		s.localMu.Unlock()
		return nil, dbutil.Wrap(dbutil.KindLogicError, "acquire writer lock", err)
	}
	root, version := s.arena.Header().ActiveTopRef()
	s.localMu.Unlock()

	w := &WriteTxn{s: s, baseRoot: root, baseVer: version}
	s.arena.SetAllocTracker(func(ref arena.Ref, size uint64) {
		w.allocated = append(w.allocated, allocation{ref: ref, size: size})
	})
	return w, nil
}

// BaseRoot and BaseVersion expose the snapshot this write started
// from, so the caller can build its new tree as a copy-on-write delta.
func (w *WriteTxn) BaseRoot() arena.Ref { return w.baseRoot }
func (w *WriteTxn) BaseVersion() uint64 { return w.baseVer }

// SetRoot records the new top ref to publish on Commit. The caller
// must have already written everything reachable from ref.
func (w *WriteTxn) SetRoot(ref arena.Ref) {
	w.newRoot = ref
	w.newRootSet = true
}

// Commit persists the free list, flushes the arena, appends changeset
// to the commit log, and finally flips the selector to publish the new
// root — the linearisation point of spec §4.6 "commit". Releases the
// writer slot before returning, on every path.
func (w *WriteTxn) Commit(changeset []byte) (uint64, error) {
	defer w.s.writerMu.Unlock()
	defer w.s.arena.SetAllocTracker(nil)

	if !w.newRootSet {
		return w.baseVer, nil
	}

	version := w.baseVer + 1
	h := w.s.arena.Header()

	freeRef, err := w.s.arena.FreeList().Persist(w.s.arena)
	if err != nil {
		return 0, err
	}
	h.FreeListRef = uint64(freeRef)
	if err := w.s.arena.WriteHeader(!w.s.DisableSync); err != nil {
		return 0, err
	}

	if err := w.s.log.Append(changeset, version); err != nil {
		return 0, err
	}

	h.Publish(w.newRoot, version)
	if err := w.s.arena.WriteHeader(!w.s.DisableSync); err != nil {
		return 0, err
	}

	dblog.Committed(version)
	return version, nil
}

// Rollback releases the writer slot without publishing anything,
// freeing every block the transaction allocated along the way (spec
// §4.6 "rollback frees the per-transaction list"). Freed with tag 0 so
// they are immediately eligible for reuse: nothing published ever
// referenced them, so no live reader's snapshot depends on their
// current contents.
func (w *WriteTxn) Rollback() {
	defer w.s.writerMu.Unlock()
	w.s.arena.SetAllocTracker(nil)
	for _, a := range w.allocated {
		w.s.arena.Free(a.ref, a.size, 0)
	}
}
