// Package arena implements the memory-mapped block allocator (spec §4.1,
// component C1) and its optional encrypted mapping layer (§4.2, C2).
//
// An Arena hands out 8-byte-aligned offsets ("refs") into a growable,
// memory-mapped file. Allocation and translation are cheap and lock-light;
// the free list that makes space reclaimable across transactions lives in
// freelist.go.
package arena

import (
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/gocoredb/coredb/internal/dblog"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// Ref is an 8-byte-aligned, non-negative offset into the arena. Zero
// means "absent".
type Ref uint64

// minGrowth is the smallest amount an empty file is grown to on first use.
const minGrowth = 64 * 1024

// growthCap is the point past which the doubling growth policy switches
// to fixed-size increments (spec §4.1 "Growth policy").
const growthCap = 1 << 30 // 1 GiB

// minSlab is the minimum remainder size worth splitting off a free block.
const minSlab = 16

// Arena owns the memory mapping and the raw alloc/free/translate contract.
// It does not know about transactions, versions beyond free-list tags, or
// node encodings; those live in higher components.
type Arena struct {
	mu      sync.RWMutex
	file    *os.File
	mapping mmap.MMap
	codec   *pageCodec // nil unless the file was opened with an encryption key

	header *Header
	free   *freeList

	// oldestLive is the oldest version any live reader may still need;
	// Alloc only reuses free blocks tagged at or before this version.
	oldestLive uint64

	// trackAlloc, when non-nil, is invoked for every block Alloc hands
	// out. The session package installs it for the duration of a write
	// transaction so Rollback can free everything that transaction
	// allocated; only one writer is ever active, so a single field
	// suffices (spec §4.6 "rollback frees the per-transaction list").
	trackAlloc func(ref Ref, size uint64)
}

// SetAllocTracker installs (or, with nil, clears) the current writer's
// allocation sink.
func (a *Arena) SetAllocTracker(f func(ref Ref, size uint64)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trackAlloc = f
}

// Open attaches to (creating if necessary) the data file at path. If key
// is non-nil it must be 64 bytes and every page is transparently
// encrypted (spec §4.2).
func Open(path string, key []byte) (*Arena, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dbutil.Wrap(dbutil.KindInvalidFileFormat, "open data file", err)
	}

	a := &Arena{file: f}

	var codec *pageCodec
	if key != nil {
		codec, err = newPageCodec(f, key)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	a.codec = codec

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, dbutil.Wrap(dbutil.KindInvalidFileFormat, "stat data file", err)
	}

	if fi.Size() == 0 {
		if err := a.bootstrap(); err != nil {
			_ = f.Close()
			return nil, err
		}
	} else {
		if err := a.attach(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return a, nil
}

// bootstrap initializes a brand-new, empty data file: grows it to the
// minimum size, maps it, and writes an all-zero header with both top refs
// null (an empty database has no root object yet).
func (a *Arena) bootstrap() error {
	if err := a.growFileTo(minGrowth); err != nil {
		return err
	}
	if err := a.remap(); err != nil {
		return err
	}
	a.header = &Header{Magic: Magic, Version: FormatVersion, FileSize: uint64(len(a.mapping))}
	if err := a.writeHeaderLocked(); err != nil {
		return err
	}
	a.free = newFreeList()
	return nil
}

// attach maps an existing file and validates/loads its header.
func (a *Arena) attach() error {
	if err := a.remap(); err != nil {
		return err
	}
	var headerBuf []byte
	if a.codec != nil {
		view, err := a.codec.page(0, headerSize)
		if err != nil {
			return err
		}
		headerBuf = view
	} else {
		headerBuf = a.mapping[:headerSize]
	}
	h, err := DecodeHeader(headerBuf)
	if err != nil {
		return err
	}
	a.header = h
	a.free = newFreeList()
	if h.FreeListRef != 0 {
		if err := a.free.loadFrom(a, Ref(h.FreeListRef)); err != nil {
			return err
		}
	}
	return nil
}

// remap (re)establishes the mmap over the current file size, bumping the
// generation counter so translate()-caching consumers know to refresh
// cached base pointers (spec §5 "mmap counter").
func (a *Arena) remap() error {
	if a.mapping != nil {
		if err := a.mapping.Unmap(); err != nil {
			return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "unmap before remap", err)
		}
	}
	m, err := mmap.Map(a.file, mmap.RDWR, 0)
	if err != nil {
		return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "mmap", err)
	}
	a.mapping = m
	if a.header != nil {
		a.header.Generation++
	}
	return nil
}

func (a *Arena) growFileTo(size uint64) error {
	if err := a.file.Truncate(int64(size)); err != nil {
		return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "truncate data file", err)
	}
	return nil
}

// nextFileSize applies the doubling-then-cap growth policy of spec §4.1.
func nextFileSize(current, demand uint64) uint64 {
	size := current
	if size == 0 {
		size = minGrowth
	}
	for size < demand {
		if size < growthCap {
			size *= 2
		} else {
			size += growthCap
		}
	}
	return dbutil.Align8(size)
}

// Translate returns the host byte slice backing ref, or an error if ref
// is null or the mapping is not attached. It is a pure function of the
// current mapping (spec §4.1). It takes the arena's read lock, so it
// waits while Alloc, Free or WriteHeader hold the write lock; with a
// codec attached, a range spanning several pages comes back in a
// freshly allocated buffer.
func (a *Arena) Translate(ref Ref, size uint64) ([]byte, error) {
	if ref == 0 {
		return nil, dbutil.New(dbutil.KindLogicError, "translate of null ref")
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.mapping == nil {
		return nil, dbutil.New(dbutil.KindLogicError, "arena not attached")
	}
	end := uint64(ref) + size
	if end > uint64(len(a.mapping)) {
		panic("arena: translate of ref beyond mapped region")
	}
	if a.codec != nil {
		return a.codec.page(uint64(ref), size)
	}
	return a.mapping[ref : ref+Ref(size)], nil
}

// Alloc rounds bytes up to an 8-byte multiple and returns a fresh,
// zeroed block. It first searches the global free list for the smallest
// block >= n tagged at or before oldestLive (spec §4.1 "search the global
// free list"); on failure it grows the file and carves from the tail.
func (a *Arena) Alloc(bytes uint64) (Ref, error) {
	n := dbutil.Align8(bytes)
	if n < minSlab {
		n = minSlab
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// zero clears the block's plaintext; with a codec attached a.mapping
	// holds ciphertext, so the clear goes through the codec's view.
	zero := func(ref Ref) error {
		buf := []byte(a.mapping[ref : uint64(ref)+n])
		if a.codec != nil {
			view, err := a.codec.page(uint64(ref), n)
			if err != nil {
				return err
			}
			buf = view
		}
		clear(buf)
		return nil
	}

	if ref, ok := a.free.takeBestFit(n, a.oldestLive); ok {
		if err := zero(ref); err != nil {
			return 0, err
		}
		if a.trackAlloc != nil {
			a.trackAlloc(ref, n)
		}
		return ref, nil
	}

	end := uint64(len(a.mapping))
	want := end + n
	newSize := nextFileSize(end, want)
	if newSize > end {
		if err := a.growFileTo(newSize); err != nil {
			return 0, err
		}
		if err := a.remap(); err != nil {
			return 0, err
		}
		dblog.Grow(a.file.Name(), end, newSize)
	}

	ref := Ref(end)
	if err := zero(ref); err != nil {
		return 0, err
	}
	a.header.FileSize = uint64(len(a.mapping))
	if a.trackAlloc != nil {
		a.trackAlloc(ref, n)
	}
	return ref, nil
}

// Free records the block on the current writer's per-transaction free
// list, tagged with the in-progress version. It becomes available to
// Alloc only after ReclaimUpTo admits that version.
func (a *Arena) Free(ref Ref, bytes uint64, version uint64) {
	n := dbutil.Align8(bytes)
	if n < minSlab {
		n = minSlab
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.add(ref, n, version)
}

// ReclaimUpTo moves every block tagged with a version <= v onto the set
// available for future Alloc calls and records the admitted version so
// later Alloc calls can use it directly (spec §4.1).
func (a *Arena) ReclaimUpTo(v uint64) {
	a.mu.Lock()
	a.oldestLive = v
	a.mu.Unlock()

	touched := a.free.DrainTouchedPages()
	dblog.Reclaimed(v, touched.GetCardinality())
}

// WriteHeader persists the current header (selector flip, new top ref,
// free-list ref) and, unless sync is disabled, msyncs the mapping.
func (a *Arena) WriteHeader(sync bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writeHeaderLocked(); err != nil {
		return err
	}
	if sync {
		return a.flushLocked()
	}
	return nil
}

// writeHeaderLocked encodes the header into the first page. When a codec
// is attached the header page is plaintext-in-cache only until flush
// re-encrypts it like any other dirty page; it must never be written
// straight into a.mapping; that backing storage holds ciphertext (spec
// §4.2).
func (a *Arena) writeHeaderLocked() error {
	buf := a.header.Encode()
	if a.codec != nil {
		view, err := a.codec.page(0, headerSize)
		if err != nil {
			return err
		}
		copy(view, buf)
		return nil
	}
	copy(a.mapping[:headerSize], buf)
	return nil
}

func (a *Arena) flushLocked() error {
	if a.codec != nil {
		if err := a.codec.flush(); err != nil {
			return err
		}
		if err := a.file.Sync(); err != nil {
			return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "fsync", err)
		}
		return nil
	}
	if err := a.mapping.Flush(); err != nil {
		return dbutil.Wrap(dbutil.KindArenaGrowthFailed, "msync", err)
	}
	return nil
}

// Header returns the in-memory header. Callers must hold the writer
// mutex (session package) before mutating it.
func (a *Arena) Header() *Header { return a.header }

// FreeList exposes the free list for persistence by the session/commit
// path (the global list survives restart inside the group ref, per spec).
func (a *Arena) FreeList() *freeList { return a.free }

// Close flushes any outstanding codec pages, then unmaps and closes the
// underlying file.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.codec != nil {
		if err := a.codec.flush(); err != nil {
			return err
		}
	}
	var err error
	if a.mapping != nil {
		err = a.mapping.Unmap()
		a.mapping = nil
	}
	if cerr := a.file.Close(); err == nil {
		err = cerr
	}
	return err
}
