package arena

import (
	"encoding/binary"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"

	"github.com/gocoredb/coredb/internal/dbutil"
)

// freePageSize is the granularity at which touchedPages tracks free-list
// activity; it need not match the OS page size, only be small enough to
// make the bitmap a useful approximation of "what changed recently".
const freePageSize = 4096

// freeBlock is one entry of the free list: a block of `Size` bytes at
// `Ref`, freed during the transaction that produced version `Tag`.
type freeBlock struct {
	Ref  Ref
	Size uint64
	Tag  uint64
}

func lessBySizeThenRef(a, b freeBlock) bool {
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.Ref < b.Ref
}

// freeList is the in-memory index over the arena's free blocks. It is
// rebuilt from the persisted global free list at attach time (see
// loadFrom) and is never itself the source of truth; the persisted block
// chain is (see Persist).
//
// The google/btree index gives Alloc an O(log n) best-fit search instead
// of the teacher's linear scan over all allocated blocks
// (internal/writer/allocator.go's IsAllocated); the roaring bitmap tracks
// which pages have seen frees since the last drain, so ReclaimUpTo can
// log how many pages that is without rescanning the whole free list.
// Nothing is handed to the OS page cache.
type freeList struct {
	mu           sync.Mutex
	bySize       *btree.BTreeG[freeBlock]
	touchedPages *roaring.Bitmap
}

func newFreeList() *freeList {
	return &freeList{
		bySize:       btree.NewG(32, lessBySizeThenRef),
		touchedPages: roaring.New(),
	}
}

// add records a freed block, available once ReclaimUpTo admits Tag.
func (fl *freeList) add(ref Ref, size uint64, tag uint64) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.bySize.ReplaceOrInsert(freeBlock{Ref: ref, Size: size, Tag: tag})
	fl.touchedPages.Add(uint32(uint64(ref) / freePageSize))
}

// takeBestFit removes and returns the smallest block >= n whose tag is
// <= oldestLive, splitting off the remainder when it is >= minSlab (spec
// §4.1). Returns ok=false if no admissible block exists.
func (fl *freeList) takeBestFit(n uint64, oldestLive uint64) (Ref, bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	var found freeBlock
	var ok bool
	fl.bySize.AscendGreaterOrEqual(freeBlock{Size: n}, func(item freeBlock) bool {
		if item.Tag > oldestLive {
			return true // keep scanning; this one isn't reclaimable yet
		}
		found, ok = item, true
		return false
	})
	if !ok {
		return 0, false
	}

	fl.bySize.Delete(found)

	remainder := found.Size - n
	if remainder >= minSlab {
		fl.bySize.ReplaceOrInsert(freeBlock{
			Ref:  found.Ref + Ref(n),
			Size: remainder,
			Tag:  found.Tag,
		})
	}
	return found.Ref, true
}

// Len reports the number of distinct free blocks currently tracked.
func (fl *freeList) Len() int {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.bySize.Len()
}

// DrainTouchedPages returns the set of page indices touched by frees
// since the last drain, and resets the tracker. ReclaimUpTo uses this to
// log how many pages saw frees, whatever their tags, without rescanning
// the whole free list.
func (fl *freeList) DrainTouchedPages() *roaring.Bitmap {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	drained := fl.touchedPages
	fl.touchedPages = roaring.New()
	return drained
}

// entrySize is the on-disk encoding size of one free-block record.
const entrySize = 24

// Persist writes the free list as a record count followed by a flat
// array of (ref, size, tag) records into freshly allocated arena space
// and returns its ref, so it can be stored in the file header's
// FreeListRef field (spec §4.1 "persisted in the top group ref").
func (fl *freeList) Persist(a *Arena) (Ref, error) {
	fl.mu.Lock()
	blocks := make([]freeBlock, 0, fl.bySize.Len())
	fl.bySize.Ascend(func(item freeBlock) bool {
		blocks = append(blocks, item)
		return true
	})
	fl.mu.Unlock()

	count := uint64(len(blocks))
	if count == 0 {
		return 0, nil
	}

	total := 8 + count*entrySize
	ref, err := a.Alloc(total)
	if err != nil {
		return 0, err
	}
	buf, err := a.Translate(ref, total)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(buf[0:8], count)
	for i, b := range blocks {
		off := 8 + i*entrySize
		binary.LittleEndian.PutUint64(buf[off:], uint64(b.Ref))
		binary.LittleEndian.PutUint64(buf[off+8:], b.Size)
		binary.LittleEndian.PutUint64(buf[off+16:], b.Tag)
	}
	return ref, nil
}

// loadFrom rebuilds the in-memory index from a free list previously
// written by Persist.
func (fl *freeList) loadFrom(a *Arena, ref Ref) error {
	if ref == 0 {
		return nil
	}
	head, err := a.Translate(ref, 8)
	if err != nil {
		return dbutil.Wrap(dbutil.KindInvalidFileFormat, "free list header", err)
	}
	count := binary.LittleEndian.Uint64(head)

	buf, err := a.Translate(ref+8, count*entrySize)
	if err != nil {
		return dbutil.Wrap(dbutil.KindInvalidFileFormat, "free list body", err)
	}
	for i := uint64(0); i < count; i++ {
		off := i * entrySize
		r := binary.LittleEndian.Uint64(buf[off:])
		size := binary.LittleEndian.Uint64(buf[off+8:])
		tag := binary.LittleEndian.Uint64(buf[off+16:])
		fl.add(Ref(r), size, tag)
	}
	return nil
}
