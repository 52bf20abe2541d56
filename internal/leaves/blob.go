package leaves

import (
	"encoding/binary"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// maxInlineBlob is MAX_NODE_SIZE (spec §4.5 "Blob"): above this a blob
// becomes a bucketed leaf of refs to further blob leaves.
const maxInlineBlob = 4096

const (
	blobTagInline  = 0
	blobTagBucket  = 1
	inlineHdrSize  = 1 + 8          // tag + length
	bucketHdrSize  = 1 + 8 + 4      // tag + total length + child count
	bucketRefsBase = bucketHdrSize // child refs start here
)

// WriteBlob stores data as a fresh blob tree, choosing the inline or
// bucketed representation by size (spec §4.5: "write-side supports
// append-only splitting").
func WriteBlob(a *arena.Arena, data []byte) (arena.Ref, error) {
	if len(data) <= maxInlineBlob {
		return writeInlineBlob(a, data)
	}

	var children []arena.Ref
	for off := 0; off < len(data); off += maxInlineBlob {
		end := off + maxInlineBlob
		if end > len(data) {
			end = len(data)
		}
		child, err := writeInlineBlob(a, data[off:end])
		if err != nil {
			return 0, err
		}
		children = append(children, child)
	}

	buf := make([]byte, bucketHdrSize+8*len(children))
	buf[0] = blobTagBucket
	binary.LittleEndian.PutUint64(buf[1:9], uint64(len(data)))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(children)))
	for i, c := range children {
		binary.LittleEndian.PutUint64(buf[bucketRefsBase+8*i:], uint64(c))
	}

	ref, err := a.Alloc(uint64(len(buf)))
	if err != nil {
		return 0, err
	}
	dst, err := a.Translate(ref, uint64(len(buf)))
	if err != nil {
		return 0, err
	}
	copy(dst, buf)
	return ref, nil
}

func writeInlineBlob(a *arena.Arena, data []byte) (arena.Ref, error) {
	total := uint64(inlineHdrSize + len(data))
	ref, err := a.Alloc(total)
	if err != nil {
		return 0, err
	}
	buf, err := a.Translate(ref, total)
	if err != nil {
		return 0, err
	}
	buf[0] = blobTagInline
	binary.LittleEndian.PutUint64(buf[1:9], uint64(len(data)))
	copy(buf[inlineHdrSize:], data)
	return ref, nil
}

// BlobLen returns the logical byte length of the blob rooted at ref.
func BlobLen(a *arena.Arena, ref arena.Ref) (uint64, error) {
	if ref == 0 {
		return 0, nil
	}
	tagBuf, err := a.Translate(ref, 9)
	if err != nil {
		return 0, err
	}
	switch tagBuf[0] {
	case blobTagInline:
		return binary.LittleEndian.Uint64(tagBuf[1:9]), nil
	case blobTagBucket:
		hdr, err := a.Translate(ref, bucketHdrSize)
		if err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(hdr[1:9]), nil
	default:
		return 0, dbutil.New(dbutil.KindInvalidFileFormat, "unknown blob tag")
	}
}

// ReadBlobAt implements the spec's read(pos, buf, n): it fills buf (up
// to len(buf) bytes) starting at logical offset pos and returns the
// number of bytes copied.
func ReadBlobAt(a *arena.Arena, ref arena.Ref, pos uint64, buf []byte) (int, error) {
	if ref == 0 || len(buf) == 0 {
		return 0, nil
	}
	tagBuf, err := a.Translate(ref, 9)
	if err != nil {
		return 0, err
	}
	switch tagBuf[0] {
	case blobTagInline:
		length := binary.LittleEndian.Uint64(tagBuf[1:9])
		if pos >= length {
			return 0, nil
		}
		full, err := a.Translate(arena.Ref(uint64(ref)+inlineHdrSize), length)
		if err != nil {
			return 0, err
		}
		n := copy(buf, full[pos:])
		return n, nil
	case blobTagBucket:
		return readBucketAt(a, ref, pos, buf)
	default:
		return 0, dbutil.New(dbutil.KindInvalidFileFormat, "unknown blob tag")
	}
}

func readBucketAt(a *arena.Arena, ref arena.Ref, pos uint64, buf []byte) (int, error) {
	hdr, err := a.Translate(ref, bucketHdrSize)
	if err != nil {
		return 0, err
	}
	total := binary.LittleEndian.Uint64(hdr[1:9])
	count := binary.LittleEndian.Uint32(hdr[9:13])
	if pos >= total {
		return 0, nil
	}

	refsBuf, err := a.Translate(arena.Ref(uint64(ref)+bucketRefsBase), uint64(count)*8)
	if err != nil {
		return 0, err
	}

	childIdx := int(pos / maxInlineBlob)
	childOffset := pos % maxInlineBlob
	written := 0
	for childIdx < int(count) && written < len(buf) {
		child := arena.Ref(binary.LittleEndian.Uint64(refsBuf[childIdx*8:]))
		n, err := ReadBlobAt(a, child, childOffset, buf[written:])
		if err != nil {
			return written, err
		}
		if n == 0 {
			break
		}
		written += n
		childOffset = 0
		childIdx++
	}
	return written, nil
}

// ReadBlob reads the entire blob rooted at ref.
func ReadBlob(a *arena.Arena, ref arena.Ref) ([]byte, error) {
	length, err := BlobLen(a, ref)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	if _, err := ReadBlobAt(a, ref, 0, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FreeBlob releases every block in the blob tree rooted at ref, tagged
// with version.
func FreeBlob(a *arena.Arena, ref arena.Ref, version uint64) error {
	if ref == 0 {
		return nil
	}
	tagBuf, err := a.Translate(ref, 9)
	if err != nil {
		return err
	}
	switch tagBuf[0] {
	case blobTagInline:
		length := binary.LittleEndian.Uint64(tagBuf[1:9])
		a.Free(ref, inlineHdrSize+length, version)
		return nil
	case blobTagBucket:
		hdr, err := a.Translate(ref, bucketHdrSize)
		if err != nil {
			return err
		}
		count := binary.LittleEndian.Uint32(hdr[9:13])
		refsBuf, err := a.Translate(arena.Ref(uint64(ref)+bucketRefsBase), uint64(count)*8)
		if err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			child := arena.Ref(binary.LittleEndian.Uint64(refsBuf[i*8:]))
			if err := FreeBlob(a, child, version); err != nil {
				return err
			}
		}
		a.Free(ref, uint64(bucketHdrSize)+uint64(count)*8, version)
		return nil
	default:
		return dbutil.New(dbutil.KindInvalidFileFormat, "unknown blob tag")
	}
}

// BlobColumn is a column of blob refs: each row holds the root of its
// own blob tree (spec §4.5 "Blob").
type BlobColumn struct {
	Root arena.Ref
}

func (c *BlobColumn) Len(a *arena.Arena) (uint64, error) { return bptree.Size(a, c.Root) }

func (c *BlobColumn) Get(a *arena.Arena, i uint64) ([]byte, error) {
	ref, err := bptree.Get(a, c.Root, i)
	if err != nil {
		return nil, err
	}
	return ReadBlob(a, arena.Ref(ref))
}

func (c *BlobColumn) ReadAt(a *arena.Arena, i uint64, pos uint64, buf []byte) (int, error) {
	ref, err := bptree.Get(a, c.Root, i)
	if err != nil {
		return 0, err
	}
	return ReadBlobAt(a, arena.Ref(ref), pos, buf)
}

func (c *BlobColumn) Set(a *arena.Arena, i uint64, data []byte, version uint64) error {
	oldRef, err := bptree.Get(a, c.Root, i)
	if err != nil {
		return err
	}
	newRef, err := WriteBlob(a, data)
	if err != nil {
		return err
	}
	root, err := bptree.Set(a, c.Root, i, int64(newRef), version)
	if err != nil {
		return err
	}
	c.Root = root
	return FreeBlob(a, arena.Ref(oldRef), version)
}

func (c *BlobColumn) Insert(a *arena.Arena, i uint64, data []byte, version uint64) error {
	ref, err := WriteBlob(a, data)
	if err != nil {
		return err
	}
	root, err := bptree.Insert(a, c.Root, i, int64(ref), version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}

func (c *BlobColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	oldRef, err := bptree.Get(a, c.Root, i)
	if err != nil {
		return err
	}
	root, err := bptree.Erase(a, c.Root, i, version)
	if err != nil {
		return err
	}
	c.Root = root
	return FreeBlob(a, arena.Ref(oldRef), version)
}
