package arena

import (
	"encoding/binary"

	"github.com/gocoredb/coredb/internal/dbutil"
)

// Magic identifies a data file belonging to this engine.
const Magic = uint64(0xC0DE0B1EC7A5E5F5)

// headerSize is the fixed size, in bytes, of the file header block. It is
// page-aligned so the encrypted mapping (C2) can treat it as whole pages.
const headerSize = 4096

// FormatVersion is bumped whenever the on-disk layout changes incompatibly.
const FormatVersion = 1

// Header is the file-level header block: "header is itself a block whose
// payload is a small ref array including the current top ref" (spec §6).
// Two top-ref slots plus a selector bit let commit (§4.6) publish a new
// root with a single atomic write (the selector flip).
type Header struct {
	Magic       uint64
	Version     uint32
	Selector    uint32 // 0 selects TopRef[0], 1 selects TopRef[1]
	TopRef      [2]uint64
	TopVersion  [2]uint64 // version each top ref slot was published at
	FreeListRef uint64    // ref of the persisted global free list, or 0
	Generation  uint64    // bumped on every remap-causing growth
	FileSize    uint64    // logical (plaintext) size of the arena, bytes
}

// Encode serializes h into a headerSize-byte block.
func (h *Header) Encode() []byte {
	buf := dbutil.AlignedBuffer(headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Selector)
	binary.LittleEndian.PutUint64(buf[16:24], h.TopRef[0])
	binary.LittleEndian.PutUint64(buf[24:32], h.TopRef[1])
	binary.LittleEndian.PutUint64(buf[32:40], h.TopVersion[0])
	binary.LittleEndian.PutUint64(buf[40:48], h.TopVersion[1])
	binary.LittleEndian.PutUint64(buf[48:56], h.FreeListRef)
	binary.LittleEndian.PutUint64(buf[56:64], h.Generation)
	binary.LittleEndian.PutUint64(buf[64:72], h.FileSize)
	return buf
}

// DecodeHeader parses a headerSize-byte block produced by Encode.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < 72 {
		return nil, dbutil.New(dbutil.KindInvalidFileFormat, "header block too small")
	}
	h := &Header{
		Magic:       binary.LittleEndian.Uint64(buf[0:8]),
		Version:     binary.LittleEndian.Uint32(buf[8:12]),
		Selector:    binary.LittleEndian.Uint32(buf[12:16]),
		FreeListRef: binary.LittleEndian.Uint64(buf[48:56]),
		Generation:  binary.LittleEndian.Uint64(buf[56:64]),
		FileSize:    binary.LittleEndian.Uint64(buf[64:72]),
	}
	h.TopRef[0] = binary.LittleEndian.Uint64(buf[16:24])
	h.TopRef[1] = binary.LittleEndian.Uint64(buf[24:32])
	h.TopVersion[0] = binary.LittleEndian.Uint64(buf[32:40])
	h.TopVersion[1] = binary.LittleEndian.Uint64(buf[40:48])

	if h.Magic != Magic {
		return nil, dbutil.New(dbutil.KindInvalidFileFormat, "bad magic")
	}
	if h.Selector > 1 {
		return nil, dbutil.New(dbutil.KindInvalidFileFormat, "bad selector bit")
	}
	return h, nil
}

// ActiveTopRef returns the ref and version currently selected.
func (h *Header) ActiveTopRef() (ref Ref, version uint64) {
	return Ref(h.TopRef[h.Selector]), h.TopVersion[h.Selector]
}

// Publish writes a new top ref into the inactive slot and flips the
// selector. This is the linearisation point of commit (spec §4.6 step 3).
func (h *Header) Publish(ref Ref, version uint64) {
	inactive := 1 - h.Selector
	h.TopRef[inactive] = uint64(ref)
	h.TopVersion[inactive] = version
	h.Selector = inactive
}
