// Package commitlog implements the durable, cross-process change stream
// (component C7): a two-file circular log plus a small header file
// carrying the interprocess mutex, a redundant preamble pair, and a
// selector bit, in the style of the arena's own header/selector split
// (internal/arena/header.go).
package commitlog

import "encoding/binary"

// Preamble is the per-side bookkeeping of spec §4.7. Two copies are kept
// in the header so a crash mid-update always leaves one fully valid.
type Preamble struct {
	ActiveIsA    bool
	BeginOldest  uint64
	BeginNewest  uint64
	End          uint64
	WriteOffset  uint64
	LastSeen     uint64
}

const preambleSize = 1 + 8*5 // ActiveIsA + 5 uint64 fields, not 8-byte aligned internally; see Encode

func (p Preamble) Encode(buf []byte) {
	if p.ActiveIsA {
		buf[0] = 1
	} else {
		buf[0] = 0
	}
	binary.LittleEndian.PutUint64(buf[1:9], p.BeginOldest)
	binary.LittleEndian.PutUint64(buf[9:17], p.BeginNewest)
	binary.LittleEndian.PutUint64(buf[17:25], p.End)
	binary.LittleEndian.PutUint64(buf[25:33], p.WriteOffset)
	binary.LittleEndian.PutUint64(buf[33:41], p.LastSeen)
}

func DecodePreamble(buf []byte) Preamble {
	return Preamble{
		ActiveIsA:   buf[0] != 0,
		BeginOldest: binary.LittleEndian.Uint64(buf[1:9]),
		BeginNewest: binary.LittleEndian.Uint64(buf[9:17]),
		End:         binary.LittleEndian.Uint64(buf[17:25]),
		WriteOffset: binary.LittleEndian.Uint64(buf[25:33]),
		LastSeen:    binary.LittleEndian.Uint64(buf[33:41]),
	}
}
