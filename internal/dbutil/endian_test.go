package dbutil

import (
	"bytes"
	"io"
	"testing"
)

type sliceReaderAt []byte

func (s sliceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off)+len(p) > len(s) {
		n := copy(p, s[off:])
		return n, io.ErrUnexpectedEOF
	}
	return copy(p, s[off:]), nil
}

func TestReadUint64(t *testing.T) {
	buf := make([]byte, 16)
	Order.PutUint64(buf[8:], 0x0102030405060708)

	got, err := ReadUint64(sliceReaderAt(buf), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0x0102030405060708 {
		t.Fatalf("got %#x, want %#x", got, uint64(0x0102030405060708))
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		v     uint64
		width uint
		want  int64
	}{
		{0, 0, 0},
		{1, 1, -1},
		{0, 1, 0},
		{0x0f, 4, -1},
		{0x07, 4, 7},
		{0xff, 8, -1},
		{0x7f, 8, 127},
		{^uint64(0), 64, -1},
	}
	for _, c := range cases {
		if got := SignExtend(c.v, c.width); got != c.want {
			t.Fatalf("SignExtend(%#x, %d) = %d, want %d", c.v, c.width, got, c.want)
		}
	}
}

func TestTruncateToWidthRoundTrip(t *testing.T) {
	for _, width := range []uint{1, 2, 4, 8, 16, 32, 64} {
		lo := int64(-(1 << (width - 1)))
		hi := int64(1<<(width-1) - 1)
		if width == 64 {
			lo, hi = -1<<62, 1<<62-1 // avoid overflow in the loop below
		}
		for _, v := range []int64{lo, 0, hi} {
			packed := TruncateToWidth(v, width)
			back := SignExtend(packed, width)
			if back != v {
				t.Fatalf("width %d: round-trip %d -> %#x -> %d", width, v, packed, back)
			}
		}
	}
}

func TestReadUint64Error(t *testing.T) {
	_, err := ReadUint64(sliceReaderAt(bytes.Repeat([]byte{0}, 4)), 0)
	if err == nil {
		t.Fatalf("expected error reading past end of buffer")
	}
}
