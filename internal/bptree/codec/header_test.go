package codec

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{IsInnerNode: true, HasRefs: true, Encoding: WidthBits, Width: 32, Size: 1024, Cap: 4096},
		{ContextFlag: true, Encoding: Flex, Width: 8, Size: 7, Cap: 64},
		{Encoding: Packed, Width: 0, Size: 0, Cap: 0},
		{Encoding: WidthBits, Width: 64, Size: 0xFFFFFF, Cap: 0xFFFFFF},
	}
	for _, h := range cases {
		enc := h.Encode()
		got, err := DecodeHeader(enc[:])
		if err != nil {
			t.Fatalf("DecodeHeader: %v", err)
		}
		if got != h {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}
