package codec

import "testing"

func TestWidthBitsGetSetRoundTrip(t *testing.T) {
	widths := []uint8{1, 2, 4, 8, 16, 32, 64}
	for _, w := range widths {
		n := uint32(64 / w * 3) // a few full words' worth
		if n == 0 {
			n = 4
		}
		buf := make([]byte, WidthBitsPayloadSize(w, n))
		values := make([]int64, n)
		for i := uint32(0); i < n; i++ {
			values[i] = sampleValue(w, i)
			if !SetWidthBits(buf, w, i, values[i]) {
				t.Fatalf("width %d: SetWidthBits rejected in-range value %d", w, values[i])
			}
		}
		for i := uint32(0); i < n; i++ {
			got := GetWidthBits(buf, w, i)
			if got != values[i] {
				t.Fatalf("width %d index %d: got %d want %d", w, i, got, values[i])
			}
		}
	}
}

// sampleValue returns a representative in-range value for width w,
// alternating sign so both branches of sign-extension get covered.
func sampleValue(w uint8, i uint32) int64 {
	if w == 64 {
		if i%2 == 0 {
			return int64(i) * 1000003
		}
		return -int64(i) * 1000003
	}
	max := int64(1)<<(w-1) - 1
	min := -(int64(1) << (w - 1))
	if i%2 == 0 {
		return int64(i) % (max + 1)
	}
	v := -(int64(i) % (-min + 1))
	if v < min {
		v = min
	}
	return v
}

func TestFitsWidthBoundaries(t *testing.T) {
	if !FitsWidth(0, 0) {
		t.Fatalf("0 must fit width 0")
	}
	if FitsWidth(1, 0) {
		t.Fatalf("1 must not fit width 0")
	}
	if !FitsWidth(127, 8) || FitsWidth(128, 8) {
		t.Fatalf("width 8 signed boundary wrong")
	}
	if !FitsWidth(-128, 8) || FitsWidth(-129, 8) {
		t.Fatalf("width 8 signed negative boundary wrong")
	}
}

func TestRequiredWidthMonotone(t *testing.T) {
	cases := []struct {
		v int64
		w uint8
	}{
		{0, 0}, {1, 2}, {-1, 1}, {2, 4}, {-2, 2}, {127, 8}, {128, 16}, {-129, 16}, {1 << 40, 64},
	}
	for _, c := range cases {
		if got := RequiredWidth(c.v); got != c.w {
			t.Fatalf("RequiredWidth(%d) = %d, want %d", c.v, got, c.w)
		}
	}
}

func TestSetWidthBitsRejectsOutOfRange(t *testing.T) {
	buf := make([]byte, WidthBitsPayloadSize(8, 4))
	if SetWidthBits(buf, 8, 0, 200) {
		t.Fatalf("expected SetWidthBits to reject an out-of-range value for width 8")
	}
}

func TestUnsignedWidthBitsRoundTrip(t *testing.T) {
	buf := make([]byte, WidthBitsPayloadSize(8, 4))
	SetWidthBitsUnsigned(buf, 8, 0, 200)
	if got := GetWidthBitsUnsigned(buf, 8, 0); got != 200 {
		t.Fatalf("got %d want 200", got)
	}
}
