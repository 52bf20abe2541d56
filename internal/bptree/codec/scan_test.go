package codec

import "testing"

func TestFindAllEq(t *testing.T) {
	values := []int64{1, 5, 3, 5, 9, 5, -2}
	h, buf := EncodePacked(values)

	var matched []uint32
	ok := FindAll(h, buf, Eq, 5, 0, uint32(len(values)), 100, func(i uint32) bool {
		matched = append(matched, i)
		return true
	})
	if !ok {
		t.Fatalf("FindAll returned false without being asked to stop")
	}
	want := []uint32{101, 103, 105}
	if len(matched) != len(want) {
		t.Fatalf("matched = %v, want %v", matched, want)
	}
	for i, w := range want {
		if matched[i] != w {
			t.Fatalf("matched[%d] = %d, want %d", i, matched[i], w)
		}
	}
}

func TestFindAllStopsEarly(t *testing.T) {
	values := []int64{5, 5, 5, 5}
	h, buf := EncodePacked(values)

	count := 0
	ok := FindAll(h, buf, Eq, 5, 0, uint32(len(values)), 0, func(i uint32) bool {
		count++
		return count < 2
	})
	if ok {
		t.Fatalf("expected FindAll to report early stop")
	}
	if count != 2 {
		t.Fatalf("expected exactly 2 matches before stopping, got %d", count)
	}
}

func TestFindAllLtGtWithNegatives(t *testing.T) {
	values := []int64{-5, -1, 0, 1, 5}
	h, buf := EncodePacked(values)

	var lt []uint32
	FindAll(h, buf, Lt, 0, 0, uint32(len(values)), 0, func(i uint32) bool {
		lt = append(lt, i)
		return true
	})
	if len(lt) != 2 || lt[0] != 0 || lt[1] != 1 {
		t.Fatalf("Lt 0 matched %v, want [0 1]", lt)
	}

	var ge []uint32
	FindAll(h, buf, Ge, 0, 0, uint32(len(values)), 0, func(i uint32) bool {
		ge = append(ge, i)
		return true
	})
	if len(ge) != 3 || ge[0] != 2 {
		t.Fatalf("Ge 0 matched %v, want [2 3 4]", ge)
	}
}

func TestFindAllAcrossMultipleChunks(t *testing.T) {
	values := make([]int64, 20)
	for i := range values {
		values[i] = int64(i)
	}
	h, buf := EncodePacked(values)

	var matched []uint32
	FindAll(h, buf, Eq, 17, 0, uint32(len(values)), 0, func(i uint32) bool {
		matched = append(matched, i)
		return true
	})
	if len(matched) != 1 || matched[0] != 17 {
		t.Fatalf("matched = %v, want [17]", matched)
	}
}
