package leaves

import "testing"

func TestListColumnAppendPreservesOrder(t *testing.T) {
	a := openBlobTestArena(t)
	var col ListColumn
	if err := col.Insert(a, 0, nil, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for _, n := range []int64{3, 1, 2} {
		if err := col.Append(a, 0, numCell(n), 1); err != nil {
			t.Fatalf("Append(%d): %v", n, err)
		}
	}
	got, err := col.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []int64{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Numeric != w {
			t.Fatalf("got[%d] = %d, want %d (order not preserved)", i, got[i].Numeric, w)
		}
	}
}

func TestListColumnRemoveAt(t *testing.T) {
	a := openBlobTestArena(t)
	var col ListColumn
	if err := col.Insert(a, 0, []Cell{numCell(10), numCell(20), numCell(30)}, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := col.RemoveAt(a, 0, 1, 2); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	got, err := col.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 || got[0].Numeric != 10 || got[1].Numeric != 30 {
		t.Fatalf("got %v, want [10 30]", got)
	}
}

func TestListColumnRemoveAtOutOfRange(t *testing.T) {
	a := openBlobTestArena(t)
	var col ListColumn
	if err := col.Insert(a, 0, []Cell{numCell(10), numCell(20)}, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := col.RemoveAt(a, 0, 2, 2); err == nil {
		t.Fatal("RemoveAt with out-of-range pos: want error, got nil")
	}
	if err := col.RemoveAt(a, 0, -1, 2); err == nil {
		t.Fatal("RemoveAt with negative pos: want error, got nil")
	}
}
