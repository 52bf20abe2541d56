package leaves

import "testing"

func numCell(n int64) Cell { return Cell{Kind: CellNumeric, Numeric: n} }

func TestSetColumnAddDedupsAndSorts(t *testing.T) {
	a := openBlobTestArena(t)
	var col SetColumn
	if err := col.Insert(a, 0, nil, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for _, n := range []int64{5, 1, 3, 1, 5} {
		if err := col.Add(a, 0, numCell(n), 1); err != nil {
			t.Fatalf("Add(%d): %v", n, err)
		}
	}
	got, err := col.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []int64{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Numeric != w {
			t.Fatalf("got[%d] = %d, want %d", i, got[i].Numeric, w)
		}
	}
}

func TestSetColumnRemove(t *testing.T) {
	a := openBlobTestArena(t)
	var col SetColumn
	if err := col.Insert(a, 0, []Cell{numCell(1), numCell(2), numCell(3)}, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := col.Remove(a, 0, numCell(2), 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	present, err := col.Contains(a, 0, numCell(2))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if present {
		t.Fatalf("2 still present after Remove")
	}
	present, err = col.Contains(a, 0, numCell(1))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !present {
		t.Fatalf("1 missing after removing 2")
	}
}

func TestSetAlgebra(t *testing.T) {
	x := sortedUniqueCells([]Cell{numCell(1), numCell(2), numCell(3)})
	y := sortedUniqueCells([]Cell{numCell(2), numCell(3), numCell(4)})

	assertCells(t, "Union", Union(x, y), []int64{1, 2, 3, 4})
	assertCells(t, "Intersect", Intersect(x, y), []int64{2, 3})
	assertCells(t, "Difference", Difference(x, y), []int64{1})
	assertCells(t, "SymmetricDifference", SymmetricDifference(x, y), []int64{1, 4})

	if IsSubset(x, y) {
		t.Fatalf("x should not be a subset of y")
	}
	sub := sortedUniqueCells([]Cell{numCell(2), numCell(3)})
	if !IsSubset(sub, x) {
		t.Fatalf("{2,3} should be a subset of {1,2,3}")
	}
	if !IsSuperset(x, sub) {
		t.Fatalf("{1,2,3} should be a superset of {2,3}")
	}
	if Equals(x, y) {
		t.Fatalf("x and y should not be equal")
	}
	if !Equals(x, sortedUniqueCells([]Cell{numCell(3), numCell(1), numCell(2)})) {
		t.Fatalf("Equals should ignore input order")
	}
}

func assertCells(t *testing.T, label string, got []Cell, want []int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len = %d, want %d", label, len(got), len(want))
	}
	for i, w := range want {
		if got[i].Numeric != w {
			t.Fatalf("%s[%d] = %d, want %d", label, i, got[i].Numeric, w)
		}
	}
}

func TestCellCanonicalOrdering(t *testing.T) {
	cells := []Cell{
		{Kind: CellOther, Other: []byte("x")},
		{Kind: CellObjectID, ObjectID: 7},
		{Kind: CellBinary, Binary: []byte("b")},
		{Kind: CellString, Str: "s"},
		{Kind: CellNumeric, Numeric: 42},
		{Kind: CellBool, Bool: true},
		{Kind: CellNull},
	}
	sorted := append([]Cell(nil), cells...)
	insertionSortCells(sorted)
	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i].Kind > sorted[i+1].Kind {
			t.Fatalf("cells not sorted by kind: %v before %v", sorted[i].Kind, sorted[i+1].Kind)
		}
	}
	if sorted[0].Kind != CellNull {
		t.Fatalf("null should sort first, got %v", sorted[0].Kind)
	}
}
