package leaves

import "github.com/gocoredb/coredb/internal/arena"

// SetColumn stores, per row, a canonically sorted and deduplicated
// collection of cells (spec §4.5 "Set"). Set algebra is merge-scan over
// the sorted slice, matching the spec's own description of these
// operations. The on-disk representation is a single encoded cell list
// per row rather than the "one-or-two sorted b-trees" the spec
// describes for a truly nested structure — see DESIGN.md.
type SetColumn struct {
	Blob BlobColumn
}

func (c *SetColumn) Len(a *arena.Arena) (uint64, error) { return c.Blob.Len(a) }

func (c *SetColumn) Get(a *arena.Arena, i uint64) ([]Cell, error) {
	b, err := c.Blob.Get(a, i)
	if err != nil {
		return nil, err
	}
	return decodeCellList(b)
}

func sortedUniqueCells(cells []Cell) []Cell {
	out := append([]Cell(nil), cells...)
	insertionSortCells(out)
	return dedupCells(out)
}

func insertionSortCells(cells []Cell) {
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0 && Compare(cells[j-1], cells[j]) > 0; j-- {
			cells[j-1], cells[j] = cells[j], cells[j-1]
		}
	}
}

func dedupCells(sorted []Cell) []Cell {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, c := range sorted[1:] {
		if Compare(out[len(out)-1], c) != 0 {
			out = append(out, c)
		}
	}
	return out
}

func (c *SetColumn) replace(a *arena.Arena, i uint64, cells []Cell, version uint64) error {
	return c.Blob.Set(a, i, encodeCellList(sortedUniqueCells(cells)), version)
}

func (c *SetColumn) Insert(a *arena.Arena, i uint64, initial []Cell, version uint64) error {
	return c.Blob.Insert(a, i, encodeCellList(sortedUniqueCells(initial)), version)
}

func (c *SetColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	return c.Blob.Erase(a, i, version)
}

func (c *SetColumn) Contains(a *arena.Arena, i uint64, v Cell) (bool, error) {
	cells, err := c.Get(a, i)
	if err != nil {
		return false, err
	}
	return containsCell(cells, v), nil
}

func containsCell(sorted []Cell, v Cell) bool {
	lo, hi := 0, len(sorted)
	for lo < hi {
		mid := (lo + hi) / 2
		switch c := Compare(sorted[mid], v); {
		case c == 0:
			return true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

func (c *SetColumn) Add(a *arena.Arena, i uint64, v Cell, version uint64) error {
	cells, err := c.Get(a, i)
	if err != nil {
		return err
	}
	if containsCell(cells, v) {
		return nil
	}
	return c.replace(a, i, append(cells, v), version)
}

func (c *SetColumn) Remove(a *arena.Arena, i uint64, v Cell, version uint64) error {
	cells, err := c.Get(a, i)
	if err != nil {
		return err
	}
	out := cells[:0:0]
	for _, e := range cells {
		if Compare(e, v) != 0 {
			out = append(out, e)
		}
	}
	return c.replace(a, i, out, version)
}

// Union, Intersect, Difference, SymmetricDifference, IsSubset,
// IsSuperset and Equals all assume x and y are already sorted and
// deduped (the invariant SetColumn.Get always returns).

func Union(x, y []Cell) []Cell {
	out := make([]Cell, 0, len(x)+len(y))
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch c := Compare(x[i], y[j]); {
		case c < 0:
			out = append(out, x[i])
			i++
		case c > 0:
			out = append(out, y[j])
			j++
		default:
			out = append(out, x[i])
			i++
			j++
		}
	}
	out = append(out, x[i:]...)
	out = append(out, y[j:]...)
	return out
}

func Intersect(x, y []Cell) []Cell {
	var out []Cell
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch c := Compare(x[i], y[j]); {
		case c < 0:
			i++
		case c > 0:
			j++
		default:
			out = append(out, x[i])
			i++
			j++
		}
	}
	return out
}

func Difference(x, y []Cell) []Cell {
	var out []Cell
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch c := Compare(x[i], y[j]); {
		case c < 0:
			out = append(out, x[i])
			i++
		case c > 0:
			j++
		default:
			i++
			j++
		}
	}
	out = append(out, x[i:]...)
	return out
}

func SymmetricDifference(x, y []Cell) []Cell {
	var out []Cell
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch c := Compare(x[i], y[j]); {
		case c < 0:
			out = append(out, x[i])
			i++
		case c > 0:
			out = append(out, y[j])
			j++
		default:
			i++
			j++
		}
	}
	out = append(out, x[i:]...)
	out = append(out, y[j:]...)
	return out
}

func IsSubset(x, y []Cell) bool {
	i, j := 0, 0
	for i < len(x) {
		if j >= len(y) {
			return false
		}
		switch c := Compare(x[i], y[j]); {
		case c == 0:
			i++
			j++
		case c > 0:
			j++
		default:
			return false
		}
	}
	return true
}

func IsSuperset(x, y []Cell) bool { return IsSubset(y, x) }

func Equals(x, y []Cell) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if Compare(x[i], y[i]) != 0 {
			return false
		}
	}
	return true
}
