package leaves

import (
	"fmt"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// ListColumn stores, per row, an ordered (not deduplicated, not sorted)
// sequence of cells (spec §4.5 "List"). It is also the storage used by
// LinkListColumn, whose elements are restricted to CellObjectID.
type ListColumn struct {
	Blob BlobColumn
}

func (c *ListColumn) Len(a *arena.Arena) (uint64, error) { return c.Blob.Len(a) }

func (c *ListColumn) Get(a *arena.Arena, i uint64) ([]Cell, error) {
	b, err := c.Blob.Get(a, i)
	if err != nil {
		return nil, err
	}
	return decodeCellList(b)
}

func (c *ListColumn) Insert(a *arena.Arena, i uint64, initial []Cell, version uint64) error {
	return c.Blob.Insert(a, i, encodeCellList(initial), version)
}

func (c *ListColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	return c.Blob.Erase(a, i, version)
}

func (c *ListColumn) Replace(a *arena.Arena, i uint64, cells []Cell, version uint64) error {
	return c.Blob.Set(a, i, encodeCellList(cells), version)
}

func (c *ListColumn) Append(a *arena.Arena, i uint64, v Cell, version uint64) error {
	cells, err := c.Get(a, i)
	if err != nil {
		return err
	}
	return c.Replace(a, i, append(cells, v), version)
}

// RemoveAt removes the element at logical position pos within row i's
// list. pos must be a valid index into the current list; an out-of-range
// pos is API misuse, not a silent no-op.
func (c *ListColumn) RemoveAt(a *arena.Arena, i uint64, pos int, version uint64) error {
	cells, err := c.Get(a, i)
	if err != nil {
		return err
	}
	if pos < 0 || pos >= len(cells) {
		return dbutil.New(dbutil.KindLogicError, fmt.Sprintf("RemoveAt: pos %d out of range [0,%d)", pos, len(cells)))
	}
	out := append(cells[:pos:pos], cells[pos+1:]...)
	return c.Replace(a, i, out, version)
}

// RemoveMatching drops every element equal to v (per Compare) from row
// i's list; used by backlink maintenance.
func (c *ListColumn) RemoveMatching(a *arena.Arena, i uint64, v Cell, version uint64) error {
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
	return c.Replace(a, i, out, version)
}
