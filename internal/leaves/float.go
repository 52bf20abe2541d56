package leaves

import (
	"math"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree"
)

// FloatColumn stores float64 values as their IEEE-754 bit pattern in a
// width-64 leaf (spec §4.5 "Float / double"). Float32 columns reuse the
// same storage at half the logical width, zero-extended.
type FloatColumn struct {
	Root    arena.Ref
	Is32Bit bool
}

func (c *FloatColumn) Len(a *arena.Arena) (uint64, error) { return bptree.Size(a, c.Root) }

func (c *FloatColumn) Get(a *arena.Arena, i uint64) (float64, error) {
	raw, err := bptree.Get(a, c.Root, i)
	if err != nil {
		return 0, err
	}
	if c.Is32Bit {
		return float64(math.Float32frombits(uint32(raw))), nil
	}
	return math.Float64frombits(uint64(raw)), nil
}

func (c *FloatColumn) set(v float64) int64 {
	if c.Is32Bit {
		return int64(math.Float32bits(float32(v)))
	}
	return int64(math.Float64bits(v))
}

func (c *FloatColumn) Set(a *arena.Arena, i uint64, v float64, version uint64) error {
	root, err := bptree.Set(a, c.Root, i, c.set(v), version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}

func (c *FloatColumn) Insert(a *arena.Arena, i uint64, v float64, version uint64) error {
	root, err := bptree.Insert(a, c.Root, i, c.set(v), version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}

func (c *FloatColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	root, err := bptree.Erase(a, c.Root, i, version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}
