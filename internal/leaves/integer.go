// Package leaves implements the typed leaf families (component C5):
// thin, domain-specific adapters over the untyped B+-tree array of
// internal/bptree. Every family stores its logical values as the int64
// payload the tree already understands; wider logical types (floats,
// timestamps, decimals, strings, links) reinterpret that payload or
// spread it across a small, fixed set of companion columns.
package leaves

import (
	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree"
)

// IntColumn is a column of signed integers, booleans (0/1), or enum ids
// (ids into a separate keys column owned by the schema layer) — all
// stored directly, with no reinterpretation (spec §4.5 "Integer / bool
// / enum").
type IntColumn struct {
	Root arena.Ref
}

func (c *IntColumn) Len(a *arena.Arena) (uint64, error) { return bptree.Size(a, c.Root) }

func (c *IntColumn) Get(a *arena.Arena, i uint64) (int64, error) { return bptree.Get(a, c.Root, i) }

func (c *IntColumn) Set(a *arena.Arena, i uint64, v int64, version uint64) error {
	root, err := bptree.Set(a, c.Root, i, v, version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}

func (c *IntColumn) Insert(a *arena.Arena, i uint64, v int64, version uint64) error {
	root, err := bptree.Insert(a, c.Root, i, v, version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}

func (c *IntColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	root, err := bptree.Erase(a, c.Root, i, version)
	if err != nil {
		return err
	}
	c.Root = root
	return nil
}

// BoolColumn is an IntColumn restricted to {0, 1}.
type BoolColumn struct{ IntColumn }

func (c *BoolColumn) GetBool(a *arena.Arena, i uint64) (bool, error) {
	v, err := c.Get(a, i)
	return v != 0, err
}

func (c *BoolColumn) SetBool(a *arena.Arena, i uint64, v bool, version uint64) error {
	iv := int64(0)
	if v {
		iv = 1
	}
	return c.Set(a, i, iv, version)
}

// EnumColumn stores ids into a separately owned keys column; the keys
// column itself is an ordinary IntColumn or StringColumn at the schema
// layer, out of scope here.
type EnumColumn struct{ IntColumn }
