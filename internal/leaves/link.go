package leaves

import "github.com/gocoredb/coredb/internal/arena"

// ObjectKey identifies a row in some table. Its lowest bit marks an
// "unresolved" link — a reference to an object not yet materialized
// (spec §4.5 "Link / backlink"). Two object-keys compare equal within
// a link set iff they are equal ignoring that bit (the spec's
// recommended resolution, adopted here — see DESIGN.md).
type ObjectKey uint64

func (k ObjectKey) Unresolved() bool   { return k&1 != 0 }
func (k ObjectKey) Resolved() ObjectKey { return k &^ 1 }
func (k ObjectKey) RowIndex() uint64   { return uint64(k.Resolved()) >> 1 }

// NewObjectKey packs a row index and the unresolved bit into a key.
func NewObjectKey(rowIndex uint64, unresolved bool) ObjectKey {
	k := ObjectKey(rowIndex << 1)
	if unresolved {
		k |= 1
	}
	return k
}

// LinkKeysEqual implements the unresolved-bit-insensitive equality rule.
func LinkKeysEqual(a, b ObjectKey) bool { return a.Resolved() == b.Resolved() }

// LinkColumn is a single object-key per row (spec §4.5 "a link is an
// object-key stored in a typed column").
type LinkColumn struct {
	IntColumn
}

func (c *LinkColumn) GetKey(a *arena.Arena, i uint64) (ObjectKey, error) {
	v, err := c.Get(a, i)
	return ObjectKey(v), err
}

func (c *LinkColumn) SetKey(a *arena.Arena, i uint64, key ObjectKey, version uint64) error {
	return c.Set(a, i, int64(key), version)
}

func (c *LinkColumn) InsertKey(a *arena.Arena, i uint64, key ObjectKey, version uint64) error {
	return c.Insert(a, i, int64(key), version)
}

// TypedLinkColumn additionally carries a table-key alongside each
// object-key (spec: "a 'typed link' additionally stores a table-key").
type TypedLinkColumn struct {
	Keys   IntColumn
	Tables IntColumn
}

func (c *TypedLinkColumn) Len(a *arena.Arena) (uint64, error) { return c.Keys.Len(a) }

func (c *TypedLinkColumn) Get(a *arena.Arena, i uint64) (ObjectKey, int64, error) {
	key, err := c.Keys.Get(a, i)
	if err != nil {
		return 0, 0, err
	}
	table, err := c.Tables.Get(a, i)
	if err != nil {
		return 0, 0, err
	}
	return ObjectKey(key), table, nil
}

func (c *TypedLinkColumn) Set(a *arena.Arena, i uint64, key ObjectKey, table int64, version uint64) error {
	if err := c.Keys.Set(a, i, int64(key), version); err != nil {
		return err
	}
	return c.Tables.Set(a, i, table, version)
}

func (c *TypedLinkColumn) Insert(a *arena.Arena, i uint64, key ObjectKey, table int64, version uint64) error {
	if err := c.Keys.Insert(a, i, int64(key), version); err != nil {
		return err
	}
	return c.Tables.Insert(a, i, table, version)
}

func (c *TypedLinkColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	if err := c.Keys.Erase(a, i, version); err != nil {
		return err
	}
	return c.Tables.Erase(a, i, version)
}

// LinkListColumn is a list of object-keys, stored as ListColumn
// restricted to CellObjectID elements.
type LinkListColumn struct {
	List ListColumn
}

func (c *LinkListColumn) Get(a *arena.Arena, i uint64) ([]ObjectKey, error) {
	cells, err := c.List.Get(a, i)
	if err != nil {
		return nil, err
	}
	out := make([]ObjectKey, len(cells))
	for j, cell := range cells {
		out[j] = ObjectKey(cell.ObjectID)
	}
	return out, nil
}

func objectKeyCell(k ObjectKey) Cell { return Cell{Kind: CellObjectID, ObjectID: uint64(k)} }

func (c *LinkListColumn) Insert(a *arena.Arena, i uint64, keys []ObjectKey, version uint64) error {
	cells := make([]Cell, len(keys))
	for j, k := range keys {
		cells[j] = objectKeyCell(k)
	}
	return c.List.Insert(a, i, cells, version)
}

func (c *LinkListColumn) Erase(a *arena.Arena, i uint64, version uint64) error {
	return c.List.Erase(a, i, version)
}

func (c *LinkListColumn) Add(a *arena.Arena, i uint64, key ObjectKey, version uint64) error {
	return c.List.Append(a, i, objectKeyCell(key), version)
}

func (c *LinkListColumn) Remove(a *arena.Arena, i uint64, key ObjectKey, version uint64) error {
	cells, err := c.List.Get(a, i)
	if err != nil {
		return err
	}
	out := cells[:0:0]
	for _, cell := range cells {
		if !LinkKeysEqual(ObjectKey(cell.ObjectID), key) {
			out = append(out, cell)
		}
	}
	return c.List.Replace(a, i, out, version)
}

// BacklinkColumn is the companion column living in a link's target
// table: for each target row it lists every origin object-key that
// currently points to it (spec: "a companion backlink column... so
// that deleting a target row can efficiently find and nullify
// references").
type BacklinkColumn struct {
	List ListColumn
}

func (b *BacklinkColumn) Origins(a *arena.Arena, targetRow uint64) ([]ObjectKey, error) {
	cells, err := b.List.Get(a, targetRow)
	if err != nil {
		return nil, err
	}
	out := make([]ObjectKey, len(cells))
	for j, cell := range cells {
		out[j] = ObjectKey(cell.ObjectID)
	}
	return out, nil
}

func (b *BacklinkColumn) add(a *arena.Arena, targetRow uint64, origin ObjectKey, version uint64) error {
	return b.List.Append(a, targetRow, objectKeyCell(origin), version)
}

func (b *BacklinkColumn) remove(a *arena.Arena, targetRow uint64, origin ObjectKey, version uint64) error {
	return b.List.RemoveMatching(a, targetRow, objectKeyCell(origin), version)
}

// SetLink atomically updates a single link and its target's backlink
// column in lockstep (spec: "operations on a link-list must update the
// backlink column atomically with the list change" — generalized here
// to the single-link case). oldTarget may be the zero ObjectKey if the
// link had no prior value.
func SetLink(a *arena.Arena, link *LinkColumn, backlinks *BacklinkColumn, row uint64, origin ObjectKey, oldTarget, newTarget ObjectKey, version uint64) error {
	if oldTarget != 0 {
		if err := backlinks.remove(a, oldTarget.RowIndex(), origin, version); err != nil {
			return err
		}
	}
	if newTarget != 0 {
		if err := backlinks.add(a, newTarget.RowIndex(), origin, version); err != nil {
			return err
		}
	}
	return link.SetKey(a, row, newTarget, version)
}

// AddLinkListEntry adds target to origin's link-list and records the
// reverse edge in target's backlink column atomically.
func AddLinkListEntry(a *arena.Arena, links *LinkListColumn, backlinks *BacklinkColumn, row uint64, origin, target ObjectKey, version uint64) error {
	if err := backlinks.add(a, target.RowIndex(), origin, version); err != nil {
		return err
	}
	return links.Add(a, row, target, version)
}

// RemoveLinkListEntry is the inverse of AddLinkListEntry.
func RemoveLinkListEntry(a *arena.Arena, links *LinkListColumn, backlinks *BacklinkColumn, row uint64, origin, target ObjectKey, version uint64) error {
	if err := backlinks.remove(a, target.RowIndex(), origin, version); err != nil {
		return err
	}
	return links.Remove(a, row, target, version)
}
