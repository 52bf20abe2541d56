// Package observer computes, for each registered observer, the
// fine-grained change set implied by one transaction's raw change info
// (spec §4.8, component C8): which tables are related to the observer's
// root, whether any of them changed at all, and — per root-table
// object — whether that change is reachable along one of the
// observer's key paths.
package observer

import (
	"github.com/gocoredb/coredb/internal/leaves"
)

// TableKey and ColumnKey identify schema elements. Both are opaque ids
// assigned by the caller (the table/schema layer above this package);
// observer logic never interprets their bit patterns.
type TableKey uint64
type ColumnKey uint64

// HopKind distinguishes the three ways a key-path can step from one
// table to the next.
type HopKind uint8

const (
	HopForward HopKind = iota
	HopLinkList
	HopBacklink
)

// Hop is one step of a KeyPath: "follow column (of this kind) from the
// table you are currently standing in". The table landed in is never
// stored on the hop itself — it is always resolved through the Schema,
// matching how related-table discovery also walks the schema rather
// than a path-local copy of it.
type Hop struct {
	Column ColumnKey
	Kind   HopKind
}

// KeyPath is a sequence of hops starting at an observer's root table,
// possibly ending at a backlink (spec §4.8).
type KeyPath []Hop

// Edge is one outgoing link from a table, as declared in the schema.
type Edge struct {
	Column ColumnKey
	Kind   HopKind
	Target TableKey
}

// Schema is the minimal link graph C8 needs: for a given table and
// column, what table (and hop kind) it leads to. The table/column
// layer above this package is the source of truth; Schema is just the
// read-only view C8 walks.
type Schema struct {
	edges map[TableKey]map[ColumnKey]Edge
}

// NewSchema returns an empty schema ready for AddEdge calls.
func NewSchema() *Schema {
	return &Schema{edges: make(map[TableKey]map[ColumnKey]Edge)}
}

// AddEdge declares that column (of the given kind) on table links to
// target.
func (s *Schema) AddEdge(table TableKey, column ColumnKey, kind HopKind, target TableKey) {
	if s.edges[table] == nil {
		s.edges[table] = make(map[ColumnKey]Edge)
	}
	s.edges[table][column] = Edge{Column: column, Kind: kind, Target: target}
}

// Edge looks up the edge for (table, column), if any.
func (s *Schema) Edge(table TableKey, column ColumnKey) (Edge, bool) {
	cols, ok := s.edges[table]
	if !ok {
		return Edge{}, false
	}
	e, ok := cols[column]
	return e, ok
}

// ForwardEdges returns every forward-link/link-list edge declared on
// table, in an order deterministic for a given Schema so discovery
// results don't depend on map iteration order.
func (s *Schema) ForwardEdges(table TableKey) []Edge {
	cols := s.edges[table]
	out := make([]Edge, 0, len(cols))
	for _, e := range cols {
		if e.Kind == HopForward || e.Kind == HopLinkList {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []Edge) {
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j].Column < edges[j-1].Column; j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}

// TableChanges is the raw change info the write path accumulates for
// one table during a transaction.
type TableChanges struct {
	Modifications map[leaves.ObjectKey]map[ColumnKey]struct{}
	Insertions    map[leaves.ObjectKey]struct{}
	Deletions     map[leaves.ObjectKey]struct{}
	// Moves maps a before-commit row index to its after-commit row
	// index, for objects that neither were inserted nor deleted but
	// whose position shifted (e.g. due to an erase earlier in the
	// same column).
	Moves map[int]int
}

func newTableChanges() *TableChanges {
	return &TableChanges{
		Modifications: make(map[leaves.ObjectKey]map[ColumnKey]struct{}),
		Insertions:    make(map[leaves.ObjectKey]struct{}),
		Deletions:     make(map[leaves.ObjectKey]struct{}),
		Moves:         make(map[int]int),
	}
}

// ChangeInfo is the full per-transaction change map, one entry per
// table touched.
type ChangeInfo map[TableKey]*TableChanges

// NewChangeInfo returns an empty ChangeInfo ready for recording.
func NewChangeInfo() ChangeInfo {
	return make(ChangeInfo)
}

func (c ChangeInfo) table(t TableKey) *TableChanges {
	tc, ok := c[t]
	if !ok {
		tc = newTableChanges()
		c[t] = tc
	}
	return tc
}

// RecordModification notes that column changed on obj within table.
func (c ChangeInfo) RecordModification(table TableKey, obj leaves.ObjectKey, column ColumnKey) {
	tc := c.table(table)
	cols, ok := tc.Modifications[obj]
	if !ok {
		cols = make(map[ColumnKey]struct{})
		tc.Modifications[obj] = cols
	}
	cols[column] = struct{}{}
}

// RecordInsertion notes that obj was newly inserted into table.
func (c ChangeInfo) RecordInsertion(table TableKey, obj leaves.ObjectKey) {
	c.table(table).Insertions[obj] = struct{}{}
}

// RecordDeletion notes that obj was removed from table.
func (c ChangeInfo) RecordDeletion(table TableKey, obj leaves.ObjectKey) {
	c.table(table).Deletions[obj] = struct{}{}
}

// changedColumn reports whether column is recorded as modified on obj
// within table, counting a fresh insertion as "every column changed"
// (an inserted row has no prior value to compare against).
func changedColumn(info ChangeInfo, table TableKey, obj leaves.ObjectKey, column ColumnKey) bool {
	tc, ok := info[table]
	if !ok {
		return false
	}
	if _, inserted := tc.Insertions[obj]; inserted {
		return true
	}
	cols, ok := tc.Modifications[obj]
	if !ok {
		return false
	}
	_, changed := cols[column]
	return changed
}

// tableTouched reports whether table has any recorded insertion or
// modification at all (used by the applicability check; deletions
// alone do not make a *child* table "touched" for reachability
// purposes, since a deleted object can no longer be reached to check
// its columns).
func tableTouched(info ChangeInfo, table TableKey) bool {
	tc, ok := info[table]
	if !ok {
		return false
	}
	return len(tc.Insertions) > 0 || len(tc.Modifications) > 0
}

// Snapshot is the read-only view into link columns that reachability
// needs: given an object's current position, where do its links point.
type Snapshot interface {
	Forward(table TableKey, column ColumnKey, obj leaves.ObjectKey) (leaves.ObjectKey, bool, error)
	LinkList(table TableKey, column ColumnKey, obj leaves.ObjectKey) ([]leaves.ObjectKey, error)
	Backlinks(table TableKey, column ColumnKey, obj leaves.ObjectKey) ([]leaves.ObjectKey, error)
}

func navigate(snap Snapshot, table TableKey, hop Hop, obj leaves.ObjectKey) ([]leaves.ObjectKey, error) {
	switch hop.Kind {
	case HopForward:
		target, ok, err := snap.Forward(table, hop.Column, obj)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return []leaves.ObjectKey{target}, nil
	case HopLinkList:
		return snap.LinkList(table, hop.Column, obj)
	case HopBacklink:
		return snap.Backlinks(table, hop.Column, obj)
	default:
		return nil, nil
	}
}
