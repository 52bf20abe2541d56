package observer

import "github.com/gocoredb/coredb/internal/leaves"

// Applicable is the stage-2 "applicability check": an observer can be
// skipped outright if none of its related tables were touched at all
// (spec §4.8 stage 2).
func Applicable(info ChangeInfo, tables map[TableKey]struct{}) bool {
	for t := range tables {
		if tableTouched(info, t) {
			return true
		}
	}
	return false
}

// maxDFSDepth bounds the key-pathless fallback traversal (spec §4.8
// stage 3, "depth-bounded DFS with a maximum depth of 4").
const maxDFSDepth = 4

// ObjectChanged decides whether obj (a row of root) is touched by this
// transaction's changes, for one observer, and if so which root-table
// columns should be reported as changed (spec §4.8 stage 3,
// "per-object reachability").
func ObjectChanged(schema *Schema, info ChangeInfo, root TableKey, obj leaves.ObjectKey, paths []KeyPath, snap Snapshot) (bool, error) {
	if len(paths) == 0 {
		visited := make(map[dfsKey]struct{})
		return dfsReachesChange(schema, info, root, obj, 0, visited, snap)
	}
	for _, path := range paths {
		matched, err := pathReachesChange(schema, info, root, obj, path, snap)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// pathReachesChange walks one key path from obj through schema,
// navigating hop i and then checking hop i's own column on the object
// landed in (the navigate-then-check-same-column rule worked out from
// the key-path filter example: a hop's column is both what you follow
// to get somewhere and what you check once you're there).
func pathReachesChange(schema *Schema, info ChangeInfo, root TableKey, obj leaves.ObjectKey, path KeyPath, snap Snapshot) (bool, error) {
	table := root
	current := []leaves.ObjectKey{obj}

	for _, hop := range path {
		edge, ok := schema.Edge(table, hop.Column)
		if !ok {
			return false, nil // path references an edge the schema doesn't declare
		}

		var next []leaves.ObjectKey
		for _, cur := range current {
			landed, err := navigate(snap, table, hop, cur)
			if err != nil {
				return false, err
			}
			next = append(next, landed...)
		}
		if len(next) == 0 {
			return false, nil
		}
		for _, landed := range next {
			if changedColumn(info, edge.Target, landed, hop.Column) {
				return true, nil
			}
		}
		current = next
		table = edge.Target
	}
	return false, nil
}

type dfsKey struct {
	table  TableKey
	obj    leaves.ObjectKey
	column ColumnKey
}

// dfsReachesChange is the key-pathless fallback: explore every forward
// link and link-list entry (backlink edges are not followed) up to maxDFSDepth,
// recording visited (table, object, column) triples so no object is
// tested twice (spec §4.8 stage 3 final bullet).
func dfsReachesChange(schema *Schema, info ChangeInfo, table TableKey, obj leaves.ObjectKey, depth int, visited map[dfsKey]struct{}, snap Snapshot) (bool, error) {
	if depth > maxDFSDepth {
		return false, nil
	}
	for _, edge := range schema.ForwardEdges(table) {
		key := dfsKey{table: table, obj: obj, column: edge.Column}
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		if changedColumn(info, table, obj, edge.Column) {
			return true, nil
		}

		hop := Hop{Column: edge.Column, Kind: edge.Kind}
		landed, err := navigate(snap, table, hop, obj)
		if err != nil {
			return false, err
		}
		for _, next := range landed {
			if changedColumn(info, edge.Target, next, edge.Column) {
				return true, nil
			}
			matched, err := dfsReachesChange(schema, info, edge.Target, next, depth+1, visited, snap)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
	}
	return false, nil
}
