package observer

// DiscoverTables enumerates the tables reachable from root that an
// observer with the given key paths cares about (spec §4.8 stage 1,
// "related-table discovery").
//
// With no key paths, every table reachable via forward links/link
// lists from root is included (a full forward-reachable closure,
// cycle-safe). With key paths, the enumeration is restricted to
// exactly the tables each path actually visits — including backlink
// hops, since those are only ever followed when a path names them
// explicitly.
func DiscoverTables(schema *Schema, root TableKey, paths []KeyPath) map[TableKey]struct{} {
	visited := map[TableKey]struct{}{root: {}}

	if len(paths) == 0 {
		walkForward(schema, root, visited)
		return visited
	}

	for _, path := range paths {
		table := root
		for _, hop := range path {
			edge, ok := schema.Edge(table, hop.Column)
			if !ok {
				break // path references an undeclared edge; stop walking it
			}
			if _, seen := visited[edge.Target]; seen {
				table = edge.Target
				continue // already discovered; still descend to validate the rest of the path
			}
			visited[edge.Target] = struct{}{}
			table = edge.Target
		}
	}
	return visited
}

// walkForward is a depth-first traversal over forward-link/link-list
// edges only, refusing to revisit a table already in visited (the
// cycle-detection rule of spec §4.8 stage 1). Structurally the same
// shape as file.go's walkGroup: visit, then recurse into each child,
// with the visited set standing in for "don't re-walk a group we've
// already rendered".
func walkForward(schema *Schema, table TableKey, visited map[TableKey]struct{}) {
	for _, edge := range schema.ForwardEdges(table) {
		if _, seen := visited[edge.Target]; seen {
			continue
		}
		visited[edge.Target] = struct{}{}
		walkForward(schema, edge.Target, visited)
	}
}
