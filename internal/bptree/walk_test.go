package bptree

import (
	"testing"

	"github.com/gocoredb/coredb/internal/arena"
)

func TestWalkVisitsRootBeforeChildrenAndCoversAllLeaves(t *testing.T) {
	a := openTestArena(t)
	var root arena.Ref
	var err error
	const n = MaxLeafSize + 200
	for i := 0; i < n; i++ {
		root, err = Insert(a, root, uint64(i), int64(i), 1)
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	var nodes []NodeInfo
	if err := Walk(a, root, func(info NodeInfo) {
		nodes = append(nodes, info)
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if len(nodes) < 2 {
		t.Fatalf("expected at least an inner node and its leaves, got %d nodes", len(nodes))
	}
	if nodes[0].Ref != root || nodes[0].Depth != 0 || nodes[0].Children == 0 {
		t.Fatalf("first visited node = %+v, want the inner root", nodes[0])
	}

	var leafElements uint32
	for _, n := range nodes[1:] {
		if n.Depth != 1 {
			t.Fatalf("expected a two-level tree, found node at depth %d", n.Depth)
		}
		if n.Children != 0 {
			t.Fatalf("expected only leaves below the root, found inner node %+v", n)
		}
		leafElements += n.Header.Size
	}
	if leafElements != n {
		t.Fatalf("leaf element counts summed to %d, want %d", leafElements, n)
	}
}

func TestWalkOnEmptyTreeVisitsNothing(t *testing.T) {
	a := openTestArena(t)
	visited := 0
	if err := Walk(a, 0, func(NodeInfo) { visited++ }); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if visited != 0 {
		t.Fatalf("expected no visits for a zero root ref, got %d", visited)
	}
}
