package leaves

import "testing"

func TestLinkKeysEqualIgnoresUnresolvedBit(t *testing.T) {
	resolved := NewObjectKey(42, false)
	unresolved := NewObjectKey(42, true)
	if !LinkKeysEqual(resolved, unresolved) {
		t.Fatalf("keys for the same row should compare equal regardless of the unresolved bit")
	}
	other := NewObjectKey(43, false)
	if LinkKeysEqual(resolved, other) {
		t.Fatalf("keys for different rows must not compare equal")
	}
}

func TestSetLinkUpdatesBacklinksAtomically(t *testing.T) {
	a := openBlobTestArena(t)
	var link LinkColumn
	var backlinks BacklinkColumn

	if err := link.Insert(a, 0, 0, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	for i := uint64(0); i < 3; i++ {
		if err := backlinks.List.Insert(a, i, nil, 1); err != nil {
			t.Fatalf("backlinks Insert(%d): %v", i, err)
		}
	}

	origin := NewObjectKey(0, false)
	targetA := NewObjectKey(1, false)
	targetB := NewObjectKey(2, false)

	if err := SetLink(a, &link, &backlinks, 0, origin, 0, targetA, 2); err != nil {
		t.Fatalf("SetLink to targetA: %v", err)
	}
	origins, err := backlinks.Origins(a, targetA.RowIndex())
	if err != nil {
		t.Fatalf("Origins: %v", err)
	}
	if len(origins) != 1 || !LinkKeysEqual(origins[0], origin) {
		t.Fatalf("targetA backlinks = %v, want [origin]", origins)
	}

	if err := SetLink(a, &link, &backlinks, 0, origin, targetA, targetB, 3); err != nil {
		t.Fatalf("SetLink to targetB: %v", err)
	}
	origins, err = backlinks.Origins(a, targetA.RowIndex())
	if err != nil {
		t.Fatalf("Origins after move: %v", err)
	}
	if len(origins) != 0 {
		t.Fatalf("targetA should have no backlinks after the link moved, got %v", origins)
	}
	origins, err = backlinks.Origins(a, targetB.RowIndex())
	if err != nil {
		t.Fatalf("Origins: %v", err)
	}
	if len(origins) != 1 || !LinkKeysEqual(origins[0], origin) {
		t.Fatalf("targetB backlinks = %v, want [origin]", origins)
	}
}

func TestLinkListAddRemoveMaintainsBacklinks(t *testing.T) {
	a := openBlobTestArena(t)
	var links LinkListColumn
	var backlinks BacklinkColumn

	if err := links.Insert(a, 0, nil, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := backlinks.List.Insert(a, 0, nil, 1); err != nil {
		t.Fatalf("backlinks Insert: %v", err)
	}

	origin := NewObjectKey(5, false)
	target := NewObjectKey(0, false)

	if err := AddLinkListEntry(a, &links, &backlinks, 0, origin, target, 2); err != nil {
		t.Fatalf("AddLinkListEntry: %v", err)
	}
	got, err := links.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || !LinkKeysEqual(got[0], target) {
		t.Fatalf("link list = %v, want [target]", got)
	}
	origins, err := backlinks.Origins(a, 0)
	if err != nil {
		t.Fatalf("Origins: %v", err)
	}
	if len(origins) != 1 || !LinkKeysEqual(origins[0], origin) {
		t.Fatalf("backlinks = %v, want [origin]", origins)
	}

	if err := RemoveLinkListEntry(a, &links, &backlinks, 0, origin, target, 3); err != nil {
		t.Fatalf("RemoveLinkListEntry: %v", err)
	}
	got, err = links.Get(a, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("link list should be empty after Remove, got %v", got)
	}
	origins, err = backlinks.Origins(a, 0)
	if err != nil {
		t.Fatalf("Origins: %v", err)
	}
	if len(origins) != 0 {
		t.Fatalf("backlinks should be empty after Remove, got %v", origins)
	}
}
