package observer

import (
	"context"
	"testing"

	"github.com/gocoredb/coredb/internal/leaves"
)

// fakeSnapshot is an in-memory stand-in for a versioned snapshot,
// sufficient to exercise navigate() without a real arena/bptree.
type fakeSnapshot struct {
	forward map[TableKey]map[ColumnKey]map[leaves.ObjectKey]leaves.ObjectKey
}

func newFakeSnapshot() *fakeSnapshot {
	return &fakeSnapshot{forward: make(map[TableKey]map[ColumnKey]map[leaves.ObjectKey]leaves.ObjectKey)}
}

func (f *fakeSnapshot) setForward(table TableKey, column ColumnKey, obj, target leaves.ObjectKey) {
	cols, ok := f.forward[table]
	if !ok {
		cols = make(map[ColumnKey]map[leaves.ObjectKey]leaves.ObjectKey)
		f.forward[table] = cols
	}
	rows, ok := cols[column]
	if !ok {
		rows = make(map[leaves.ObjectKey]leaves.ObjectKey)
		cols[column] = rows
	}
	rows[obj] = target
}

func (f *fakeSnapshot) Forward(table TableKey, column ColumnKey, obj leaves.ObjectKey) (leaves.ObjectKey, bool, error) {
	rows, ok := f.forward[table][column]
	if !ok {
		return 0, false, nil
	}
	target, ok := rows[obj]
	return target, ok, nil
}

func (f *fakeSnapshot) LinkList(table TableKey, column ColumnKey, obj leaves.ObjectKey) ([]leaves.ObjectKey, error) {
	target, ok, err := f.Forward(table, column, obj)
	if err != nil || !ok {
		return nil, err
	}
	return []leaves.ObjectKey{target}, nil
}

func (f *fakeSnapshot) Backlinks(table TableKey, column ColumnKey, obj leaves.ObjectKey) ([]leaves.ObjectKey, error) {
	var out []leaves.ObjectKey
	for origin, target := range f.forward[table][column] {
		if target == obj {
			out = append(out, origin)
		}
	}
	return out, nil
}

const (
	employeeTable TableKey  = 1
	managerColumn ColumnKey = 1
	nameColumn    ColumnKey = 2
)

func managerManagerFixture() (*Schema, *fakeSnapshot) {
	schema := NewSchema()
	schema.AddEdge(employeeTable, managerColumn, HopForward, employeeTable)

	snap := newFakeSnapshot()
	// Employee[0].manager == Employee[3], Employee[3].manager == Employee[7]
	snap.setForward(employeeTable, managerColumn, leaves.NewObjectKey(0, false), leaves.NewObjectKey(3, false))
	snap.setForward(employeeTable, managerColumn, leaves.NewObjectKey(3, false), leaves.NewObjectKey(7, false))
	return schema, snap
}

// TestKeyPathFilterIgnoresUnrelatedColumn reproduces the spec's worked
// key-path example: mutating Employee[0].name alone must not satisfy
// the manager.manager key path.
func TestKeyPathFilterIgnoresUnrelatedColumn(t *testing.T) {
	schema, snap := managerManagerFixture()
	info := NewChangeInfo()
	info.RecordModification(employeeTable, leaves.NewObjectKey(0, false), nameColumn)

	path := KeyPath{{Column: managerColumn, Kind: HopForward}, {Column: managerColumn, Kind: HopForward}}
	changed, err := ObjectChanged(schema, info, employeeTable, leaves.NewObjectKey(0, false), []KeyPath{path}, snap)
	if err != nil {
		t.Fatalf("ObjectChanged: %v", err)
	}
	if changed {
		t.Fatalf("unrelated column change should not satisfy the manager.manager key path")
	}
}

// TestKeyPathFilterFindsDeepChange is the second half of the same
// worked example: mutating Employee[7].manager (the grand-manager of
// Employee[0]) must surface Employee[0] as modified via the
// manager.manager path.
func TestKeyPathFilterFindsDeepChange(t *testing.T) {
	schema, snap := managerManagerFixture()
	info := NewChangeInfo()
	info.RecordModification(employeeTable, leaves.NewObjectKey(7, false), managerColumn)

	path := KeyPath{{Column: managerColumn, Kind: HopForward}, {Column: managerColumn, Kind: HopForward}}
	changed, err := ObjectChanged(schema, info, employeeTable, leaves.NewObjectKey(0, false), []KeyPath{path}, snap)
	if err != nil {
		t.Fatalf("ObjectChanged: %v", err)
	}
	if !changed {
		t.Fatalf("mutating the grand-manager's manager column should satisfy the manager.manager key path")
	}
}

func TestApplicableRequiresADiscoveredTableTouched(t *testing.T) {
	info := NewChangeInfo()
	info.RecordModification(employeeTable, leaves.NewObjectKey(0, false), nameColumn)

	tables := map[TableKey]struct{}{employeeTable: {}}
	if !Applicable(info, tables) {
		t.Fatalf("expected applicable: root table was modified")
	}

	otherTables := map[TableKey]struct{}{99: {}}
	if Applicable(info, otherTables) {
		t.Fatalf("expected inapplicable: no discovered table touched")
	}
}

func TestApplicableIgnoresDeletionOnlyTables(t *testing.T) {
	info := NewChangeInfo()
	info.RecordDeletion(employeeTable, leaves.NewObjectKey(0, false))

	tables := map[TableKey]struct{}{employeeTable: {}}
	if Applicable(info, tables) {
		t.Fatalf("a table touched only by deletions should not count as applicable")
	}
}

func TestDiscoverTablesWithNoKeyPathsWalksForwardEdgesOnly(t *testing.T) {
	const orderTable TableKey = 2
	const customerTable TableKey = 3
	const backlinkColumn ColumnKey = 3

	schema := NewSchema()
	schema.AddEdge(orderTable, backlinkColumn, HopForward, customerTable)
	schema.AddEdge(customerTable, managerColumn, HopBacklink, orderTable)

	tables := DiscoverTables(schema, orderTable, nil)
	if _, ok := tables[customerTable]; !ok {
		t.Fatalf("forward edge to customerTable should be discovered")
	}
	if _, ok := tables[orderTable]; !ok {
		t.Fatalf("root table is always discovered")
	}
}

func TestDiscoverTablesWithKeyPathsFollowsNamedBacklink(t *testing.T) {
	const orderTable TableKey = 2
	const customerTable TableKey = 3
	const placedByColumn ColumnKey = 3
	const ordersColumn ColumnKey = 4

	schema := NewSchema()
	schema.AddEdge(orderTable, placedByColumn, HopForward, customerTable)
	schema.AddEdge(customerTable, ordersColumn, HopBacklink, orderTable)

	path := KeyPath{{Column: placedByColumn, Kind: HopForward}, {Column: ordersColumn, Kind: HopBacklink}}
	tables := DiscoverTables(schema, orderTable, []KeyPath{path})
	if _, ok := tables[customerTable]; !ok {
		t.Fatalf("path-named table customerTable should be discovered")
	}
}

func TestDispatchDeliversDeletionsInsertionsAndModifications(t *testing.T) {
	schema := NewSchema()
	dispatcher := NewDispatcher(schema, 4)

	var got *Delivery
	obs := dispatcher.Register(employeeTable, nil, nil, func(d Delivery) {
		d := d
		got = &d
	}, nil)
	defer dispatcher.Unregister(obs)

	info := NewChangeInfo()
	info.RecordDeletion(employeeTable, leaves.NewObjectKey(1, false))
	info.RecordInsertion(employeeTable, leaves.NewObjectKey(2, false))
	info.RecordModification(employeeTable, leaves.NewObjectKey(3, false), nameColumn)

	if err := dispatcher.Dispatch(context.Background(), 1, info, newFakeSnapshot()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a delivery")
	}
	if len(got.Deletions) != 1 || got.Deletions[0] != leaves.NewObjectKey(1, false) {
		t.Fatalf("Deletions = %v", got.Deletions)
	}
	if len(got.Insertions) != 1 || got.Insertions[0] != leaves.NewObjectKey(2, false) {
		t.Fatalf("Insertions = %v", got.Insertions)
	}
	cols, ok := got.Modified[leaves.NewObjectKey(3, false)]
	if !ok || len(cols) != 1 || cols[0] != nameColumn {
		t.Fatalf("Modified = %v", got.Modified)
	}
}

func TestDispatchSkipsEmptyChangeSets(t *testing.T) {
	schema := NewSchema()
	dispatcher := NewDispatcher(schema, 4)

	delivered := false
	obs := dispatcher.Register(employeeTable, nil, nil, func(Delivery) { delivered = true }, nil)
	defer dispatcher.Unregister(obs)

	info := NewChangeInfo()
	info.RecordModification(TableKey(999), leaves.NewObjectKey(0, false), nameColumn)

	if err := dispatcher.Dispatch(context.Background(), 1, info, newFakeSnapshot()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if delivered {
		t.Fatalf("unrelated table change should not trigger a delivery")
	}
}

func TestSuppressSkipsExactlyOneDelivery(t *testing.T) {
	schema := NewSchema()
	dispatcher := NewDispatcher(schema, 4)

	count := 0
	obs := dispatcher.Register(employeeTable, nil, nil, func(Delivery) { count++ }, nil)
	defer dispatcher.Unregister(obs)
	dispatcher.Suppress(obs)

	info := NewChangeInfo()
	info.RecordModification(employeeTable, leaves.NewObjectKey(0, false), nameColumn)

	if err := dispatcher.Dispatch(context.Background(), 1, info, newFakeSnapshot()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if count != 0 {
		t.Fatalf("suppressed round delivered anyway")
	}
	if err := dispatcher.Dispatch(context.Background(), 2, info, newFakeSnapshot()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 after suppression lapses", count)
	}
}

func TestUnregisterFromWithinCallbackDoesNotDeadlock(t *testing.T) {
	schema := NewSchema()
	dispatcher := NewDispatcher(schema, 4)

	var obs *Observer
	obs = dispatcher.Register(employeeTable, nil, nil, func(Delivery) {
		dispatcher.Unregister(obs)
	}, nil)

	info := NewChangeInfo()
	info.RecordModification(employeeTable, leaves.NewObjectKey(0, false), nameColumn)
	if err := dispatcher.Dispatch(context.Background(), 1, info, newFakeSnapshot()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	dispatcher.mu.Lock()
	remaining := len(dispatcher.observers)
	dispatcher.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("observer should have detached itself, remaining = %d", remaining)
	}
}
