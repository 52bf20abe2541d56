package coredb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gocoredb/coredb/internal/observer"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), Options{DisableSync: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenStartsAtVersionZero(t *testing.T) {
	db := openTestDB(t)
	r := db.BeginRead()
	defer r.End()
	require.Zero(t, r.Version())
	require.Zero(t, r.Root())
}

func TestCommitPublishesNewRootWithoutObservers(t *testing.T) {
	db := openTestDB(t)

	w, err := db.BeginWrite()
	require.NoError(t, err)
	ref, err := db.Arena().Alloc(32)
	require.NoError(t, err)
	w.SetRoot(ref)

	version, err := w.Commit([]byte("changeset"), nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	r := db.BeginRead()
	defer r.End()
	require.EqualValues(t, 1, r.Version())
	require.Equal(t, ref, r.Root())
}

func TestCommitDispatchesToRegisteredObservers(t *testing.T) {
	db := openTestDB(t)

	const employeeTable observer.TableKey = 1
	const nameColumn observer.ColumnKey = 1

	delivered := make(chan observer.Delivery, 1)
	obs := db.RegisterObserver(employeeTable, nil, nil, func(d observer.Delivery) {
		delivered <- d
	}, nil)
	defer db.UnregisterObserver(obs)

	w, err := db.BeginWrite()
	require.NoError(t, err)
	ref, err := db.Arena().Alloc(32)
	require.NoError(t, err)
	w.SetRoot(ref)

	info := observer.NewChangeInfo()
	info.RecordModification(employeeTable, ObjectKey(7), nameColumn)

	_, err = w.Commit([]byte("changeset"), info, nil)
	require.NoError(t, err)

	select {
	case d := <-delivered:
		cols, ok := d.Modified[ObjectKey(7)]
		require.True(t, ok)
		require.Equal(t, []observer.ColumnKey{nameColumn}, cols)
	default:
		t.Fatalf("expected a delivery")
	}
}

func TestRollbackLeavesVersionUnchanged(t *testing.T) {
	db := openTestDB(t)

	w, err := db.BeginWrite()
	require.NoError(t, err)
	ref, err := db.Arena().Alloc(16)
	require.NoError(t, err)
	w.SetRoot(ref)
	w.Rollback()

	r := db.BeginRead()
	defer r.End()
	require.Zero(t, r.Version())
}
