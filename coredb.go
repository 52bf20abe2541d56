// Package coredb is an embedded object-database storage engine: a
// memory-mapped arena allocator, bit-packed B+-tree array nodes,
// MVCC snapshots over them, a durable commit log, and a pipeline
// that turns raw write-path changes into per-observer change sets.
//
// Query parsing and a user-facing table/row API are deliberately out
// of scope here (spec §1): this package wires the arena, commit log,
// session coordinator and observer dispatcher together, and hands the
// embedding layer typed leaf columns (see the leaves package) to build
// tables on top of.
package coredb

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/commitlog"
	"github.com/gocoredb/coredb/internal/dblog"
	"github.com/gocoredb/coredb/internal/dbutil"
	"github.com/gocoredb/coredb/internal/leaves"
	"github.com/gocoredb/coredb/internal/observer"
	"github.com/gocoredb/coredb/internal/session"
)

// Ref re-exports the arena's block reference type, since every leaf
// column and tree root the embedding layer holds onto is one.
type Ref = arena.Ref

// ObjectKey re-exports the row identifier used throughout the leaf and
// observer layers.
type ObjectKey = leaves.ObjectKey

// defaultDispatchConcurrency bounds how many observers the change
// dispatcher evaluates at once per committed transaction.
const defaultDispatchConcurrency = 8

// Options configures Open. The zero value is a reasonable default:
// sync enabled, no page encryption.
type Options struct {
	// DisableSync skips msync/fsync on every commit (spec §6,
	// "disable_sync_to_disk" — test-only; never set this for data a
	// crash should not lose). If unset, the environment variable of
	// the same name is also consulted.
	DisableSync bool
	// EncryptionKey, if non-nil, enables the AES-CTR page codec (C2)
	// with per-page HMAC.
	EncryptionKey []byte
	// DispatchConcurrency bounds concurrent observer evaluation; <= 0
	// uses defaultDispatchConcurrency.
	DispatchConcurrency int64
}

func (o Options) resolveDisableSync() bool {
	if o.DisableSync {
		return true
	}
	v, ok := os.LookupEnv("disable_sync_to_disk")
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// DB is one open database: an arena-backed file plus its commit log,
// session coordinator, and change-observer dispatcher.
type DB struct {
	dir        string
	arena      *arena.Arena
	log        *commitlog.Log
	session    *session.Session
	schema     *observer.Schema
	dispatcher *observer.Dispatcher
}

// Open opens (creating if absent) the database rooted at dir: dir/data.db
// for the arena, dir/log for the commit log, dir/writer.lock as the
// interprocess writer mutex.
func Open(dir string, opts Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dbutil.Wrap(dbutil.KindOther, "create database directory", err)
	}

	a, err := arena.Open(filepath.Join(dir, "data.db"), opts.EncryptionKey)
	if err != nil {
		return nil, err
	}

	log, err := commitlog.Open(filepath.Join(dir, "log"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	disableSync := opts.resolveDisableSync()
	log.DisableSync = disableSync

	sess := session.Open(a, log, filepath.Join(dir, "writer.lock"))
	sess.DisableSync = disableSync

	concurrency := opts.DispatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultDispatchConcurrency
	}
	schema := observer.NewSchema()

	dblog.Logger.Info("database opened", zap.String("dir", dir))

	return &DB{
		dir:        dir,
		arena:      a,
		log:        log,
		session:    sess,
		schema:     schema,
		dispatcher: observer.NewDispatcher(schema, concurrency),
	}, nil
}

// Close releases the arena mapping and commit log file handles. It
// does not wait for in-flight observer deliveries; callers that need
// that should drain their own dispatch calls first.
func (db *DB) Close() error {
	logErr := db.log.Close()
	arenaErr := db.arena.Close()
	if arenaErr != nil {
		return arenaErr
	}
	return logErr
}

// Schema is the link graph change-observer discovery and reachability
// walk over (spec §4.8). The embedding layer declares table/column
// edges on it before registering observers.
func (db *DB) Schema() *observer.Schema { return db.schema }

// Arena exposes the raw block allocator, for the embedding layer to
// build typed leaf columns (internal/leaves) on top of.
func (db *DB) Arena() *arena.Arena { return db.arena }

// ReadTxn is a snapshot pinned to the version current when it began.
type ReadTxn struct{ inner *session.ReadTxn }

// BeginRead opens a read snapshot at the current top ref (spec §4.6
// "begin_read"). The snapshot never observes later commits.
func (db *DB) BeginRead() *ReadTxn {
	return &ReadTxn{inner: db.session.BeginRead()}
}

// Version is the version this snapshot pins.
func (t *ReadTxn) Version() uint64 { return t.inner.Version }

// Root is the top ref this snapshot pins.
func (t *ReadTxn) Root() Ref { return t.inner.Root }

// End releases the snapshot, letting reclamation advance past it once
// it was the oldest live reader (spec §4.6 "end_read").
func (t *ReadTxn) End() { t.inner.End() }

// WriteTxn is the single in-flight write transaction for this database.
type WriteTxn struct {
	inner *session.WriteTxn
	db    *DB
}

// BeginWrite acquires the single writer slot, blocking until any other
// writer (in this process or another, via the interprocess file lock)
// releases it (spec §4.6 "begin_write").
func (db *DB) BeginWrite() (*WriteTxn, error) {
	w, err := db.session.BeginWrite()
	if err != nil {
		return nil, err
	}
	return &WriteTxn{inner: w, db: db}, nil
}

// BaseRoot and BaseVersion are the snapshot this write started from;
// the caller builds its new tree as a copy-on-write delta from here.
func (w *WriteTxn) BaseRoot() Ref       { return w.inner.BaseRoot() }
func (w *WriteTxn) BaseVersion() uint64 { return w.inner.BaseVersion() }

// SetRoot records the new top ref to publish on Commit.
func (w *WriteTxn) SetRoot(ref Ref) { w.inner.SetRoot(ref) }

// Commit publishes the new root, appends changeset to the commit log,
// and dispatches info to every registered observer whose related
// tables were touched (spec §4.6 "commit" followed by §4.8 stage 4).
// Dispatch runs synchronously on the committing goroutine, after the
// commit is durable, so observer errors never roll back a commit.
func (w *WriteTxn) Commit(changeset []byte, info observer.ChangeInfo, snap observer.Snapshot) (uint64, error) {
	version, err := w.inner.Commit(changeset)
	if err != nil {
		return 0, err
	}
	if info != nil {
		if dispatchErr := w.db.dispatcher.Dispatch(context.Background(), version, info, snap); dispatchErr != nil {
			dblog.Logger.Warn("observer dispatch failed", zap.Uint64("version", version), zap.Error(dispatchErr))
		}
	}
	return version, nil
}

// Rollback discards the transaction, freeing every block it allocated.
func (w *WriteTxn) Rollback() { w.inner.Rollback() }

// RegisterObserver attaches a change observer rooted at table,
// restricted to objects (nil watches every object of table) and
// filtered by paths (nil falls back to depth-bounded reachability,
// spec §4.8 stage 3). cb is invoked once per committed version with a
// non-empty delivery; onErr, if non-nil, is invoked (and the observer
// detached) if preparing a delivery fails.
func (db *DB) RegisterObserver(table observer.TableKey, objects []ObjectKey, paths []observer.KeyPath, cb observer.Callback, onErr observer.ErrorCallback) *observer.Observer {
	return db.dispatcher.Register(table, objects, paths, cb, onErr)
}

// UnregisterObserver detaches o.
func (db *DB) UnregisterObserver(o *observer.Observer) { db.dispatcher.Unregister(o) }

// SuppressObserver skips o's next delivery.
func (db *DB) SuppressObserver(o *observer.Observer) { db.dispatcher.Suppress(o) }
