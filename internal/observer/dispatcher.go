package observer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gocoredb/coredb/internal/dblog"
	"github.com/gocoredb/coredb/internal/leaves"
)

// Delivery is what one observer receives for one version advance (spec
// §4.8 stage 4, "emission").
type Delivery struct {
	Version    uint64
	Deletions  []leaves.ObjectKey
	Insertions []leaves.ObjectKey
	// Modified maps a changed root-table object to the columns known to
	// have changed on it directly. An object reached only indirectly,
	// through a key path into another table, has a nil (not empty)
	// column list: something it depends on changed, but no root-table
	// column did.
	Modified map[leaves.ObjectKey][]ColumnKey
	Moves    map[int]int
}

// Callback receives one delivery. Callback is invoked with the
// observer's mutex released, so it may freely register or unregister
// observers, including itself.
type Callback func(Delivery)

// ErrorCallback receives a preparation-stage failure. The observer that
// produced it is detached before the callback runs (spec's
// ObserverError semantics: other observers are unaffected).
type ErrorCallback func(error)

// Observer is one registered consumer of change notifications over a
// root table, optionally restricted to a specific watch list of
// objects and a set of key paths.
type Observer struct {
	mu         sync.Mutex
	root       TableKey
	paths      []KeyPath
	tables     map[TableKey]struct{}
	objects    []leaves.ObjectKey
	objectSet  map[leaves.ObjectKey]struct{}
	callback   Callback
	onError    ErrorCallback
	suppressed bool
	detached   bool
}

func (o *Observer) watches(obj leaves.ObjectKey) bool {
	if o.objectSet == nil {
		return true // no explicit watch list: observe every object of root
	}
	_, ok := o.objectSet[obj]
	return ok
}

// Dispatcher drives every observer in one process (spec §4.8,
// "Concurrency": a single dispatcher per realm; per-observer mutex
// serialises book-keeping but is released before user callbacks run).
type Dispatcher struct {
	schema *Schema
	sem    *semaphore.Weighted

	mu        sync.Mutex
	observers []*Observer
}

// NewDispatcher returns a dispatcher that evaluates up to maxConcurrent
// observers at once for a single Dispatch call.
func NewDispatcher(schema *Schema, maxConcurrent int64) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{schema: schema, sem: semaphore.NewWeighted(maxConcurrent)}
}

// Register attaches a new observer watching root, restricted to
// objects (nil means "every object of root") and filtered by paths
// (nil means "fall back to depth-bounded DFS", spec §4.8 stage 3).
func (d *Dispatcher) Register(root TableKey, objects []leaves.ObjectKey, paths []KeyPath, cb Callback, onErr ErrorCallback) *Observer {
	o := &Observer{
		root:     root,
		paths:    paths,
		tables:   DiscoverTables(d.schema, root, paths),
		objects:  objects,
		callback: cb,
		onError:  onErr,
	}
	if objects != nil {
		o.objectSet = make(map[leaves.ObjectKey]struct{}, len(objects))
		for _, obj := range objects {
			o.objectSet[obj] = struct{}{}
		}
	}

	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
	return o
}

// Unregister detaches o; any delivery already in flight for it still
// completes (spec's cancellation rule).
func (d *Dispatcher) Unregister(o *Observer) {
	o.mu.Lock()
	o.detached = true
	o.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.observers {
		if cur == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			break
		}
	}
}

// Suppress skips o's next notification, then resumes normal delivery.
func (d *Dispatcher) Suppress(o *Observer) {
	o.mu.Lock()
	o.suppressed = true
	o.mu.Unlock()
}

// Dispatch evaluates every registered observer against one
// transaction's change info and delivers non-empty change sets.
// Observers run concurrently, bounded by the dispatcher's semaphore; a
// failure preparing one observer's delivery detaches only that
// observer and routes to its error callback (spec §4.8, "Cancellation"
// and "ObserverError").
func (d *Dispatcher) Dispatch(ctx context.Context, version uint64, info ChangeInfo, snap Snapshot) error {
	d.mu.Lock()
	targets := make([]*Observer, len(d.observers))
	copy(targets, d.observers)
	d.mu.Unlock()

	group, gctx := errgroup.WithContext(ctx)
	for _, o := range targets {
		o := o
		group.Go(func() error {
			if err := d.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer d.sem.Release(1)
			d.deliverOne(o, version, info, snap)
			return nil
		})
	}
	return group.Wait()
}

func (d *Dispatcher) deliverOne(o *Observer, version uint64, info ChangeInfo, snap Snapshot) {
	o.mu.Lock()
	if o.detached {
		o.mu.Unlock()
		return
	}
	if o.suppressed {
		o.suppressed = false
		o.mu.Unlock()
		return
	}
	callback, onError := o.callback, o.onError
	o.mu.Unlock()

	delivery, ok, err := evaluate(d.schema, o, version, info, snap)
	if err != nil {
		d.Unregister(o)
		dblog.Logger.Warn("observer detached after preparation error")
		if onError != nil {
			onError(err)
		}
		return
	}
	if !ok {
		return
	}
	callback(delivery)
}

// evaluate computes one observer's delivery (spec §4.8 stages 2-4),
// returning ok=false when the change set is empty and nothing should
// be delivered.
func evaluate(schema *Schema, o *Observer, version uint64, info ChangeInfo, snap Snapshot) (Delivery, bool, error) {
	if !Applicable(info, o.tables) {
		return Delivery{}, false, nil
	}

	del := Delivery{Version: version}
	modified := make(map[leaves.ObjectKey][]ColumnKey)

	if tc, ok := info[o.root]; ok {
		for obj := range tc.Deletions {
			if o.watches(obj) {
				del.Deletions = append(del.Deletions, obj)
			}
		}
		del.Insertions = append(del.Insertions, keys(tc.Insertions)...)
		if len(tc.Moves) > 0 {
			del.Moves = make(map[int]int, len(tc.Moves))
			for from, to := range tc.Moves {
				del.Moves[from] = to
			}
		}
		for obj, cols := range tc.Modifications {
			if !o.watches(obj) {
				continue
			}
			modified[obj] = sortedColumns(cols)
		}
	}

	for _, obj := range o.objects {
		if _, already := modified[obj]; already {
			continue
		}
		changed, err := ObjectChanged(schema, info, o.root, obj, o.paths, snap)
		if err != nil {
			return Delivery{}, false, err
		}
		if changed {
			modified[obj] = nil
		}
	}

	del.Modified = modified
	if len(del.Deletions) == 0 && len(del.Insertions) == 0 && len(modified) == 0 && len(del.Moves) == 0 {
		return del, false, nil
	}
	return del, true, nil
}

func keys(set map[leaves.ObjectKey]struct{}) []leaves.ObjectKey {
	out := make([]leaves.ObjectKey, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func sortedColumns(cols map[ColumnKey]struct{}) []ColumnKey {
	out := make([]ColumnKey, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
