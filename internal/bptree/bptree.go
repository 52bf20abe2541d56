package bptree

import (
	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree/codec"
	"github.com/gocoredb/coredb/internal/dbutil"
)

// Size returns the tree's total element count (spec "bptree_size").
func Size(a *arena.Arena, root arena.Ref) (uint64, error) {
	if root == 0 {
		return 0, nil
	}
	h, payload, err := readNode(a, root)
	if err != nil {
		return 0, err
	}
	if isLeaf(h) {
		return uint64(codec.Len(h)), nil
	}
	n := codec.Len(h)
	if n == 0 {
		return 0, nil
	}
	cumRef := arena.Ref(codec.GetWidthBitsUnsigned(payload, 64, 0))
	ch, cpayload, err := readNode(a, cumRef)
	if err != nil {
		return 0, err
	}
	return uint64(codec.Get(ch, cpayload, n-1)), nil
}

// Get descends via the cumulative-size table to leaf element i (spec
// "bptree_get").
func Get(a *arena.Arena, root arena.Ref, i uint64) (int64, error) {
	if root == 0 {
		return 0, dbutil.New(dbutil.KindLogicError, "get on empty tree")
	}
	h, payload, err := readNode(a, root)
	if err != nil {
		return 0, err
	}
	if isLeaf(h) {
		if err := requireRefInRange(i, uint64(codec.Len(h))); err != nil {
			return 0, err
		}
		return codec.Get(h, payload, uint32(i)), nil
	}
	_, in, err := readInner(a, root)
	if err != nil {
		return 0, err
	}
	if err := loadCumSizes(a, &in); err != nil {
		return 0, err
	}
	childIdx, offset, _ := childForIndex(in.cumSizes, i)
	return Get(a, in.children[childIdx], offset)
}

// Set copy-on-writes the path to element i, width-promoting the leaf if
// needed, and returns the new root (spec "bptree_set").
func Set(a *arena.Arena, root arena.Ref, i uint64, v int64, version uint64) (arena.Ref, error) {
	if root == 0 {
		return 0, dbutil.New(dbutil.KindLogicError, "set on empty tree")
	}
	h, payload, err := readNode(a, root)
	if err != nil {
		return 0, err
	}
	if isLeaf(h) {
		if err := requireRefInRange(i, uint64(codec.Len(h))); err != nil {
			return 0, err
		}
		values := decodeLeafValues(h, payload)
		values[i] = v
		newRef, err := encodeLeaf(a, values, version)
		if err != nil {
			return 0, err
		}
		freeNode(a, root, h, version)
		return newRef, nil
	}

	_, in, err := readInner(a, root)
	if err != nil {
		return 0, err
	}
	if err := loadCumSizes(a, &in); err != nil {
		return 0, err
	}
	childIdx, offset, _ := childForIndex(in.cumSizes, i)

	newChildRef, err := Set(a, in.children[childIdx], offset, v, version)
	if err != nil {
		return 0, err
	}
	newChildren := append([]arena.Ref(nil), in.children...)
	newChildren[childIdx] = newChildRef

	newRef, err := allocNodeReplacingChildren(a, in.cumSizeRef, newChildren, codec.Len(h))
	if err != nil {
		return 0, err
	}
	freeNode(a, root, h, version)
	return newRef, nil
}

// allocNodeReplacingChildren rebuilds an inner node with a new child
// vector but the same per-child sizes (hence the same cumulative-size
// table ref): used when a Set changes a child's content but not its
// element count.
func allocNodeReplacingChildren(a *arena.Arena, cumSizeRef arena.Ref, children []arena.Ref, n uint32) (arena.Ref, error) {
	payload := make([]byte, 8+int(n)*8)
	codec.SetWidthBitsUnsigned(payload, 64, 0, uint64(cumSizeRef))
	childWords := payload[8:]
	for i, c := range children {
		codec.SetWidthBitsUnsigned(childWords, 64, uint32(i), uint64(c))
	}
	h := codec.Header{IsInnerNode: true, HasRefs: true, Encoding: codec.WidthBits, Width: 64, Size: n, Cap: uint32(len(payload))}
	return allocNode(a, h, payload)
}

// insertResult is the outcome of a recursive insert: either a single
// replacement node, or a split into two siblings that the caller must
// fold into its own child list.
type insertResult struct {
	left      arena.Ref
	leftSize  uint64
	right     arena.Ref // zero unless a split occurred
	rightSize uint64
}

// Insert copy-on-writes the path to index i, splitting leaves and inner
// nodes on overflow, and returns the new root (spec "bptree_insert").
func Insert(a *arena.Arena, root arena.Ref, i uint64, v int64, version uint64) (arena.Ref, error) {
	if root == 0 {
		return encodeLeaf(a, []int64{v}, version)
	}
	res, err := insert(a, root, i, v, version)
	if err != nil {
		return 0, err
	}
	if res.right == 0 {
		return res.left, nil
	}
	return encodeInner(a, []arena.Ref{res.left, res.right}, []uint64{res.leftSize, res.rightSize}, 0, version)
}

func insert(a *arena.Arena, ref arena.Ref, i uint64, v int64, version uint64) (insertResult, error) {
	h, payload, err := readNode(a, ref)
	if err != nil {
		return insertResult{}, err
	}
	if isLeaf(h) {
		return insertLeaf(a, ref, h, payload, int(i), v, version)
	}
	return insertInner(a, ref, h, i, v, version)
}

func insertLeaf(a *arena.Arena, ref arena.Ref, h codec.Header, payload []byte, pos int, v int64, version uint64) (insertResult, error) {
	values := decodeLeafValues(h, payload)

	if len(values)+1 <= MaxLeafSize {
		newValues := insertAt(values, pos, v)
		newRef, err := encodeLeaf(a, newValues, version)
		if err != nil {
			return insertResult{}, err
		}
		freeNode(a, ref, h, version)
		return insertResult{left: newRef, leftSize: uint64(len(newValues))}, nil
	}

	// Overflow: split.
	if pos == len(values) {
		// Append-without-rebalance: the old leaf is untouched, a new
		// single-element right sibling is appended (spec §4.4).
		rRef, err := encodeLeaf(a, []int64{v}, version)
		if err != nil {
			return insertResult{}, err
		}
		return insertResult{left: ref, leftSize: uint64(len(values)), right: rRef, rightSize: 1}, nil
	}

	newValues := insertAt(values, pos, v)
	leftVals := newValues[:pos]
	rightVals := newValues[pos:]
	lRef, err := encodeLeaf(a, leftVals, version)
	if err != nil {
		return insertResult{}, err
	}
	rRef, err := encodeLeaf(a, rightVals, version)
	if err != nil {
		return insertResult{}, err
	}
	freeNode(a, ref, h, version)
	return insertResult{left: lRef, leftSize: uint64(len(leftVals)), right: rRef, rightSize: uint64(len(rightVals))}, nil
}

func insertInner(a *arena.Arena, ref arena.Ref, h codec.Header, i uint64, v int64, version uint64) (insertResult, error) {
	_, in, err := readInner(a, ref)
	if err != nil {
		return insertResult{}, err
	}
	if err := loadCumSizes(a, &in); err != nil {
		return insertResult{}, err
	}

	total := uint64(0)
	if len(in.cumSizes) > 0 {
		total = in.cumSizes[len(in.cumSizes)-1]
	}
	var childIdx int
	var offset uint64
	if i >= total {
		childIdx = len(in.children) - 1
		offset = childSizeAt(in.cumSizes, childIdx)
	} else {
		childIdx, offset, _ = childForIndex(in.cumSizes, i)
	}

	res, err := insert(a, in.children[childIdx], offset, v, version)
	if err != nil {
		return insertResult{}, err
	}

	childSizes := perChildSizes(in.cumSizes)

	if res.right == 0 {
		newChildren := append([]arena.Ref(nil), in.children...)
		newSizes := append([]uint64(nil), childSizes...)
		newChildren[childIdx] = res.left
		newSizes[childIdx] = res.leftSize

		newRef, err := encodeInner(a, newChildren, newSizes, in.cumSizeRef, version)
		if err != nil {
			return insertResult{}, err
		}
		freeNode(a, ref, h, version)
		return insertResult{left: newRef, leftSize: sumSizes(newSizes)}, nil
	}

	newChildren := make([]arena.Ref, 0, len(in.children)+1)
	newSizes := make([]uint64, 0, len(childSizes)+1)
	newChildren = append(newChildren, in.children[:childIdx]...)
	newSizes = append(newSizes, childSizes[:childIdx]...)
	newChildren = append(newChildren, res.left, res.right)
	newSizes = append(newSizes, res.leftSize, res.rightSize)
	newChildren = append(newChildren, in.children[childIdx+1:]...)
	newSizes = append(newSizes, childSizes[childIdx+1:]...)

	if len(newChildren) <= MaxChildren {
		newRef, err := encodeInner(a, newChildren, newSizes, in.cumSizeRef, version)
		if err != nil {
			return insertResult{}, err
		}
		freeNode(a, ref, h, version)
		return insertResult{left: newRef, leftSize: sumSizes(newSizes)}, nil
	}

	// Inner node overflow: split right after the child whose insert
	// caused the event (spec §4.4 "node_ndx is the position of the
	// child whose split caused the event"). In newChildren that child's
	// first half (res.left) sits at index childIdx and its second half
	// (res.right) at childIdx+1, so the cut falls between them.
	nodeNdx := childIdx
	leftChildren := newChildren[:nodeNdx+1]
	rightChildren := newChildren[nodeNdx+1:]
	leftSizes := newSizes[:nodeNdx+1]
	rightSizes := newSizes[nodeNdx+1:]

	leftRef, err := encodeInner(a, leftChildren, leftSizes, 0, version)
	if err != nil {
		return insertResult{}, err
	}
	rightRef, err := encodeInner(a, rightChildren, rightSizes, 0, version)
	if err != nil {
		return insertResult{}, err
	}
	if ch, _, cerr := readNode(a, in.cumSizeRef); cerr == nil {
		freeNode(a, in.cumSizeRef, ch, version)
	}
	freeNode(a, ref, h, version)
	return insertResult{left: leftRef, leftSize: sumSizes(leftSizes), right: rightRef, rightSize: sumSizes(rightSizes)}, nil
}

// eraseResult is the outcome of a recursive erase: either a replacement
// node, or removed=true if the subtree vanished entirely (its last leaf
// element was erased).
type eraseResult struct {
	ref     arena.Ref
	size    uint64
	removed bool
}

// Erase copy-on-writes the path to index i, collapsing empty leaves and
// single-child inner nodes up to the root (spec "bptree_erase").
func Erase(a *arena.Arena, root arena.Ref, i uint64, version uint64) (arena.Ref, error) {
	if root == 0 {
		return 0, dbutil.New(dbutil.KindLogicError, "erase on empty tree")
	}
	res, err := erase(a, root, i, version)
	if err != nil {
		return 0, err
	}
	if res.removed {
		return 0, nil
	}
	return res.ref, nil
}

func erase(a *arena.Arena, ref arena.Ref, i uint64, version uint64) (eraseResult, error) {
	h, payload, err := readNode(a, ref)
	if err != nil {
		return eraseResult{}, err
	}
	if isLeaf(h) {
		return eraseLeaf(a, ref, h, payload, int(i), version)
	}
	return eraseInner(a, ref, h, i, version)
}

func eraseLeaf(a *arena.Arena, ref arena.Ref, h codec.Header, payload []byte, pos int, version uint64) (eraseResult, error) {
	values := decodeLeafValues(h, payload)
	values = removeAt(values, pos)
	freeNode(a, ref, h, version)
	if len(values) == 0 {
		return eraseResult{removed: true}, nil
	}
	newRef, err := encodeLeaf(a, values, version)
	if err != nil {
		return eraseResult{}, err
	}
	return eraseResult{ref: newRef, size: uint64(len(values))}, nil
}

func eraseInner(a *arena.Arena, ref arena.Ref, h codec.Header, i uint64, version uint64) (eraseResult, error) {
	_, in, err := readInner(a, ref)
	if err != nil {
		return eraseResult{}, err
	}
	if err := loadCumSizes(a, &in); err != nil {
		return eraseResult{}, err
	}
	childIdx, offset, _ := childForIndex(in.cumSizes, i)

	res, err := erase(a, in.children[childIdx], offset, version)
	if err != nil {
		return eraseResult{}, err
	}

	childSizes := perChildSizes(in.cumSizes)
	var newChildren []arena.Ref
	var newSizes []uint64
	if res.removed {
		newChildren = append(append([]arena.Ref(nil), in.children[:childIdx]...), in.children[childIdx+1:]...)
		newSizes = append(append([]uint64(nil), childSizes[:childIdx]...), childSizes[childIdx+1:]...)
	} else {
		newChildren = append([]arena.Ref(nil), in.children...)
		newSizes = append([]uint64(nil), childSizes...)
		newChildren[childIdx] = res.ref
		newSizes[childIdx] = res.size
	}

	if ch, _, cerr := readNode(a, in.cumSizeRef); cerr == nil {
		freeNode(a, in.cumSizeRef, ch, version)
	}
	freeNode(a, ref, h, version)

	if len(newChildren) == 0 {
		return eraseResult{removed: true}, nil
	}
	if len(newChildren) == 1 {
		// Collapse rule (spec §4.4): a single-child inner node is
		// replaced by that child.
		return eraseResult{ref: newChildren[0], size: newSizes[0]}, nil
	}

	newRef, err := encodeInner(a, newChildren, newSizes, 0, version)
	if err != nil {
		return eraseResult{}, err
	}
	return eraseResult{ref: newRef, size: sumSizes(newSizes)}, nil
}

// VisitLeaves calls f(leafRef, leafOffset, start, end) for each leaf
// intersecting [lo, hi) (spec "bptree_visit_leaves"). leafOffset is the
// global element index of the leaf's first element; start/end are the
// (possibly leaf-clipped) bounds of the intersection within the leaf.
func VisitLeaves(a *arena.Arena, root arena.Ref, lo, hi uint64, f func(leafRef arena.Ref, leafOffset, start, end uint64) bool) error {
	if root == 0 || lo >= hi {
		return nil
	}
	err := visitLeaves(a, root, 0, lo, hi, f)
	if err == errStopVisit {
		return nil
	}
	return err
}

func visitLeaves(a *arena.Arena, ref arena.Ref, base, lo, hi uint64, f func(arena.Ref, uint64, uint64, uint64) bool) error {
	h, payload, err := readNode(a, ref)
	if err != nil {
		return err
	}
	if isLeaf(h) {
		n := uint64(codec.Len(h))
		if lo < base+n && hi > base {
			start := uint64(0)
			if lo > base {
				start = lo - base
			}
			end := n
			if hi < base+n {
				end = hi - base
			}
			if !f(ref, base, start, end) {
				return errStopVisit
			}
		}
		return nil
	}

	_, in, err := readInner(a, ref)
	if err != nil {
		return err
	}
	if err := loadCumSizes(a, &in); err != nil {
		return err
	}
	childBase := base
	for idx, child := range in.children {
		size := childSizeAt(in.cumSizes, idx)
		childEnd := childBase + size
		if lo < childEnd && hi > childBase {
			if err := visitLeaves(a, child, childBase, lo, hi, f); err != nil {
				if err == errStopVisit {
					return errStopVisit
				}
				return err
			}
		}
		childBase = childEnd
	}
	return nil
}

// errStopVisit is a sentinel used internally to unwind VisitLeaves when
// f returns false; it never escapes VisitLeaves itself.
var errStopVisit = dbutil.New(dbutil.KindLogicError, "visit stopped")

// NodeInfo is the diagnostic shape of one tree node, for dump tooling.
type NodeInfo struct {
	Ref      arena.Ref
	Depth    int
	Header   codec.Header
	Children int // 0 for leaves
}

// Walk visits every node of the tree rooted at root, depth-first,
// parent before children — a read-only structural dump (dbdump's
// "tree" subcommand), not used on any commit or read path.
func Walk(a *arena.Arena, root arena.Ref, f func(NodeInfo)) error {
	if root == 0 {
		return nil
	}
	return walk(a, root, 0, f)
}

func walk(a *arena.Arena, ref arena.Ref, depth int, f func(NodeInfo)) error {
	h, _, err := readNode(a, ref)
	if err != nil {
		return err
	}
	if isLeaf(h) {
		f(NodeInfo{Ref: ref, Depth: depth, Header: h})
		return nil
	}
	_, in, err := readInner(a, ref)
	if err != nil {
		return err
	}
	f(NodeInfo{Ref: ref, Depth: depth, Header: h, Children: len(in.children)})
	for _, child := range in.children {
		if err := walk(a, child, depth+1, f); err != nil {
			return err
		}
	}
	return nil
}

func childSizeAt(cumSizes []uint64, idx int) uint64 {
	if idx == 0 {
		if len(cumSizes) == 0 {
			return 0
		}
		return cumSizes[0]
	}
	return cumSizes[idx] - cumSizes[idx-1]
}

func perChildSizes(cumSizes []uint64) []uint64 {
	out := make([]uint64, len(cumSizes))
	for i := range cumSizes {
		out[i] = childSizeAt(cumSizes, i)
	}
	return out
}

func sumSizes(sizes []uint64) uint64 {
	var total uint64
	for _, s := range sizes {
		total += s
	}
	return total
}
