package btree

import (
	"fmt"
	"math"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

// Walk calls fn for every key in ascending order.
func (t *BTree) Walk(fn func(id int32, offset int64) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return err
	}
	return t.walk(t.header.RootRRN, fn, 0)
}

func (t *BTree) walk(rrn int32, fn func(int32, int64) error, depth int) error {
	if rrn == NilRRN {
		return nil
	}
	if depth > t.maxDepth() {
		return fmt.Errorf("%w: walk exceeds %d levels", dberror.ErrRecordLinkCorrupt, t.maxDepth())
	}
	p := t.readPage(rrn)
	for i, k := range p.Keys {
		if !p.IsLeaf() {
			if err := t.walk(p.Children[i], fn, depth+1); err != nil {
				return err
			}
		}
		if err := fn(k, p.Offsets[i]); err != nil {
			return err
		}
	}
	if !p.IsLeaf() {
		return t.walk(p.Children[len(p.Children)-1], fn, depth+1)
	}
	return nil
}

// Dump returns the reachable pages in breadth-first order.
func (t *BTree) Dump() ([]*Page, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return nil, err
	}
	var out []*Page
	queue := []int32{}
	if t.header.RootRRN != NilRRN {
		queue = append(queue, t.header.RootRRN)
	}
	seen := make(map[int32]struct{})
	for len(queue) > 0 {
		rrn := queue[0]
		queue = queue[1:]
		if _, dup := seen[rrn]; dup {
			return nil, fmt.Errorf("%w: page %d reachable twice", dberror.ErrRecordLinkCorrupt, rrn)
		}
		seen[rrn] = struct{}{}
		p := t.readPage(rrn)
		out = append(out, p)
		queue = append(queue, p.Children...)
	}
	return out, nil
}

// Verify checks the structural invariants of the tree: key bounds and
// ordering, uniform leaf depth, page kinds and the persisted node count.
func (t *BTree) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return err
	}
	if t.header.RootRRN == NilRRN {
		if t.header.NodeCount != 0 {
			return fmt.Errorf("%w: empty tree with node count %d", dberror.ErrTreeInvariant, t.header.NodeCount)
		}
		return nil
	}
	v := &verifier{t: t, seen: make(map[int32]struct{}), leafDepth: -1}
	if err := v.check(t.header.RootRRN, math.MinInt64, math.MaxInt64, 0); err != nil {
		return err
	}
	if int32(len(v.seen)) != t.header.NodeCount {
		return fmt.Errorf("%w: %d reachable pages, header counts %d", dberror.ErrTreeInvariant, len(v.seen), t.header.NodeCount)
	}
	return nil
}

type verifier struct {
	t         *BTree
	seen      map[int32]struct{}
	leafDepth int
}

// check validates the subtree at rrn; every key must lie strictly within (lo, hi).
func (v *verifier) check(rrn int32, lo, hi int64, depth int) error {
	if _, dup := v.seen[rrn]; dup {
		return fmt.Errorf("%w: page %d reachable twice", dberror.ErrRecordLinkCorrupt, rrn)
	}
	v.seen[rrn] = struct{}{}
	p, err := v.t.dm.readPage(rrn)
	if err != nil {
		return err
	}

	isRoot := rrn == v.t.header.RootRRN
	if len(p.Keys) > MaxKeys || (!isRoot && len(p.Keys) < MinKeys) || (isRoot && len(p.Keys) == 0) {
		return fmt.Errorf("%w: page %d holds %d keys", dberror.ErrTreeInvariant, rrn, len(p.Keys))
	}
	wantKind := KindInternal
	switch {
	case p.IsLeaf():
		wantKind = KindLeaf
	case isRoot:
		wantKind = KindRoot
	}
	if p.Kind != wantKind {
		return fmt.Errorf("%w: page %d has kind %d, want %d", dberror.ErrTreeInvariant, rrn, p.Kind, wantKind)
	}
	prev := lo
	for _, k := range p.Keys {
		if int64(k) <= prev || int64(k) >= hi {
			return fmt.Errorf("%w: page %d key %d outside (%d, %d)", dberror.ErrTreeInvariant, rrn, k, prev, hi)
		}
		prev = int64(k)
	}

	if p.IsLeaf() {
		if v.leafDepth == -1 {
			v.leafDepth = depth
		}
		if depth != v.leafDepth {
			return fmt.Errorf("%w: leaf %d at depth %d, others at %d", dberror.ErrTreeInvariant, rrn, depth, v.leafDepth)
		}
		return nil
	}
	for i, child := range p.Children {
		clo, chi := lo, hi
		if i > 0 {
			clo = int64(p.Keys[i-1])
		}
		if i < len(p.Keys) {
			chi = int64(p.Keys[i])
		}
		if err := v.check(child, clo, chi, depth+1); err != nil {
			return err
		}
	}
	return nil
}
