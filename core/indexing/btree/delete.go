package btree

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

// Delete removes id from the index. It reports false, without touching the
// file, when id is not indexed.
func (t *BTree) Delete(id int32) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return false, err
	}
	p, _, err := t.find(id)
	if err != nil || p == nil {
		return false, err
	}
	if err := t.beginWrite(); err != nil {
		return false, err
	}

	root := t.readPage(t.header.RootRRN)
	if err := t.deleteFrom(root, id, 0); err != nil {
		return false, err
	}
	if err := t.shrinkRoot(root); err != nil {
		return false, err
	}
	return true, t.commit()
}

// shrinkRoot drops an emptied root. An internal root hands over to its only
// child; an empty leaf root leaves the tree empty.
func (t *BTree) shrinkRoot(root *Page) error {
	if len(root.Keys) > 0 {
		return nil
	}
	t.header.NodeCount--
	if root.IsLeaf() {
		t.header.RootRRN = NilRRN
		t.logger.Debug("Tree emptied")
		return nil
	}
	t.header.RootRRN = root.Children[0]
	t.logger.Debug("Root demoted", zap.Int32("old_root", root.RRN), zap.Int32("new_root", t.header.RootRRN))
	return t.restamp(t.header.RootRRN)
}

// deleteFrom removes id from the subtree rooted at p. p is updated in memory
// and on disk; the caller repairs p if it underflows.
func (t *BTree) deleteFrom(p *Page, id int32, depth int) error {
	if depth > t.maxDepth() {
		return fmt.Errorf("%w: delete of %d exceeds %d levels", dberror.ErrRecordLinkCorrupt, id, t.maxDepth())
	}
	i, ok := p.search(id)

	if p.IsLeaf() {
		if !ok {
			return nil
		}
		p.Keys = slices.Delete(p.Keys, i, i+1)
		p.Offsets = slices.Delete(p.Offsets, i, i+1)
		return t.writePage(p)
	}

	if !ok {
		child := t.readPage(p.Children[i])
		if err := t.deleteFrom(child, id, depth+1); err != nil {
			return err
		}
		return t.repair(p, i, child)
	}

	left := t.readPage(p.Children[i])
	if len(left.Keys) > MinKeys {
		return t.replaceWithPredecessor(p, i, left, depth)
	}
	right := t.readPage(p.Children[i+1])
	if len(right.Keys) > MinKeys {
		key, off := t.minOf(right)
		p.Keys[i], p.Offsets[i] = key, off
		if err := t.writePage(p); err != nil {
			return err
		}
		if err := t.deleteFrom(right, key, depth+1); err != nil {
			return err
		}
		return t.repair(p, i+1, right)
	}
	if left.IsLeaf() {
		// Both leaves hold one key: fold them around the separator and drop it.
		return t.merge(p, i, left, right, false)
	}
	return t.replaceWithPredecessor(p, i, left, depth)
}

func (t *BTree) replaceWithPredecessor(p *Page, i int, left *Page, depth int) error {
	key, off := t.maxOf(left)
	p.Keys[i], p.Offsets[i] = key, off
	if err := t.writePage(p); err != nil {
		return err
	}
	if err := t.deleteFrom(left, key, depth+1); err != nil {
		return err
	}
	return t.repair(p, i, left)
}

func (t *BTree) maxOf(p *Page) (int32, int64) {
	for depth := 0; !p.IsLeaf() && depth <= t.maxDepth(); depth++ {
		p = t.readPage(p.Children[len(p.Children)-1])
	}
	if len(p.Keys) == 0 {
		return NilRRN, noOffset
	}
	return p.Keys[len(p.Keys)-1], p.Offsets[len(p.Offsets)-1]
}

func (t *BTree) minOf(p *Page) (int32, int64) {
	for depth := 0; !p.IsLeaf() && depth <= t.maxDepth(); depth++ {
		p = t.readPage(p.Children[0])
	}
	if len(p.Keys) == 0 {
		return NilRRN, noOffset
	}
	return p.Keys[0], p.Offsets[0]
}

// repair restores the minimum key count of p.Children[i] after a deletion:
// borrow from the left sibling, else from the right one, else merge.
func (t *BTree) repair(p *Page, i int, child *Page) error {
	if len(child.Keys) >= MinKeys {
		return nil
	}

	var left, right *Page
	if i > 0 {
		left = t.readPage(p.Children[i-1])
		if len(left.Keys) > MinKeys {
			return t.borrowLeft(p, i, left, child)
		}
	}
	if i < len(p.Children)-1 {
		right = t.readPage(p.Children[i+1])
		if len(right.Keys) > MinKeys {
			return t.borrowRight(p, i, child, right)
		}
	}
	if left != nil {
		return t.merge(p, i-1, left, child, true)
	}
	if right != nil {
		return t.merge(p, i, child, right, true)
	}
	return fmt.Errorf("%w: page %d has no sibling to repair page %d", dberror.ErrTreeInvariant, p.RRN, child.RRN)
}

// borrowLeft rotates the left sibling's largest key through the parent.
func (t *BTree) borrowLeft(p *Page, i int, left, child *Page) error {
	last := len(left.Keys) - 1
	child.Keys = slices.Insert(child.Keys, 0, p.Keys[i-1])
	child.Offsets = slices.Insert(child.Offsets, 0, p.Offsets[i-1])
	if !child.IsLeaf() {
		child.Children = slices.Insert(child.Children, 0, left.Children[last+1])
		left.Children = left.Children[:last+1]
	}
	p.Keys[i-1], p.Offsets[i-1] = left.Keys[last], left.Offsets[last]
	left.Keys = left.Keys[:last]
	left.Offsets = left.Offsets[:last]

	t.logger.Debug("Borrowed from left sibling", zap.Int32("page", child.RRN), zap.Int32("sibling", left.RRN))
	return t.writePages(left, child, p)
}

// borrowRight rotates the right sibling's smallest key through the parent.
func (t *BTree) borrowRight(p *Page, i int, child, right *Page) error {
	child.Keys = append(child.Keys, p.Keys[i])
	child.Offsets = append(child.Offsets, p.Offsets[i])
	if !child.IsLeaf() {
		child.Children = append(child.Children, right.Children[0])
		right.Children = slices.Delete(right.Children, 0, 1)
	}
	p.Keys[i], p.Offsets[i] = right.Keys[0], right.Offsets[0]
	right.Keys = slices.Delete(right.Keys, 0, 1)
	right.Offsets = slices.Delete(right.Offsets, 0, 1)

	t.logger.Debug("Borrowed from right sibling", zap.Int32("page", child.RRN), zap.Int32("sibling", right.RRN))
	return t.writePages(right, child, p)
}

// merge folds p.Children[sep+1] into p.Children[sep]. With keepSeparator the
// parent's key at sep moves down between them; otherwise it is dropped.
func (t *BTree) merge(p *Page, sep int, left, right *Page, keepSeparator bool) error {
	if keepSeparator {
		left.Keys = append(left.Keys, p.Keys[sep])
		left.Offsets = append(left.Offsets, p.Offsets[sep])
	}
	left.Keys = append(left.Keys, right.Keys...)
	left.Offsets = append(left.Offsets, right.Offsets...)
	left.Children = append(left.Children, right.Children...)
	if len(left.Keys) > MaxKeys {
		return fmt.Errorf("%w: merging pages %d and %d yields %d keys", dberror.ErrTreeInvariant, left.RRN, right.RRN, len(left.Keys))
	}

	p.Keys = slices.Delete(p.Keys, sep, sep+1)
	p.Offsets = slices.Delete(p.Offsets, sep, sep+1)
	p.Children = slices.Delete(p.Children, sep+1, sep+2)
	t.header.NodeCount--

	t.logger.Debug("Merged pages", zap.Int32("into", left.RRN), zap.Int32("freed", right.RRN), zap.Int32("parent", p.RRN))
	return t.writePages(left, p)
}

func (t *BTree) writePages(pages ...*Page) error {
	for _, p := range pages {
		if err := t.writePage(p); err != nil {
			return err
		}
	}
	return nil
}
