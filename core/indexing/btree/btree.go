// Package btree implements an order-3 B-tree that maps attack ids to heap
// file offsets. Pages are fixed-size and addressed by RRN (relative record
// number); every key carries its offset through splits, borrows and merges.
package btree

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

// BTree is a single open index file. It is not safe for use by more than one
// process at a time.
type BTree struct {
	dm     *diskManager
	header Header
	logger *zap.Logger
	mu     sync.Mutex
}

// promotion carries a key pushed up to the parent after a split.
type promotion struct {
	key    int32
	offset int64
	right  int32
}

// Create truncates path and writes an empty, consistent index.
func Create(path string, logger *zap.Logger) (*BTree, error) {
	t, err := create(path, logger)
	if err != nil {
		return nil, err
	}
	if err := t.commit(); err != nil {
		_ = t.dm.close()
		return nil, err
	}
	return t, nil
}

func create(path string, logger *zap.Logger) (*BTree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dm, err := openDiskManager(path, true)
	if err != nil {
		return nil, err
	}
	t := &BTree{dm: dm, header: newHeader(), logger: logger.Named("btree")}
	if err := dm.writeHeader(&t.header); err != nil {
		_ = dm.close()
		return nil, err
	}
	return t, nil
}

// Open reads the header of an existing index. Status is checked per operation.
func Open(path string, logger *zap.Logger) (*BTree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dm, err := openDiskManager(path, false)
	if err != nil {
		return nil, err
	}
	h, err := dm.readHeader()
	if err != nil {
		_ = dm.close()
		return nil, err
	}
	return &BTree{dm: dm, header: h, logger: logger.Named("btree")}, nil
}

func (t *BTree) Path() string { return t.dm.path }

// Header returns a copy of the in-memory header.
func (t *BTree) Header() Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.header
}

func (t *BTree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dm == nil {
		return nil
	}
	err := t.dm.sync()
	if cerr := t.dm.close(); err == nil {
		err = cerr
	}
	t.dm = nil
	return err
}

func (t *BTree) requireConsistent() error {
	if t.dm == nil {
		return fmt.Errorf("%w: index is closed", dberror.ErrFileUnavailable)
	}
	if t.header.Status != StatusConsistent {
		return fmt.Errorf("%w: %s", dberror.ErrInconsistentFile, t.dm.path)
	}
	return nil
}

func (t *BTree) beginWrite() error {
	t.header.Status = StatusInconsistent
	return t.dm.writeStatus(StatusInconsistent)
}

func (t *BTree) commit() error {
	t.header.Status = StatusConsistent
	return t.dm.writeHeader(&t.header)
}

// readPage loads a page. An unreadable page is treated as an empty leaf, so
// a dangling child pointer ends a descent instead of failing it.
func (t *BTree) readPage(rrn int32) *Page {
	p, err := t.dm.readPage(rrn)
	if err != nil {
		t.logger.Warn("Page read failed, using empty leaf", zap.Int32("rrn", rrn), zap.Error(err))
		return newLeaf(rrn)
	}
	return p
}

// writePage stamps the page kind from its current role and persists it.
func (t *BTree) writePage(p *Page) error {
	switch {
	case p.IsLeaf():
		p.Kind = KindLeaf
	case p.RRN == t.header.RootRRN:
		p.Kind = KindRoot
	default:
		p.Kind = KindInternal
	}
	return t.dm.writePage(p)
}

func (t *BTree) allocate() int32 {
	rrn := t.header.NextRRN
	t.header.NextRRN++
	t.header.NodeCount++
	return rrn
}

// maxDepth bounds a descent so that a pointer cycle cannot loop forever.
func (t *BTree) maxDepth() int {
	return int(t.header.NodeCount) + 1
}

// --- Search ---

// Search returns the heap offset stored for id.
func (t *BTree) Search(id int32) (int64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return 0, false, err
	}
	p, i, err := t.find(id)
	if err != nil || p == nil {
		return 0, false, err
	}
	return p.Offsets[i], true, nil
}

// find descends from the root and returns the page holding id and the key
// index, or a nil page when id is absent.
func (t *BTree) find(id int32) (*Page, int, error) {
	rrn := t.header.RootRRN
	for depth := 0; rrn != NilRRN; depth++ {
		if depth > t.maxDepth() {
			return nil, 0, fmt.Errorf("%w: descent for %d exceeds %d levels", dberror.ErrRecordLinkCorrupt, id, t.maxDepth())
		}
		p := t.readPage(rrn)
		i, ok := p.search(id)
		if ok {
			return p, i, nil
		}
		if p.IsLeaf() {
			return nil, 0, nil
		}
		rrn = p.Children[i]
	}
	return nil, 0, nil
}

// UpdateOffset rewrites the offset stored for id in place. It reports false
// when id is not indexed.
func (t *BTree) UpdateOffset(id int32, offset int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return false, err
	}
	p, i, err := t.find(id)
	if err != nil || p == nil {
		return false, err
	}
	if err := t.beginWrite(); err != nil {
		return false, err
	}
	p.Offsets[i] = offset
	if err := t.writePage(p); err != nil {
		return false, err
	}
	return true, t.commit()
}

// --- Insert ---

// Insert adds id with its heap offset. Ids are unique; inserting an existing
// id fails with ErrKeyAlreadyExists and leaves the tree untouched.
func (t *BTree) Insert(id int32, offset int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireConsistent(); err != nil {
		return err
	}
	existing, _, err := t.find(id)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: id %d", dberror.ErrKeyAlreadyExists, id)
	}
	if err := t.beginWrite(); err != nil {
		return err
	}
	if err := t.insert(id, offset); err != nil {
		return err
	}
	return t.commit()
}

func (t *BTree) insert(id int32, offset int64) error {
	if t.header.RootRRN == NilRRN {
		root := newLeaf(t.allocate())
		root.Keys = []int32{id}
		root.Offsets = []int64{offset}
		t.header.RootRRN = root.RRN
		return t.writePage(root)
	}

	oldRoot := t.header.RootRRN
	promo, err := t.insertAt(oldRoot, id, offset, 0)
	if err != nil || promo == nil {
		return err
	}

	root := &Page{
		RRN:      t.allocate(),
		Keys:     []int32{promo.key},
		Offsets:  []int64{promo.offset},
		Children: []int32{oldRoot, promo.right},
	}
	t.header.RootRRN = root.RRN
	if err := t.writePage(root); err != nil {
		return err
	}
	t.logger.Debug("Root split", zap.Int32("old_root", oldRoot), zap.Int32("new_root", root.RRN))
	return t.restamp(oldRoot)
}

// restamp rewrites a page whose role may have changed so its kind is current.
func (t *BTree) restamp(rrn int32) error {
	return t.writePage(t.readPage(rrn))
}

func (t *BTree) insertAt(rrn, id int32, offset int64, depth int) (*promotion, error) {
	if depth > t.maxDepth() {
		return nil, fmt.Errorf("%w: insert of %d exceeds %d levels", dberror.ErrRecordLinkCorrupt, id, t.maxDepth())
	}
	p := t.readPage(rrn)
	i, dup := p.search(id)
	if dup {
		return nil, fmt.Errorf("%w: id %d", dberror.ErrKeyAlreadyExists, id)
	}

	if p.IsLeaf() {
		p.Keys = slices.Insert(p.Keys, i, id)
		p.Offsets = slices.Insert(p.Offsets, i, offset)
	} else {
		promo, err := t.insertAt(p.Children[i], id, offset, depth+1)
		if err != nil || promo == nil {
			return nil, err
		}
		p.Keys = slices.Insert(p.Keys, i, promo.key)
		p.Offsets = slices.Insert(p.Offsets, i, promo.offset)
		p.Children = slices.Insert(p.Children, i+1, promo.right)
	}

	if len(p.Keys) <= MaxKeys {
		return nil, t.writePage(p)
	}
	return t.split(p)
}

// split divides a page holding MaxKeys+1 keys: the smallest key stays, the
// largest moves to a new right sibling and the middle one is promoted.
func (t *BTree) split(p *Page) (*promotion, error) {
	right := &Page{
		RRN:     t.allocate(),
		Keys:    slices.Clone(p.Keys[2:]),
		Offsets: slices.Clone(p.Offsets[2:]),
	}
	if !p.IsLeaf() {
		right.Children = slices.Clone(p.Children[2:])
		p.Children = slices.Clone(p.Children[:2])
	}
	promo := &promotion{key: p.Keys[1], offset: p.Offsets[1], right: right.RRN}
	p.Keys = slices.Clone(p.Keys[:1])
	p.Offsets = slices.Clone(p.Offsets[:1])

	if err := t.writePage(p); err != nil {
		return nil, err
	}
	if err := t.writePage(right); err != nil {
		return nil, err
	}
	t.logger.Debug("Page split", zap.Int32("left", p.RRN), zap.Int32("right", right.RRN), zap.Int32("promoted", promo.key))
	return promo, nil
}
