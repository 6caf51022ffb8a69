package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

const (
	// Order is the maximum number of children per page.
	Order   = 3
	MaxKeys = Order - 1
	// MinKeys is the lower bound for every page except the root.
	MinKeys = 1

	// PageSize is the on-disk size of a page:
	// kind, keyCount, P1, C1, PR1, P2, C2, PR2, P3.
	PageSize = 4 + 4 + MaxKeys*(4+4+8) + 4

	// NilRRN marks an absent page, child or key.
	NilRRN int32 = -1
	noOffset int64 = -1
)

// Node kinds as persisted. Leaf-ness itself is derived from the first child pointer.
const (
	KindLeaf     int32 = -1
	KindRoot     int32 = 0
	KindInternal int32 = 1
)

// --- Page ---

// Page is the decoded form of one B-tree node. Keys[i] maps to Offsets[i];
// an internal page has len(Keys)+1 children and a leaf has none.
type Page struct {
	RRN      int32
	Kind     int32
	Keys     []int32
	Offsets  []int64
	Children []int32
}

func newLeaf(rrn int32) *Page {
	return &Page{RRN: rrn, Kind: KindLeaf}
}

func (p *Page) IsLeaf() bool { return len(p.Children) == 0 }

// search returns the index of the first key >= id and whether it equals id.
func (p *Page) search(id int32) (int, bool) {
	i := 0
	for i < len(p.Keys) && p.Keys[i] < id {
		i++
	}
	return i, i < len(p.Keys) && p.Keys[i] == id
}

// MarshalBinary encodes the page; unused slots are written as -1.
func (p *Page) MarshalBinary() ([]byte, error) {
	if len(p.Keys) > MaxKeys || len(p.Offsets) != len(p.Keys) {
		return nil, fmt.Errorf("%w: page %d holds %d keys and %d offsets", dberror.ErrSerialization, p.RRN, len(p.Keys), len(p.Offsets))
	}
	if !p.IsLeaf() && len(p.Children) != len(p.Keys)+1 {
		return nil, fmt.Errorf("%w: page %d has %d keys but %d children", dberror.ErrSerialization, p.RRN, len(p.Keys), len(p.Children))
	}
	buf := make([]byte, PageSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(p.Kind))
	le.PutUint32(buf[4:], uint32(len(p.Keys)))
	for j := 0; j < Order; j++ {
		child := NilRRN
		if j < len(p.Children) {
			child = p.Children[j]
		}
		base := 8 + j*16
		le.PutUint32(buf[base:], uint32(child))
		if j == MaxKeys {
			break
		}
		key, off := NilRRN, noOffset
		if j < len(p.Keys) {
			key, off = p.Keys[j], p.Offsets[j]
		}
		le.PutUint32(buf[base+4:], uint32(key))
		le.PutUint64(buf[base+8:], uint64(off))
	}
	return buf, nil
}

func (p *Page) UnmarshalBinary(data []byte) error {
	if len(data) < PageSize {
		return fmt.Errorf("%w: page needs %d bytes, got %d", dberror.ErrShortRead, PageSize, len(data))
	}
	le := binary.LittleEndian
	p.Kind = int32(le.Uint32(data[0:]))
	n := int(int32(le.Uint32(data[4:])))
	if n < 0 || n > MaxKeys {
		return fmt.Errorf("%w: page %d key count %d", dberror.ErrDeserialization, p.RRN, n)
	}
	p.Keys = make([]int32, n)
	p.Offsets = make([]int64, n)
	p.Children = nil
	for j := 0; j < n; j++ {
		base := 8 + j*16
		p.Keys[j] = int32(le.Uint32(data[base+4:]))
		p.Offsets[j] = int64(le.Uint64(data[base+8:]))
	}
	if int32(le.Uint32(data[8:])) == NilRRN {
		return nil
	}
	p.Children = make([]int32, n+1)
	for j := range p.Children {
		p.Children[j] = int32(le.Uint32(data[8+j*16:]))
	}
	return nil
}
