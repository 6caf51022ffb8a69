package btree

import (
	"errors"
	"math/rand"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

// setupTree creates an empty index in a temp dir.
func setupTree(t *testing.T) *BTree {
	t.Helper()
	tree, err := Create(filepath.Join(t.TempDir(), "index.bin"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func keysOf(t *testing.T, tree *BTree) []int32 {
	t.Helper()
	var keys []int32
	require.NoError(t, tree.Walk(func(id int32, _ int64) error {
		keys = append(keys, id)
		return nil
	}))
	return keys
}

func TestPage_Layout(t *testing.T) {
	p := &Page{RRN: 3, Kind: KindRoot, Keys: []int32{7}, Offsets: []int64{900}, Children: []int32{1, 2}}
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, PageSize)
	require.Equal(t, 44, PageSize)

	back := &Page{RRN: 3}
	require.NoError(t, back.UnmarshalBinary(data))
	require.Equal(t, p, back)

	leaf := &Page{RRN: 1, Kind: KindLeaf, Keys: []int32{4, 5}, Offsets: []int64{40, 50}}
	data, err = leaf.MarshalBinary()
	require.NoError(t, err)
	back = &Page{RRN: 1}
	require.NoError(t, back.UnmarshalBinary(data))
	require.True(t, back.IsLeaf())
	require.Equal(t, []int64{40, 50}, back.Offsets)

	data[4] = 3
	require.True(t, errors.Is(back.UnmarshalBinary(data), dberror.ErrDeserialization))
}

func TestHeader_PaddingAndSize(t *testing.T) {
	tree := setupTree(t)
	h := tree.Header()
	require.Equal(t, StatusConsistent, h.Status)
	require.Equal(t, NilRRN, h.RootRRN)
	require.Equal(t, byte('$'), h.Padding[0])
	require.Equal(t, byte('$'), h.Padding[len(h.Padding)-1])
}

func TestInsert_RootSplitScenario(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert(10, 1000))
	require.NoError(t, tree.Insert(20, 2000))
	require.NoError(t, tree.Insert(30, 3000))

	pages, err := tree.Dump()
	require.NoError(t, err)
	require.Len(t, pages, 3)
	root := pages[0]
	require.Equal(t, []int32{20}, root.Keys)
	require.Equal(t, KindRoot, root.Kind)
	require.Equal(t, []int32{10}, pages[1].Keys)
	require.Equal(t, []int32{30}, pages[2].Keys)
	require.Equal(t, KindLeaf, pages[1].Kind)
	require.Equal(t, int32(3), tree.Header().NodeCount)

	off, found, err := tree.Search(30)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(3000), off)

	deleted, err := tree.Delete(10)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, []int32{20, 30}, keysOf(t, tree))
	require.NoError(t, tree.Verify())
	require.Equal(t, int32(1), tree.Header().NodeCount)

	_, found, err = tree.Search(10)
	require.NoError(t, err)
	require.False(t, found)
}

func TestSearch_Missing(t *testing.T) {
	tree := setupTree(t)
	_, found, err := tree.Search(5)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tree.Insert(5, 50))
	_, found, err = tree.Search(6)
	require.NoError(t, err)
	require.False(t, found)
}

func TestInsert_DuplicateIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	tree, err := Create(path, zap.NewNop())
	require.NoError(t, err)
	for _, id := range []int32{1, 2, 3, 4, 5} {
		require.NoError(t, tree.Insert(id, int64(id)*10))
	}
	before := tree.Header()

	err = tree.Insert(3, 999)
	require.True(t, errors.Is(err, dberror.ErrKeyAlreadyExists))
	require.Equal(t, before, tree.Header(), "a rejected insert leaves the header untouched")
	off, found, err := tree.Search(3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(30), off)

	// The tree keeps accepting writes and reopens as consistent.
	require.NoError(t, tree.Insert(6, 60))
	require.NoError(t, tree.Close())
	tree, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()
	require.Equal(t, StatusConsistent, tree.Header().Status)
	off, found, err = tree.Search(3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(30), off)
	require.Equal(t, []int32{1, 2, 3, 4, 5, 6}, keysOf(t, tree))
}

func TestUpdateOffset(t *testing.T) {
	tree := setupTree(t)
	for _, id := range []int32{8, 3, 12, 1} {
		require.NoError(t, tree.Insert(id, int64(id)))
	}
	ok, err := tree.UpdateOffset(12, 777)
	require.NoError(t, err)
	require.True(t, ok)
	off, found, err := tree.Search(12)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(777), off)

	ok, err = tree.UpdateOffset(99, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDelete_MissingIsNoop(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert(1, 1))
	deleted, err := tree.Delete(2)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = tree.Delete(1)
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, NilRRN, tree.Header().RootRRN)
	require.Equal(t, int32(0), tree.Header().NodeCount)
	require.NoError(t, tree.Verify())
}

func TestRandomizedInsertDelete_KeepsInvariants(t *testing.T) {
	tree := setupTree(t)
	rng := rand.New(rand.NewSource(42))

	const n = 300
	ids := make([]int32, n)
	for i := range ids {
		ids[i] = int32(i*3 + 1)
	}
	rng.Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	for i, id := range ids {
		require.NoError(t, tree.Insert(id, int64(id)*100))
		if i%25 == 0 {
			require.NoError(t, tree.Verify())
		}
	}
	require.NoError(t, tree.Verify())
	want := slices.Clone(ids)
	slices.Sort(want)
	require.Equal(t, want, keysOf(t, tree))

	rng.Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	remaining := make(map[int32]bool, n)
	for _, id := range ids {
		remaining[id] = true
	}
	for i, id := range ids {
		deleted, err := tree.Delete(id)
		require.NoError(t, err)
		require.True(t, deleted, "id %d", id)
		delete(remaining, id)
		require.NoError(t, tree.Verify(), "after deleting %d", id)

		_, found, err := tree.Search(id)
		require.NoError(t, err)
		require.False(t, found)
		if i%20 == 0 {
			for other := range remaining {
				off, found, err := tree.Search(other)
				require.NoError(t, err)
				require.True(t, found, "id %d lost after deleting %d", other, id)
				require.Equal(t, int64(other)*100, off)
			}
		}
	}
	require.Empty(t, keysOf(t, tree))
	require.Equal(t, NilRRN, tree.Header().RootRRN)
}

func TestReopen_PreservesTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	tree, err := Create(path, zap.NewNop())
	require.NoError(t, err)
	for id := int32(1); id <= 20; id++ {
		require.NoError(t, tree.Insert(id, int64(id)))
	}
	require.NoError(t, tree.Close())

	tree, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()
	require.NoError(t, tree.Verify())
	off, found, err := tree.Search(17)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(17), off)
}

func TestOpen_InconsistentIndexIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	tree, err := create(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	tree, err = Open(path, zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()
	_, _, err = tree.Search(1)
	require.True(t, errors.Is(err, dberror.ErrInconsistentFile))
	require.True(t, errors.Is(tree.Insert(1, 1), dberror.ErrInconsistentFile))
}

func TestSearch_UnreadablePageActsAsEmptyLeaf(t *testing.T) {
	tree := setupTree(t)
	require.NoError(t, tree.Insert(1, 10))
	tree.header.RootRRN = 50

	_, found, err := tree.Search(1)
	require.NoError(t, err)
	require.False(t, found)
}

type fakeHeap struct {
	entries []heapEntry
}

type heapEntry struct {
	off int64
	rec *record.Record
}

func (f *fakeHeap) ScanActive(fn func(off int64, r *record.Record) error) error {
	for _, e := range f.entries {
		if err := fn(e.off, e.rec); err != nil {
			return err
		}
	}
	return nil
}

func TestBuildFromHeap(t *testing.T) {
	heap := &fakeHeap{entries: []heapEntry{
		{276, record.New(5, 2020, 1, "", "", "", "")},
		{301, record.New(2, 2020, 1, "", "", "", "")},
		{326, record.New(9, 2020, 1, "", "", "", "")},
		{351, record.New(2, 2021, 1, "", "", "", "")},
		{376, record.New(-1, 2021, 1, "", "", "", "")},
		{401, record.New(7, 2021, 1, "", "", "", "")},
	}}
	tree, err := BuildFromHeap(filepath.Join(t.TempDir(), "index.bin"), heap, zap.NewNop())
	require.NoError(t, err)
	defer tree.Close()

	require.Equal(t, StatusConsistent, tree.Header().Status)
	require.Equal(t, []int32{2, 5, 9}, keysOf(t, tree))
	off, found, err := tree.Search(2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(301), off, "first occurrence wins")
	require.NoError(t, tree.Verify())
}
