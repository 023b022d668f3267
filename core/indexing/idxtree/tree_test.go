package idxtree

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Test Helpers ---

// key encodes n big-endian so byte order matches numeric order.
func key(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// newTestTree creates a 4-byte-key tree with a fixed page capacity.
func newTestTree(t *testing.T, maxEntries int) *Tree {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	tree, err := NewTree(Config{PageSize: DefaultPageSize, KeySize: 4}, WithMaxEntries(maxEntries), WithLogger(logger))
	require.NoError(t, err)
	return tree
}

// scanKeys collects every key in leaf order.
func scanKeys(t *testing.T, tree *Tree) [][]byte {
	t.Helper()
	var keys [][]byte
	require.NoError(t, tree.Scan(func(k []byte, _ RecordLocator) bool {
		keys = append(keys, bytes.Clone(k))
		return true
	}))
	return keys
}

func rootPage(t *testing.T, tree *Tree) *Page {
	t.Helper()
	p, ok := tree.Page(tree.RootID())
	require.True(t, ok)
	return p
}

// --- Test Cases ---

func TestNewTree_InvalidConfiguration(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		opts []Option
	}{
		{"zero key size", Config{PageSize: 4096, KeySize: 0}, nil},
		{"zero page size", Config{PageSize: 0, KeySize: 4}, nil},
		{"page holds one entry", Config{PageSize: 20, KeySize: 4}, nil},
		{"key larger than page", Config{PageSize: 64, KeySize: 128}, nil},
		{"fixed capacity of one", Config{PageSize: 4096, KeySize: 4}, []Option{WithMaxEntries(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tree, err := NewTree(tc.cfg, tc.opts...)
			require.ErrorIs(t, err, ErrInvalidConfiguration)
			require.Nil(t, tree)
		})
	}
}

func TestNewTree_CapacityFromPageSize(t *testing.T) {
	tree, err := NewTree(Config{PageSize: 4096, KeySize: 4})
	require.NoError(t, err)

	stats := tree.Stats()
	require.Equal(t, 4096/(4+locatorSize), stats.LeafCapacity)
	require.Equal(t, 4096/(4+childRefSize), stats.NodeCapacity)
	require.Equal(t, 1, stats.Height)
	require.Equal(t, 1, stats.Pages)
	require.Equal(t, uint64(1), tree.PageCount())

	root := rootPage(t, tree)
	require.True(t, root.IsLeaf())
	require.Zero(t, root.NumEntries())
	require.Equal(t, InvalidPageID, root.Parent())
	require.NoError(t, tree.Check())
}

// TestReferenceDriver replays the fixed demonstration calls: five records
// with keys 1,2,4,3,5 on a tree with four entries per page.
func TestReferenceDriver(t *testing.T) {
	tree := newTestTree(t, 4)
	inserts := []struct {
		key  uint32
		slot uint32
	}{{1, 3}, {2, 4}, {4, 5}, {3, 6}, {5, 7}}
	for _, in := range inserts {
		require.NoError(t, tree.AddRecord(key(in.key), 2, in.slot))
		require.NoError(t, tree.Check())
	}

	loc, found, err := tree.FindRecord(key(3))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, RecordLocator{PageNum: 2, SlotNum: 6}, loc)

	_, found, err = tree.FindRecord(key(9))
	require.NoError(t, err)
	require.False(t, found)

	for _, in := range inserts {
		loc, found, err := tree.FindRecord(key(in.key))
		require.NoError(t, err)
		require.True(t, found, "key %d", in.key)
		require.Equal(t, RecordLocator{PageNum: 2, SlotNum: in.slot}, loc)
	}
}

func TestSplit_LeafRootLeftBiased(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, k := range []uint32{1, 2, 4, 3} {
		require.NoError(t, tree.AddRecord(key(k), 1, k))
	}
	require.Zero(t, tree.Stats().Splits, "a page may fill up to capacity without splitting")
	require.True(t, rootPage(t, tree).IsLeaf())

	require.NoError(t, tree.AddRecord(key(5), 1, 5))
	stats := tree.Stats()
	require.Equal(t, uint64(1), stats.Splits)
	require.Equal(t, uint64(1), stats.RootSplits)
	require.Equal(t, 2, stats.Height)

	root := rootPage(t, tree)
	require.False(t, root.IsLeaf())
	require.Equal(t, 2, root.NumEntries())

	left, ok := tree.Page(root.entries[0].child)
	require.True(t, ok)
	right, ok := tree.Page(root.entries[1].child)
	require.True(t, ok)

	// The original root is reused as the left half.
	require.Equal(t, PageID(0), left.ID())
	require.Equal(t, [][]byte{key(1), key(2), key(3)}, keysOf(left))
	require.Equal(t, [][]byte{key(4), key(5)}, keysOf(right))
	require.Equal(t, key(3), root.entries[0].key)
	require.Equal(t, key(5), root.entries[1].key)
	require.Equal(t, root.ID(), left.Parent())
	require.Equal(t, root.ID(), right.Parent())
	require.NoError(t, tree.Check())
}

func TestSplit_EvenCandidateCount(t *testing.T) {
	tree := newTestTree(t, 5)
	for k := uint32(1); k <= 6; k++ {
		require.NoError(t, tree.AddRecord(key(k*10), 0, k))
	}
	root := rootPage(t, tree)
	require.Equal(t, 2, root.NumEntries())
	left := tree.store.pages[root.entries[0].child]
	right := tree.store.pages[root.entries[1].child]
	require.Equal(t, 3, left.NumEntries())
	require.Equal(t, 3, right.NumEntries())
	require.NoError(t, tree.Check())
}

func keysOf(p *Page) [][]byte {
	var keys [][]byte
	for _, e := range p.active() {
		keys = append(keys, e.Key())
	}
	return keys
}

// TestCascadingSplit inserts enough keys that non-leaf pages overflow and
// must split in turn, checking every invariant after each insert.
func TestCascadingSplit(t *testing.T) {
	const n = 300
	orders := map[string]func() []uint32{
		"ascending": func() []uint32 {
			keys := make([]uint32, n)
			for i := range keys {
				keys[i] = uint32(i + 1)
			}
			return keys
		},
		"descending": func() []uint32 {
			keys := make([]uint32, n)
			for i := range keys {
				keys[i] = uint32(n - i)
			}
			return keys
		},
		"shuffled": func() []uint32 {
			r := rand.New(rand.NewSource(42))
			keys := make([]uint32, n)
			for i, v := range r.Perm(n) {
				keys[i] = uint32(v + 1)
			}
			return keys
		},
	}

	for name, gen := range orders {
		t.Run(name, func(t *testing.T) {
			tree := newTestTree(t, 4)
			keys := gen()
			for i, k := range keys {
				require.NoError(t, tree.AddRecord(key(k), k/7, k%7))
				require.NoError(t, tree.Check(), "after inserting key %d (#%d)", k, i)
			}

			require.Equal(t, n, tree.Len())
			require.Greater(t, tree.Height(), 3, "cascading splits should have grown the tree past two non-leaf levels")

			for _, k := range keys {
				loc, found, err := tree.FindRecord(key(k))
				require.NoError(t, err)
				require.True(t, found, "key %d", k)
				require.Equal(t, RecordLocator{PageNum: k / 7, SlotNum: k % 7}, loc)
			}

			got := scanKeys(t, tree)
			require.Len(t, got, n)
			require.True(t, slices.IsSortedFunc(got, bytes.Compare))

			_, found, err := tree.FindRecord(key(n + 1))
			require.NoError(t, err)
			require.False(t, found)
			_, found, err = tree.FindRecord(key(0))
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestAddRecord_KeyAboveEverySeparator(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, k := range []uint32{1, 2, 4, 3, 5} {
		require.NoError(t, tree.AddRecord(key(k), 0, k))
	}
	// 6 is above the root's last separator, so the path must be raised.
	require.NoError(t, tree.AddRecord(key(6), 0, 6))
	require.NoError(t, tree.Check())
	root := rootPage(t, tree)
	require.Equal(t, key(6), root.maxKey())

	loc, found, err := tree.FindRecord(key(6))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(6), loc.SlotNum)
}

func TestDuplicateKeysCoexist(t *testing.T) {
	tree := newTestTree(t, 4)
	for i := uint32(0); i < 10; i++ {
		require.NoError(t, tree.AddRecord(key(7), 3, i))
		require.NoError(t, tree.Check())
	}
	require.NoError(t, tree.AddRecord(key(1), 1, 1))
	require.NoError(t, tree.AddRecord(key(9), 9, 9))
	require.NoError(t, tree.Check())

	var slots []uint32
	require.NoError(t, tree.Scan(func(k []byte, loc RecordLocator) bool {
		if bytes.Equal(k, key(7)) {
			slots = append(slots, loc.SlotNum)
		}
		return true
	}))
	require.ElementsMatch(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, slots)

	loc, found, err := tree.FindRecord(key(7))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(3), loc.PageNum)
}

func TestFindRecord_Idempotent(t *testing.T) {
	tree := newTestTree(t, 4)
	for k := uint32(1); k <= 40; k++ {
		require.NoError(t, tree.AddRecord(key(k*3), k, k))
	}
	first, found, err := tree.FindRecord(key(30))
	require.NoError(t, err)
	require.True(t, found)
	for i := 0; i < 5; i++ {
		again, found, err := tree.FindRecord(key(30))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, first, again)
	}
	_, found, err = tree.FindRecord(key(31))
	require.NoError(t, err)
	require.False(t, found)
}

func TestKeySizeMismatch(t *testing.T) {
	tree := newTestTree(t, 4)
	require.ErrorIs(t, tree.AddRecord([]byte{1, 2}, 0, 0), ErrKeySize)
	require.ErrorIs(t, tree.AddRecord(nil, 0, 0), ErrKeySize)
	_, _, err := tree.FindRecord([]byte{1, 2, 3, 4, 5})
	require.ErrorIs(t, err, ErrKeySize)
	require.Zero(t, tree.Len())
}

func TestAddRecord_CopiesKey(t *testing.T) {
	tree := newTestTree(t, 4)
	k := key(5)
	require.NoError(t, tree.AddRecord(k, 1, 1))
	k[3] = 9
	_, found, err := tree.FindRecord(key(5))
	require.NoError(t, err)
	require.True(t, found)
}

func TestScan_StopsEarly(t *testing.T) {
	tree := newTestTree(t, 4)
	for k := uint32(1); k <= 20; k++ {
		require.NoError(t, tree.AddRecord(key(k), 0, k))
	}
	var seen int
	require.NoError(t, tree.Scan(func([]byte, RecordLocator) bool {
		seen++
		return seen < 5
	}))
	require.Equal(t, 5, seen)
}

func TestDestroy(t *testing.T) {
	tree := newTestTree(t, 4)
	for k := uint32(1); k <= 50; k++ {
		require.NoError(t, tree.AddRecord(key(k), 0, k))
	}
	require.Greater(t, tree.store.len(), 1)

	require.NoError(t, tree.Destroy())
	require.Zero(t, tree.store.len())
	require.Equal(t, InvalidPageID, tree.RootID())
	require.Zero(t, tree.Len())

	require.ErrorIs(t, tree.AddRecord(key(1), 0, 0), ErrTreeDestroyed)
	_, _, err := tree.FindRecord(key(1))
	require.ErrorIs(t, err, ErrTreeDestroyed)
	require.ErrorIs(t, tree.Dump(&strings.Builder{}), ErrTreeDestroyed)
	require.ErrorIs(t, tree.Check(), ErrTreeDestroyed)
	require.ErrorIs(t, tree.Destroy(), ErrTreeDestroyed)
}

func TestDump(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, k := range []uint32{1, 2, 4, 3, 5} {
		require.NoError(t, tree.AddRecord(key(k), 2, k+2))
	}
	var sb strings.Builder
	require.NoError(t, tree.Dump(&sb))
	out := sb.String()

	require.Contains(t, out, "Index tree:\n\tPage size: 4096\n\tPage count: 3\n\tKey size: 4\n")
	require.Contains(t, out, "\nLevel 0 - Page 1\n\tLeaf: false\n\tNum entries: 2\n\tMax entries: 4\n\tData size: 8\n")
	require.Contains(t, out, "\t\t-Key: 0x00000003\n\t\t-Child page-id: 0\n")
	require.Contains(t, out, "\nLevel 1 - Page 2\n\tLeaf: true\n")
	require.Contains(t, out, "\t\t-Key: 0x00000005\n\t\t-Page num: 2\n\t\t-Slot num: 7\n")
	// Root first, then children left to right.
	require.Less(t, strings.Index(out, "Page 1\n"), strings.Index(out, "Page 0\n"))
	require.Less(t, strings.Index(out, "Page 0\n"), strings.Index(out, "Page 2\n"))
}
