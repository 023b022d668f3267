package idxtree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTallTree returns a tree with at least one non-leaf level below the root.
func buildTallTree(t *testing.T) *Tree {
	t.Helper()
	tree := newTestTree(t, 4)
	for k := uint32(1); k <= 40; k++ {
		require.NoError(t, tree.AddRecord(key(k*10), 0, k))
	}
	require.GreaterOrEqual(t, tree.Height(), 3)
	return tree
}

func TestDescent_CorruptionBelowRoot(t *testing.T) {
	tree := buildTallTree(t)
	root := rootPage(t, tree)
	target := root.entries[0].key
	mid := tree.store.pages[root.entries[0].child]
	require.False(t, mid.IsLeaf())

	// The root routes target into mid, but mid no longer has a separator
	// covering it.
	mid.entries[mid.numEntries-1].key = key(0)

	_, _, err := tree.FindRecord(target)
	require.ErrorIs(t, err, ErrIndexCorruption)
	require.ErrorIs(t, tree.AddRecord(target, 0, 0), ErrIndexCorruption)
	require.ErrorIs(t, tree.Check(), ErrIndexCorruption)
}

func TestDescent_DanglingChild(t *testing.T) {
	tree := buildTallTree(t)
	root := rootPage(t, tree)
	root.entries[0].child = PageID(9999)

	_, _, err := tree.FindRecord(key(10))
	require.ErrorIs(t, err, ErrIndexCorruption)
}

func TestDescent_EmptyNonLeafPage(t *testing.T) {
	tree := buildTallTree(t)
	root := rootPage(t, tree)
	saved := root.numEntries
	root.numEntries = 0

	_, _, err := tree.FindRecord(key(10))
	require.ErrorIs(t, err, ErrIndexCorruption)
	root.numEntries = saved
}

// TestSplit_RejectedWithoutPartialMutation checks that a split which cannot
// complete leaves the tree exactly as it was.
func TestSplit_RejectedWithoutPartialMutation(t *testing.T) {
	tree := newTestTree(t, 4)
	for _, k := range []uint32{10, 20, 40, 30, 50, 15} {
		require.NoError(t, tree.AddRecord(key(k), 0, k))
	}
	root := rootPage(t, tree)
	leaf := tree.store.pages[root.entries[0].child]
	require.True(t, leaf.isFull())

	// Separator no longer matches the leaf's maximum key (30).
	root.entries[0].key = key(31)
	pages, counter, records := tree.store.len(), tree.PageCount(), tree.Len()

	err := tree.AddRecord(key(25), 0, 25)
	require.ErrorIs(t, err, ErrIndexCorruption)

	require.Equal(t, pages, tree.store.len())
	require.Equal(t, counter, tree.PageCount())
	require.Equal(t, records, tree.Len())
	require.Equal(t, 4, leaf.NumEntries())
	require.Equal(t, 2, root.NumEntries())
	require.Equal(t, key(31), root.entries[0].key)
}

func TestSplit_RejectsMissingChildOfSplitParent(t *testing.T) {
	tree := newTestTree(t, 4)
	var root, last *Page
	k := uint32(0)
	for {
		k++
		require.NoError(t, tree.AddRecord(key(k), 0, k))
		require.LessOrEqual(t, tree.Height(), 2)
		root = rootPage(t, tree)
		if root.isLeaf || !root.isFull() {
			continue
		}
		last = tree.store.pages[root.entries[root.numEntries-1].child]
		if last.isFull() {
			break
		}
	}

	// A sibling of the full leaf dangles; splitting the root would move it.
	root.entries[0].child = PageID(9999)
	pages, counter, records := tree.store.len(), tree.PageCount(), tree.Len()
	maxSep := root.entries[root.numEntries-1].key

	err := tree.AddRecord(key(k+1), 0, k+1)
	require.ErrorIs(t, err, ErrIndexCorruption)

	require.Equal(t, pages, tree.store.len())
	require.Equal(t, counter, tree.PageCount())
	require.Equal(t, records, tree.Len())
	require.Equal(t, 2, tree.Height())
	require.Equal(t, last.maxEntries, last.NumEntries())
	require.Equal(t, root.maxEntries, root.NumEntries())
	require.Equal(t, maxSep, root.entries[root.numEntries-1].key)
	require.Equal(t, root.id, last.parent)
}

func TestCheck_DetectsBrokenInvariants(t *testing.T) {
	t.Run("parent back-reference", func(t *testing.T) {
		tree := buildTallTree(t)
		root := rootPage(t, tree)
		tree.store.pages[root.entries[1].child].parent = PageID(12345)
		require.ErrorIs(t, tree.Check(), ErrIndexCorruption)
	})
	t.Run("orphan page", func(t *testing.T) {
		tree := buildTallTree(t)
		tree.store.createPage(true, InvalidPageID)
		require.ErrorIs(t, tree.Check(), ErrIndexCorruption)
		require.ErrorIs(t, tree.Destroy(), ErrIndexCorruption)
		require.Zero(t, tree.store.len())
	})
	t.Run("out of order keys", func(t *testing.T) {
		tree := newTestTree(t, 4)
		for _, k := range []uint32{1, 2, 3} {
			require.NoError(t, tree.AddRecord(key(k), 0, k))
		}
		root := rootPage(t, tree)
		root.entries[0], root.entries[1] = root.entries[1], root.entries[0]
		require.ErrorIs(t, tree.Check(), ErrIndexCorruption)
	})
}
