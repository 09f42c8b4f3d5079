package inode

import (
	"bytes"
	"testing"

	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/stretchr/testify/require"
)

func TestTableAddBytesDedups(t *testing.T) {
	tb := NewTable()

	a := tb.AddBytes([]byte("hello world"))
	b := tb.AddBytes([]byte("hello world"))
	require.Same(t, a, b, "identical content should share one inode")

	c := tb.AddBytes([]byte("hello world!"))
	require.NotSame(t, a, c, "different content must not share an inode")
}

func TestTableZeroIsSingleton(t *testing.T) {
	tb := NewTable()

	z1 := tb.Zero()
	z2 := tb.AddBytes(nil)
	require.Same(t, z1, z2)
	require.False(t, z1.HasExtent())
	require.Equal(t, uint64(0), z1.Length)
}

func TestTableRefCounting(t *testing.T) {
	tb := NewTable()
	n := tb.AddBytes([]byte("payload"))
	require.Equal(t, 0, n.RefCount())

	isoNode := &directory.Node{Name: "FILE.TXT"}
	jolietNode := &directory.Node{Name: "file.txt"}

	tb.AddRef(n, PlaneISO, isoNode)
	tb.AddRef(n, PlaneJoliet, jolietNode)
	require.Equal(t, 2, n.RefCount())
	require.Equal(t, n.ID, isoNode.InodeID)
	require.Equal(t, n.ID, jolietNode.InodeID)

	freed := tb.RemoveRef(n, PlaneISO, isoNode)
	require.False(t, freed, "payload still has a Joliet reference")
	require.Equal(t, 1, n.RefCount())

	freed = tb.RemoveRef(n, PlaneJoliet, jolietNode)
	require.True(t, freed, "last reference removed should free the inode")

	_, ok := tb.Get(n.ID)
	require.False(t, ok, "freed inode must not still be reachable from the table")
}

func TestTableAddReaderAtNeverDedups(t *testing.T) {
	tb := NewTable()
	r := bytes.NewReader([]byte("same bytes"))

	a := tb.AddReaderAt(r, 0, 10)
	b := tb.AddReaderAt(r, 0, 10)
	require.NotSame(t, a, b, "reader-backed payloads are never content-deduped")
}

func TestInodeSourceReadAt(t *testing.T) {
	tb := NewTable()
	n := tb.AddBytes([]byte("0123456789"))

	buf := make([]byte, 4)
	got, err := n.Source.ReadAt(buf, 3)
	require.NoError(t, err)
	require.Equal(t, 4, got)
	require.Equal(t, []byte("3456"), buf)
}

func TestTableAllOrderedByID(t *testing.T) {
	tb := NewTable()
	tb.AddBytes([]byte("a"))
	tb.AddBytes([]byte("b"))
	tb.AddBytes([]byte("c"))

	all := tb.All()
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].ID, all[i].ID)
	}
}
