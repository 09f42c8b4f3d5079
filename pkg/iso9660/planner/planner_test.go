package planner

import (
	"errors"
	"testing"

	"github.com/bgrewell/iso-forge/pkg/inode"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/stretchr/testify/require"
)

func buildSimpleTree(t *testing.T, table *inode.Table) *directory.Node {
	t.Helper()

	root := directory.NewTree()

	readme := root.AddChild("README.TXT;1", &directory.DirectoryRecord{
		FileIdentifier: "README.TXT;1",
	})
	in := table.AddBytes([]byte("hello world"))
	table.AddRef(in, inode.PlaneISO, readme)

	sub := root.AddChild("SUBDIR", &directory.DirectoryRecord{
		FileIdentifier: "SUBDIR",
		FileFlags:      directory.FileFlags{Directory: true},
	})

	nested := sub.AddChild("NESTED.TXT;1", &directory.DirectoryRecord{
		FileIdentifier: "NESTED.TXT;1",
	})
	in2 := table.AddBytes([]byte("nested content"))
	table.AddRef(in2, inode.PlaneISO, nested)

	empty := sub.AddChild("EMPTY.TXT;1", &directory.DirectoryRecord{
		FileIdentifier: "EMPTY.TXT;1",
	})
	table.AddRef(table.Zero(), inode.PlaneISO, empty)

	return root
}

func TestPlanAssignsDirectoriesBeforeFiles(t *testing.T) {
	table := inode.NewTable()
	root := buildSimpleTree(t, table)

	result, err := Plan(root, 20, func(n *directory.Node) (*inode.Inode, error) {
		in, ok := table.Get(n.InodeID)
		require.True(t, ok)
		return in, nil
	})
	require.NoError(t, err)

	require.Equal(t, uint32(20), root.Record.LocationOfExtent)

	var subdir *directory.Node
	for _, c := range root.Children {
		if c.Name == "SUBDIR" {
			subdir = c
		}
	}
	require.NotNil(t, subdir)
	require.Greater(t, subdir.Record.LocationOfExtent, root.Record.LocationOfExtent)

	for _, c := range subdir.Children {
		if c.Name == "NESTED.TXT;1" {
			require.Greater(t, c.Record.LocationOfExtent, subdir.Record.LocationOfExtent)
		}
		if c.Name == "EMPTY.TXT;1" {
			require.Equal(t, uint32(0), c.Record.LocationOfExtent, "zero-length file gets no extent")
		}
	}

	require.Greater(t, result.NextFreeLBA, uint32(20))
}

func TestPlanBuildsBothPathTables(t *testing.T) {
	table := inode.NewTable()
	root := buildSimpleTree(t, table)

	result, err := Plan(root, 20, func(n *directory.Node) (*inode.Inode, error) {
		in, ok := table.Get(n.InodeID)
		require.True(t, ok)
		return in, nil
	})
	require.NoError(t, err)

	require.NotNil(t, result.PathTableL)
	require.NotNil(t, result.PathTableM)
	require.Len(t, result.PathTableL.Records, 2, "root + SUBDIR")
	require.Len(t, result.PathTableM.Records, 2)
}

func TestPlanObjectsCoverEveryNonEmptyFileAndDirectory(t *testing.T) {
	table := inode.NewTable()
	root := buildSimpleTree(t, table)

	result, err := Plan(root, 20, func(n *directory.Node) (*inode.Inode, error) {
		in, ok := table.Get(n.InodeID)
		require.True(t, ok)
		return in, nil
	})
	require.NoError(t, err)

	var dirs, files int
	for _, obj := range result.Objects {
		switch obj.Type() {
		case "Directory":
			dirs++
		case "File":
			files++
		}
	}
	require.Equal(t, 2, dirs, "root and SUBDIR")
	require.Equal(t, 2, files, "README.TXT and NESTED.TXT, excluding the zero-length EMPTY.TXT")
}

func TestPlanPropagatesLookupError(t *testing.T) {
	root := directory.NewTree()
	root.AddChild("BROKEN.TXT;1", &directory.DirectoryRecord{FileIdentifier: "BROKEN.TXT;1"})

	_, err := Plan(root, 20, func(n *directory.Node) (*inode.Inode, error) {
		return nil, errors.New("no inode for node")
	})
	require.Error(t, err)
}
