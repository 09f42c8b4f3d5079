package udf

import (
	"testing"
	"time"

	"github.com/bgrewell/iso-forge/pkg/clock"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/stretchr/testify/require"
)

// TestBuildReportsFileAndDirCounts mirrors a minimal root + one file tree
// (already extent-assigned, as the layout planner would have left it) and
// checks the round-tripped Logical Volume Integrity Descriptor reports one
// file and one directory - buildNode counts the root itself as a directory,
// so a tree with a single file child naturally yields NumDirs=1, NumFiles=1.
func TestBuildReportsFileAndDirCounts(t *testing.T) {
	root := directory.NewTree()
	root.AddChild("FILE.TXT;1", &directory.DirectoryRecord{
		FileIdentifier:   "FILE.TXT;1",
		DataLength:       11,
		LocationOfExtent: 100,
	})

	fixed := clock.Fixed(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	result, err := Build(root, 200, "TESTVOL", fixed)
	require.NoError(t, err)
	require.NotEmpty(t, result.Objects)
	require.Greater(t, result.NextFreeLBA, uint32(200))

	var lvid *LogicalVolumeIntegrityDescriptor
	for _, obj := range result.Objects {
		if obj.Name() == "UDF LVID" {
			data, err := obj.Marshal()
			require.NoError(t, err)
			require.Len(t, data, BlockSize)

			var sector [BlockSize]byte
			copy(sector[:], data)

			var decoded LogicalVolumeIntegrityDescriptor
			require.NoError(t, decoded.Unmarshal(sector))
			lvid = &decoded
		}
	}

	require.NotNil(t, lvid, "Build must emit a Logical Volume Integrity Descriptor")
	require.Equal(t, uint32(1), lvid.NumFiles)
	require.Equal(t, uint32(1), lvid.NumDirs)
}

func TestBuildEmitsBridgeVolumeStructureDescriptors(t *testing.T) {
	root := directory.NewTree()
	fixed := clock.Fixed(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	result, err := Build(root, 16, "EMPTYVOL", fixed)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, obj := range result.Objects {
		names[obj.Name()] = true
	}
	require.True(t, names["BEA01"])
	require.True(t, names["NSR02"])
	require.True(t, names["TEA01"])
}
