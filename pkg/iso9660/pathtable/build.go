package pathtable

import (
	"sort"

	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
)

// buildEntry tracks a directory while the table is being assembled, before
// parent directory numbers are known (they depend on the final sort order).
type buildEntry struct {
	node   *directory.Node
	record *PathTableRecord
}

// Build walks a directory tree (root first) and produces a PathTable whose
// records are ordered depth ascending, then by parent directory number,
// then by identifier (raw byte comparison) - the order ECMA-119 6.9.1
// requires, so that a record's ParentDirectoryNumber always refers to an
// already-assigned lower or equal table index. A stable sort by depth over
// the pre-order walk yields that order, since every parent's children are
// kept sorted by directory.Node.AddChild. The teacher's PathTable type only
// parses an existing table; this fills the gap for remastering.
func Build(root *directory.Node, littleEndian bool) (*PathTable, error) {
	var entries []*buildEntry

	var walk func(n *directory.Node)
	walk = func(n *directory.Node) {
		entries = append(entries, &buildEntry{node: n})
		// children already kept in sorted order by directory.Node.AddChild
		for _, c := range n.Children {
			if c.Record.IsDirectory() {
				walk(c)
			}
		}
	}
	walk(root)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].node.Depth() < entries[j].node.Depth()
	})

	// Assign table indices (1-based) now that order is final.
	index := make(map[*directory.Node]uint16, len(entries))
	for i, e := range entries {
		index[e.node] = uint16(i + 1)
	}

	pt := &PathTable{littleEndian: littleEndian}
	for _, e := range entries {
		parentNum := uint16(1)
		if e.node.Parent != nil {
			parentNum = index[e.node.Parent]
		}
		identifier := e.node.Record.FileIdentifier
		if e.node.Parent == nil {
			identifier = "\x00"
		}
		rec := &PathTableRecord{
			ExtendedAttributeRecordLength: e.node.Record.ExtendedAttributeRecordLength,
			LocationOfExtent:              e.node.Record.LocationOfExtent,
			ParentDirectoryNumber:         parentNum,
			DirectoryIdentifier:           identifier,
			littleEndian:                  littleEndian,
		}
		e.record = rec
		pt.Records = append(pt.Records, rec)
	}

	return pt, nil
}

func parentIdentifier(n *directory.Node) string {
	if n.Parent == nil {
		return ""
	}
	return n.Parent.Record.FileIdentifier
}
