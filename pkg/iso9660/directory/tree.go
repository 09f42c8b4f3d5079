package directory

import (
	"fmt"
	"sort"

	"github.com/bgrewell/iso-forge/pkg/consts"
)

// Node is one directory in an in-memory tree built either by parsing an
// existing image (pkg/iso9660/parser) or by the remaster planner
// (pkg/iso9660/planner) before extents are assigned.
type Node struct {
	Name     string
	Record   *DirectoryRecord
	Parent   *Node
	Children []*Node
	// InodeID links this directory's "file" records to the content-addressed
	// payload table; directories themselves have no payload.
	InodeID uint64
}

// NewTree creates the root node ("\x00" self-identifier, no parent).
func NewTree() *Node {
	return &Node{
		Name: "",
		Record: &DirectoryRecord{
			FileIdentifier: "\x00",
			FileFlags:      FileFlags{Directory: true},
		},
	}
}

// AddChild inserts child into d.Children in §3.2 invariant-5 order (raw
// byte comparison of the identifier, matching the on-disk sort every
// conformant mastering tool and path table builder relies on) and returns
// the freshly linked node.
func (d *Node) AddChild(name string, record *DirectoryRecord) *Node {
	child := &Node{Name: name, Record: record, Parent: d}
	d.insertSorted(child)
	return child
}

// insertSorted performs an insertion sort of child into d.Children; real
// directories rarely exceed a few hundred entries, so O(n) insertion beats
// the overhead of sorting the whole slice after every Add.
func (d *Node) insertSorted(child *Node) {
	i := sort.Search(len(d.Children), func(i int) bool {
		return compareIdentifiers(d.Children[i].Name, child.Name) > 0
	})
	d.Children = append(d.Children, nil)
	copy(d.Children[i+1:], d.Children[i:])
	d.Children[i] = child
}

// compareIdentifiers implements raw byte comparison, not locale-aware
// comparison, matching path table tie-breaking.
func compareIdentifiers(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Depth returns the number of path components from the root to d,
// inclusive of d itself (root is depth 0).
func (d *Node) Depth() int {
	depth := 0
	for p := d.Parent; p != nil; p = p.Parent {
		depth++
	}
	return depth
}

// MaxInterchangeDepth is the deepest a directory may sit before it must be
// relocated under the RR_MOVED placeholder (ECMA-119 6.8.2.1 / §4.5).
const MaxInterchangeDepth = 8

// Walk performs a pre-order traversal of the tree rooted at d.
func (d *Node) Walk(visit func(n *Node) error) error {
	if err := visit(d); err != nil {
		return err
	}
	for _, c := range d.Children {
		if err := c.Walk(visit); err != nil {
			return err
		}
	}
	return nil
}

// SplitExtents chains a sequence of DirectoryRecords for a single file
// whose data length exceeds the maximum a single both-endian DataLength
// field can address cleanly on a given interchange level, or whose extent
// is deliberately split (multi-extent, FileFlags.MultiExtent bit set on every
// record but the last). Each record but the final one has the Multi-Extent
// bit set and covers exactly maxExtentBytes; the final one carries the
// remainder and has the bit clear.
func SplitExtents(base DirectoryRecord, totalSize uint32, firstLBA uint32, maxExtentBytes uint32) ([]DirectoryRecord, error) {
	if maxExtentBytes == 0 {
		return nil, fmt.Errorf("directory: maxExtentBytes must be non-zero")
	}
	if totalSize <= maxExtentBytes {
		rec := base
		rec.LocationOfExtent = firstLBA
		rec.DataLength = totalSize
		rec.FileFlags.MultiExtent = false
		return []DirectoryRecord{rec}, nil
	}

	var records []DirectoryRecord
	remaining := totalSize
	lba := firstLBA
	sectorsPerExtent := (maxExtentBytes + consts.ISO9660_SECTOR_SIZE - 1) / consts.ISO9660_SECTOR_SIZE
	for remaining > 0 {
		rec := base
		rec.LocationOfExtent = lba
		if remaining > maxExtentBytes {
			rec.DataLength = maxExtentBytes
			rec.FileFlags.MultiExtent = true
			remaining -= maxExtentBytes
			lba += sectorsPerExtent
		} else {
			rec.DataLength = remaining
			rec.FileFlags.MultiExtent = false
			remaining = 0
		}
		records = append(records, rec)
	}
	return records, nil
}
