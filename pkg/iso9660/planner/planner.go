// Package planner implements the remaster layout pass (spec.md §4.8):
// given an in-memory directory tree and the content-addressed payloads its
// files point at, assign every directory and file an extent, build the two
// path tables, and hand back objects ready to drop into Pack's offset-
// sorted write list. It does not decide what belongs in the tree - callers
// build that with pkg/iso9660/directory and pkg/inode and pass it in here
// once, after every name has been added.
package planner

import (
	"fmt"

	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/inode"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
	"github.com/bgrewell/iso-forge/pkg/iso9660/pathtable"
)

// Result is everything Pack needs once a tree has been laid out: the two
// path tables, and the directory/file extents as ImageObjects ready to be
// merged into the image's offset-sorted write list.
type Result struct {
	PathTableL *pathtable.PathTable
	PathTableM *pathtable.PathTable
	Objects    []info.ImageObject
	// NextFreeLBA is the first sector after everything this Plan assigned,
	// for a caller laying out further planes (Joliet, UDF) or trailing
	// components (El Torito catalog, isohybrid) after this one.
	NextFreeLBA uint32
}

// Plan walks root (built via directory.NewTree/AddChild, with each file
// node's Record.DataLength already set and a matching *inode.Inode
// obtainable through lookup), assigns LBAs starting at startLBA, and
// returns the finished path tables and extent objects. Directories are
// placed first in path-table order (depth ascending, then by parent, then
// identifier ascending - the same order ECMA-119 6.9.1 requires of the path
// table itself), then file data follows in tree pre-order.
//
// lookup resolves a file node to the Inode holding its payload; it is
// called once per file node, zero-length files included (they resolve to
// the sentinel and get no extent). Directories never reach lookup.
func Plan(root *directory.Node, startLBA uint32, lookup func(n *directory.Node) (*inode.Inode, error)) (*Result, error) {
	dirNodes := collectDirectories(root)

	lba := startLBA
	dirExtents := make([]*DirectoryExtent, 0, len(dirNodes))
	for _, n := range dirNodes {
		size := directoryContentSize(n)
		n.Record.LocationOfExtent = lba
		n.Record.DataLength = size
		dirExtents = append(dirExtents, &DirectoryExtent{node: n, location: lba, size: size})
		lba += sectorsFor(uint64(size))
	}

	fileExtents, err := planFiles(root, &lba, lookup)
	if err != nil {
		return nil, err
	}

	ptL, err := pathtable.Build(root, true)
	if err != nil {
		return nil, fmt.Errorf("planner: building little-endian path table: %w", err)
	}
	ptM, err := pathtable.Build(root, false)
	if err != nil {
		return nil, fmt.Errorf("planner: building big-endian path table: %w", err)
	}

	objects := make([]info.ImageObject, 0, len(dirExtents)+len(fileExtents))
	for _, d := range dirExtents {
		objects = append(objects, d)
	}
	for _, f := range fileExtents {
		objects = append(objects, f)
	}

	return &Result{
		PathTableL:  ptL,
		PathTableM:  ptM,
		Objects:     objects,
		NextFreeLBA: lba,
	}, nil
}

// PlanOverlay lays out a second tree (Joliet) that names the same payloads
// as a tree already planned via Plan: directories get their own freshly
// allocated extents here, since Joliet's UCS-2 identifiers give them a
// different marshaled size than the primary tree's directories, but file
// nodes never get a new extent - lookup must resolve to the *inode.Inode
// Plan already assigned a location, and that location/length is copied onto
// the Joliet record directly (spec.md §3.2 invariant 2: every name across
// planes for one file points at the same extent).
func PlanOverlay(root *directory.Node, startLBA uint32, lookup func(n *directory.Node) (*inode.Inode, error)) (*Result, error) {
	dirNodes := collectDirectories(root)

	lba := startLBA
	dirExtents := make([]*DirectoryExtent, 0, len(dirNodes))
	for _, n := range dirNodes {
		size := directoryContentSize(n)
		n.Record.LocationOfExtent = lba
		n.Record.DataLength = size
		dirExtents = append(dirExtents, &DirectoryExtent{node: n, location: lba, size: size})
		lba += sectorsFor(uint64(size))
	}

	if err := linkPlannedFiles(root, lookup); err != nil {
		return nil, err
	}

	ptL, err := pathtable.Build(root, true)
	if err != nil {
		return nil, fmt.Errorf("planner: building little-endian overlay path table: %w", err)
	}
	ptM, err := pathtable.Build(root, false)
	if err != nil {
		return nil, fmt.Errorf("planner: building big-endian overlay path table: %w", err)
	}

	objects := make([]info.ImageObject, 0, len(dirExtents))
	for _, d := range dirExtents {
		objects = append(objects, d)
	}

	return &Result{
		PathTableL:  ptL,
		PathTableM:  ptM,
		Objects:     objects,
		NextFreeLBA: lba,
	}, nil
}

// linkPlannedFiles walks every non-directory child of root and copies its
// already-assigned inode location/length onto the record, without
// allocating a new extent - the file's data was already placed by an
// earlier Plan pass over the primary tree sharing the same inode table.
func linkPlannedFiles(root *directory.Node, lookup func(n *directory.Node) (*inode.Inode, error)) error {
	var walk func(n *directory.Node) error
	walk = func(n *directory.Node) error {
		for _, c := range n.Children {
			if c.Record.IsDirectory() {
				if err := walk(c); err != nil {
					return err
				}
				continue
			}

			in, err := lookup(c)
			if err != nil {
				return fmt.Errorf("planner: resolving overlay inode for %q: %w", c.Name, err)
			}

			c.Record.DataLength = uint32(in.Length)
			c.Record.LocationOfExtent = in.ExtentLocation
		}
		return nil
	}
	return walk(root)
}

// collectDirectories returns every directory node in root's tree in
// path-table order.
func collectDirectories(root *directory.Node) []*directory.Node {
	var dirs []*directory.Node
	var walk func(n *directory.Node)
	walk = func(n *directory.Node) {
		dirs = append(dirs, n)
		for _, c := range n.Children {
			if c.Record.IsDirectory() {
				walk(c)
			}
		}
	}
	walk(root)

	byDepth := make(map[int][]*directory.Node)
	maxDepth := 0
	for _, n := range dirs {
		d := n.Depth()
		byDepth[d] = append(byDepth[d], n)
		if d > maxDepth {
			maxDepth = d
		}
	}

	ordered := make([]*directory.Node, 0, len(dirs))
	for d := 0; d <= maxDepth; d++ {
		ordered = append(ordered, byDepth[d]...)
	}
	return ordered
}

// planFiles assigns extents to every non-directory child across the tree,
// in pre-order, advancing *lba past each one. Zero-length files share the
// sentinel inode and get no extent, per spec.md §3.1.
func planFiles(root *directory.Node, lba *uint32, lookup func(n *directory.Node) (*inode.Inode, error)) ([]*FileExtent, error) {
	var extents []*FileExtent

	var walk func(n *directory.Node) error
	walk = func(n *directory.Node) error {
		for _, c := range n.Children {
			if c.Record.IsDirectory() {
				if err := walk(c); err != nil {
					return err
				}
				continue
			}

			in, err := lookup(c)
			if err != nil {
				return fmt.Errorf("planner: resolving inode for %q: %w", c.Name, err)
			}

			c.Record.DataLength = uint32(in.Length)
			if !in.HasExtent() {
				c.Record.LocationOfExtent = 0
				continue
			}

			in.ExtentLocation = *lba
			c.Record.LocationOfExtent = *lba
			extents = append(extents, &FileExtent{node: c, inode: in, location: *lba})
			*lba += sectorsFor(in.Length)
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return extents, nil
}

// directoryContentSize computes the sector-padded byte size of n's marshaled
// directory extent: the self ("."), parent (".."), and one record per child,
// each individually padded so no record crosses a sector boundary (ECMA-119
// 6.8.1.1 - a directory record must not span two logical blocks).
func directoryContentSize(n *directory.Node) uint32 {
	raw, err := marshalDirectory(n)
	if err != nil {
		return consts.ISO9660_SECTOR_SIZE
	}
	return uint32(len(raw))
}

func sectorsFor(length uint64) uint32 {
	if length == 0 {
		return 1
	}
	return uint32((length + consts.ISO9660_SECTOR_SIZE - 1) / consts.ISO9660_SECTOR_SIZE)
}
