package planner

import (
	"fmt"
	"io"

	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/inode"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
)

// DirectoryExtent is one directory's on-disk extent: its self/parent/child
// records, marshaled once Plan has assigned every sibling and descendant a
// location.
type DirectoryExtent struct {
	node     *directory.Node
	location uint32
	size     uint32
}

func (d *DirectoryExtent) Type() string        { return "Directory" }
func (d *DirectoryExtent) Name() string        { return displayName(d.node) }
func (d *DirectoryExtent) Description() string { return "directory extent" }

func (d *DirectoryExtent) Properties() map[string]interface{} {
	return map[string]interface{}{
		"lba":      d.location,
		"children": len(d.node.Children),
	}
}

func (d *DirectoryExtent) Offset() int64 { return int64(d.location) * consts.ISO9660_SECTOR_SIZE }
func (d *DirectoryExtent) Size() int     { return int(d.size) }

func (d *DirectoryExtent) GetObjects() []info.ImageObject {
	return []info.ImageObject{d}
}

func (d *DirectoryExtent) Marshal() ([]byte, error) {
	return marshalDirectory(d.node)
}

// FileExtent is one file's payload extent, read through its Inode's Source
// at Marshal time so Plan never has to hold every file's bytes in memory at
// once.
type FileExtent struct {
	node     *directory.Node
	inode    *inode.Inode
	location uint32
}

func (f *FileExtent) Type() string        { return "File" }
func (f *FileExtent) Name() string        { return displayName(f.node) }
func (f *FileExtent) Description() string { return "file data extent" }

func (f *FileExtent) Properties() map[string]interface{} {
	return map[string]interface{}{
		"lba":      f.location,
		"length":   f.inode.Length,
		"inode_id": f.inode.ID,
	}
}

func (f *FileExtent) Offset() int64 { return int64(f.location) * consts.ISO9660_SECTOR_SIZE }

func (f *FileExtent) Size() int {
	return int(sectorsFor(f.inode.Length)) * consts.ISO9660_SECTOR_SIZE
}

func (f *FileExtent) GetObjects() []info.ImageObject {
	return []info.ImageObject{f}
}

func (f *FileExtent) Marshal() ([]byte, error) {
	size := f.Size()
	buf := make([]byte, size)
	n, err := f.inode.Source.ReadAt(buf[:f.inode.Length], 0)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("planner: reading payload for %q: %w", f.node.Name, err)
	}
	if uint64(n) != f.inode.Length {
		return nil, fmt.Errorf("planner: short read for %q: got %d of %d bytes", f.node.Name, n, f.inode.Length)
	}
	return buf, nil
}

func displayName(n *directory.Node) string {
	if n.Name == "" {
		return "/"
	}
	return n.Name
}
