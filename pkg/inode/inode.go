// Package inode implements the content-addressed payload table described
// in spec.md §3.1/§9: a file's bytes are an Inode shared by every name that
// refers to them (ISO, Joliet, UDF, hard links), rather than each plane's
// directory tree owning its own copy of the data. The planner assigns
// ExtentLocation once Pack has decided where every payload lands on disk.
package inode

import (
	"fmt"
	"io"

	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
)

// Plane identifies which name tree a BackRef's directory record belongs to.
// Rock Ridge is an overlay on the ISO plane's records, not a tree of its
// own, so it has no separate Plane value.
type Plane int

const (
	PlaneISO Plane = iota
	PlaneJoliet
	PlaneUDF
)

func (p Plane) String() string {
	switch p {
	case PlaneISO:
		return "iso"
	case PlaneJoliet:
		return "joliet"
	case PlaneUDF:
		return "udf"
	default:
		return fmt.Sprintf("plane(%d)", int(p))
	}
}

// BackRef points at one directory record naming an Inode's payload. Node
// carries its own InodeID back to the Inode it names, so the two types
// reference each other in both directions.
type BackRef struct {
	Plane Plane
	Node  *directory.Node
}

// Source supplies an Inode's bytes on demand. Pack reads through Source
// when it writes the payload's extent; it never needs the whole file in
// memory at once.
type Source interface {
	// Len returns the payload length in bytes.
	Len() int64
	// ReadAt behaves like io.ReaderAt over the logical payload, independent
	// of wherever the backing data actually lives.
	ReadAt(p []byte, off int64) (int, error)
}

// readerSource addresses a byte range of an already-open stream, e.g. a
// file being repacked from an existing image or staged from the host
// filesystem. It never reads ahead of what ReadAt asks for.
type readerSource struct {
	r      io.ReaderAt
	offset int64
	length int64
}

// FromReaderAt builds a Source over [offset, offset+length) of r. Used for
// payloads staged from disk or copied forward from a source image, where
// hashing the content up front to dedup it isn't worth the read.
func FromReaderAt(r io.ReaderAt, offset, length int64) Source {
	return readerSource{r: r, offset: offset, length: length}
}

func (s readerSource) Len() int64 { return s.length }

func (s readerSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > s.length {
		return 0, fmt.Errorf("inode: read offset %d out of range for %d-byte source", off, s.length)
	}
	if off+int64(len(p)) > s.length {
		p = p[:s.length-off]
	}
	return s.r.ReadAt(p, s.offset+off)
}

// bytesSource holds a payload entirely in memory, used for small synthesized
// or mutated content (e.g. a rewritten boot catalog entry or a file edited
// in place) where staging a temp file would be overhead.
type bytesSource struct {
	data []byte
}

// FromBytes builds a Source over data. Callers must not mutate data after
// handing it to FromBytes; the Source does not copy it.
func FromBytes(data []byte) Source {
	return bytesSource{data: data}
}

func (s bytesSource) Len() int64 { return int64(len(s.data)) }

func (s bytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, fmt.Errorf("inode: read offset %d out of range for %d-byte source", off, len(s.data))
	}
	return copy(p, s.data[off:]), nil
}

// zeroSource is the sentinel payload for zero-length files (spec.md §3.1:
// "Zero-length files share a sentinel inode with no extent").
type zeroSource struct{}

func (zeroSource) Len() int64 { return 0 }

func (zeroSource) ReadAt(p []byte, off int64) (int, error) {
	if off != 0 {
		return 0, fmt.Errorf("inode: read offset %d out of range for empty source", off)
	}
	return 0, io.EOF
}

// Inode is one content-addressed payload: a length, a Source to read it
// from, the extent the planner assigns it, and the set of directory
// records across all planes that name it.
type Inode struct {
	ID             uint64
	Length         uint64
	ExtentLocation uint32
	Source         Source
	BackRefs       []BackRef
}

// RefCount returns the number of directory records currently naming this
// Inode's payload.
func (n *Inode) RefCount() int {
	return len(n.BackRefs)
}

// HasExtent reports whether this Inode needs an extent, judged by its
// length alone: zero-length files never get one; everything else is given
// one by Pack's extent-assignment pass (spec.md §4.8).
func (n *Inode) HasExtent() bool {
	return n.Length > 0
}
