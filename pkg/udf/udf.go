// Package udf implements the ECMA-167/UDF 2.60 bridge format this project
// embeds alongside an ISO 9660 (and optionally Joliet) tree on the same
// image: a pair of volume descriptor sequences, a single-partition
// logical volume, and a File Set rooted at a directory File Entry whose
// children are File Identifier Descriptors pointing at further File
// Entries. UDF is never a standalone image type here — it shares the
// same on-disk extents and the same inode content as the ISO 9660 tree,
// so this package only ever builds or parses the UDF-specific descriptor
// graph; pkg/iso9660 owns the overall façade and file data.
package udf

import (
	"fmt"
	"io"
)

// Node is one entry in the UDF directory tree: a directory's File Entry
// addresses an extent of FileIdentifierDescriptors, each naming a child
// Node; a regular file's File Entry addresses its data via ShortADs.
type Node struct {
	Name     string
	IsDir    bool
	Entry    FileEntry
	EntryLoc uint32 // logical block the FileEntry was/will be recorded at
	Children []*Node

	// DataLocation/DataLength describe a regular file's single-extent
	// data run; for a directory, DataLocation instead holds its FID
	// extent's first block once laid out.
	DataLocation uint32
	DataLength   uint64

	// pendingFIDs holds a freshly built directory's child File Identifier
	// Descriptors between Build's layout pass and its marshal pass; a
	// Node parsed back from disk via ParseDirectory never populates this.
	pendingFIDs []FileIdentifierDescriptor
}

// Sequence is one volume descriptor sequence (ECMA-167 3/8.4.2): the main
// sequence at a fixed extent, or its reserve duplicate, terminated by a
// TerminatingDescriptor.
type Sequence struct {
	Primary            PrimaryVolumeDescriptor
	ImplementationUse  ImplementationUseVolumeDescriptor
	Partition          PartitionDescriptor
	LogicalVolume      LogicalVolumeDescriptor
	UnallocatedSpace   UnallocatedSpaceDescriptor
	Terminator         TerminatingDescriptor
}

// Volume is the complete set of UDF structures this package writes for a
// single-partition image: main and reserve descriptor sequences, the two
// anchor pointers that locate them, the integrity descriptor, the file
// set descriptor, and the root of the directory tree.
type Volume struct {
	Main    Sequence
	Reserve Sequence

	AnchorMain    AnchorVolumeDescriptorPointer
	AnchorReserve AnchorVolumeDescriptorPointer

	Integrity LogicalVolumeIntegrityDescriptor
	FileSet   FileSetDescriptor

	Root *Node
}

// SequenceLayout records the extents Build assigns to one descriptor
// sequence's six descriptors, in the fixed order ECMA-167 3/8.4.2 lists
// them: PVD, ImplementationUseVD, PartitionDescriptor, LogicalVolumeVD,
// UnallocatedSpaceVD, Terminator.
type SequenceLayout struct {
	Primary, ImplementationUse, Partition, LogicalVolume, UnallocatedSpace, Terminator uint32
}

// Layout carries every fixed extent Build needs; the caller (the layout
// planner) owns the overall extent budget and hands back where each UDF
// structure landed so later planes (back-reference recomputation) can
// find them again.
type Layout struct {
	AnchorMain, AnchorReserve   uint32
	Main, Reserve               SequenceLayout
	Integrity                   uint32
	FileSetExtent               uint32
	PartitionStart              uint32
	PartitionLength              uint32
}

// MarshalSequence writes the six descriptors of one sequence at the
// extents given by l, returning one []byte per BlockSize-sized sector in
// on-disk order.
func MarshalSequence(s Sequence, l SequenceLayout) ([][]byte, error) {
	var out [][]byte

	pvd, err := s.Primary.Marshal(l.Primary)
	if err != nil {
		return nil, fmt.Errorf("udf: marshal primary volume descriptor: %w", err)
	}
	out = append(out, pvd[:])

	iuvd, err := s.ImplementationUse.Marshal(l.ImplementationUse)
	if err != nil {
		return nil, fmt.Errorf("udf: marshal implementation use volume descriptor: %w", err)
	}
	out = append(out, iuvd[:])

	pd := s.Partition.Marshal(l.Partition)
	out = append(out, pd[:])

	lvd, err := s.LogicalVolume.Marshal(l.LogicalVolume)
	if err != nil {
		return nil, fmt.Errorf("udf: marshal logical volume descriptor: %w", err)
	}
	out = append(out, lvd[:])

	usd := s.UnallocatedSpace.Marshal(l.UnallocatedSpace)
	out = append(out, usd[:])

	term := s.Terminator.Marshal(l.Terminator)
	out = append(out, term[:])

	return out, nil
}

// MarshalAnchors writes the main and reserve anchor volume descriptor
// pointers, each pointing at its sequence's extent range.
func (v Volume) MarshalAnchors(l Layout) (main, reserve [BlockSize]byte) {
	mainExtent := ExtentAD{Length: 6 * BlockSize, Location: l.Main.Primary}
	reserveExtent := ExtentAD{Length: 6 * BlockSize, Location: l.Reserve.Primary}

	a := AnchorVolumeDescriptorPointer{Main: mainExtent, Reserve: reserveExtent}
	main = a.Marshal(l.AnchorMain)
	reserve = a.Marshal(l.AnchorReserve)
	return main, reserve
}

// MarshalIntegrity writes the logical volume integrity descriptor at its
// fixed extent (spec.md §4.7: extent 64).
func (v Volume) MarshalIntegrity(l Layout) [BlockSize]byte {
	return v.Integrity.Marshal(l.Integrity)
}

// MarshalFileSet writes the file set descriptor at the start of the
// partition.
func (v Volume) MarshalFileSet(l Layout) ([BlockSize]byte, error) {
	return v.FileSet.Marshal(l.FileSetExtent)
}

// ParseAnchor locates and parses an anchor volume descriptor pointer at
// the given extent, reading one BlockSize-sized sector from r.
func ParseAnchor(r io.ReaderAt, extent uint32) (AnchorVolumeDescriptorPointer, error) {
	var sector [BlockSize]byte
	if _, err := r.ReadAt(sector[:], int64(extent)*BlockSize); err != nil {
		return AnchorVolumeDescriptorPointer{}, fmt.Errorf("udf: read anchor at extent %d: %w", extent, err)
	}
	var a AnchorVolumeDescriptorPointer
	if err := a.Unmarshal(sector); err != nil {
		return AnchorVolumeDescriptorPointer{}, err
	}
	return a, nil
}

// ParseSequence reads and classifies the descriptors making up one
// sequence, starting at extent and stopping at a TerminatingDescriptor or
// after maxDescriptors sectors — whichever comes first, guarding against
// a missing terminator in a corrupt image.
func ParseSequence(r io.ReaderAt, extent uint32, maxDescriptors int) (Sequence, error) {
	var s Sequence
	for i := 0; i < maxDescriptors; i++ {
		var sector [BlockSize]byte
		if _, err := r.ReadAt(sector[:], int64(extent+uint32(i))*BlockSize); err != nil {
			return s, fmt.Errorf("udf: read descriptor at extent %d: %w", extent+uint32(i), err)
		}

		var tagBytes [TagSize]byte
		copy(tagBytes[:], sector[0:TagSize])
		var tag Tag
		if err := tag.Unmarshal(tagBytes); err != nil {
			return s, fmt.Errorf("udf: descriptor tag at extent %d: %w", extent+uint32(i), err)
		}

		switch tag.Identifier {
		case TagPrimaryVolumeDescriptor:
			if err := s.Primary.Unmarshal(sector); err != nil {
				return s, err
			}
		case TagImplementationUseVolumeDescriptor:
			if err := s.ImplementationUse.Unmarshal(sector); err != nil {
				return s, err
			}
		case TagPartitionDescriptor:
			if err := s.Partition.Unmarshal(sector); err != nil {
				return s, err
			}
		case TagLogicalVolumeDescriptor:
			if err := s.LogicalVolume.Unmarshal(sector); err != nil {
				return s, err
			}
		case TagUnallocatedSpaceDescriptor:
			if err := s.UnallocatedSpace.Unmarshal(sector); err != nil {
				return s, err
			}
		case TagTerminatingDescriptor:
			if err := s.Terminator.Unmarshal(sector); err != nil {
				return s, err
			}
			return s, nil
		default:
			// Volume Descriptor Pointer or an implementation-specific
			// descriptor this package doesn't need; skip and continue.
		}
	}
	return s, fmt.Errorf("udf: volume descriptor sequence at extent %d has no terminator within %d descriptors", extent, maxDescriptors)
}

// ParseDirectory reads a directory's FileEntry at entryExtent (relative
// to partitionStart) and walks its FID extent to build the Node's
// Children, recursing into subdirectories. The ".." self/parent FIDs
// (FileCharParent) are skipped since Node.Children only ever holds real
// entries — parent linkage is implicit in the tree the caller already
// holds.
func ParseDirectory(r io.ReaderAt, partitionStart uint32, entryExtent uint32, name string) (*Node, error) {
	entry, err := readFileEntry(r, partitionStart, entryExtent)
	if err != nil {
		return nil, fmt.Errorf("udf: directory %q file entry: %w", name, err)
	}

	node := &Node{Name: name, IsDir: true, Entry: entry, EntryLoc: entryExtent}

	for _, ad := range entry.AllocationDescriptors {
		base := partitionStart + ad.Position
		remaining := int(ad.ExtentLength)
		offset := int64(base) * BlockSize
		for remaining > 0 {
			buf := make([]byte, BlockSize)
			if _, err := r.ReadAt(buf, offset); err != nil {
				return nil, fmt.Errorf("udf: read FID extent for %q: %w", name, err)
			}

			pos := 0
			for pos < len(buf) && remaining > 0 {
				var fid FileIdentifierDescriptor
				n, err := fid.Unmarshal(buf[pos:])
				if err != nil {
					break
				}
				if n == 0 {
					break
				}
				pos += n
				remaining -= n

				if fid.FileCharacteristics&FileCharParent != 0 || fid.FileCharacteristics&FileCharDeleted != 0 {
					continue
				}

				childExtent := partitionStart + fid.ICB.Position
				if fid.FileCharacteristics&FileCharDirectory != 0 {
					child, err := ParseDirectory(r, partitionStart, childExtent, fid.FileIdentifier)
					if err != nil {
						return nil, err
					}
					node.Children = append(node.Children, child)
				} else {
					childEntry, err := readFileEntry(r, partitionStart, childExtent)
					if err != nil {
						return nil, fmt.Errorf("udf: file %q file entry: %w", fid.FileIdentifier, err)
					}
					child := &Node{Name: fid.FileIdentifier, Entry: childEntry, EntryLoc: childExtent}
					if len(childEntry.AllocationDescriptors) > 0 {
						child.DataLocation = partitionStart + childEntry.AllocationDescriptors[0].Position
						child.DataLength = childEntry.InformationLength
					}
					node.Children = append(node.Children, child)
				}
			}
			offset += BlockSize
		}
	}

	return node, nil
}

// readFileEntry reads the one-block File Entry at extent (relative to
// partitionStart). Per spec.md §4.7's last paragraph, a zero-byte File
// Entry is tolerated and treated as an empty, unreadable node rather than
// a parse error.
func readFileEntry(r io.ReaderAt, partitionStart uint32, extent uint32) (FileEntry, error) {
	buf := make([]byte, BlockSize)
	if _, err := r.ReadAt(buf, int64(extent)*BlockSize); err != nil {
		return FileEntry{}, err
	}

	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return FileEntry{}, nil
	}

	var fe FileEntry
	if err := fe.Unmarshal(buf); err != nil {
		return FileEntry{}, err
	}
	return fe, nil
}
