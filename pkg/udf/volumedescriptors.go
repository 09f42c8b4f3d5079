package udf

import (
	"fmt"

	"github.com/bgrewell/iso-forge/pkg/iso9660/encoding"
)

// BlockSize is the logical block size this package marshals every
// descriptor into — one block per descriptor, matching how the ISO9660
// side already treats consts.ISO9660_SECTOR_SIZE as both sector and
// logical block size so the two trees can share the same extent numbers.
const BlockSize = 2048

// tagDescriptorVersion is the ECMA-167 1/7.2.2 tag version this package
// writes for every descriptor; UDF 2.60 requires 3.
const tagDescriptorVersion uint16 = 3

// dstring encodes s as a UDF dstring of the given fixed field size: a
// length byte at the end of the field (ECMA-167 1/7.2.12), the
// compression-id-plus-characters in the middle, zero-padded.
func marshalDstring(s string, fieldSize int) ([]byte, error) {
	body := encoding.EncodeOSTACompressedUnicode(s)
	if len(body) > fieldSize-1 {
		return nil, fmt.Errorf("udf: dstring %q (%d bytes) exceeds field size %d", s, len(body), fieldSize)
	}
	out := make([]byte, fieldSize)
	copy(out, body)
	out[fieldSize-1] = byte(len(body))
	return out, nil
}

func unmarshalDstring(field []byte) string {
	if len(field) == 0 {
		return ""
	}
	n := int(field[len(field)-1])
	if n <= 0 || n > len(field)-1 {
		return ""
	}
	return encoding.DecodeOSTACompressedUnicode(field[:n])
}

// AnchorVolumeDescriptorPointer (ECMA-167 3/10.2) lives at fixed well-known
// extents (256 and the last recordable extent) and points at the main and
// reserve volume descriptor sequences.
type AnchorVolumeDescriptorPointer struct {
	Tag     Tag
	Main    ExtentAD
	Reserve ExtentAD
}

const anchorBodySize = ExtentADSize*2 + 480

func (a AnchorVolumeDescriptorPointer) Marshal(location uint32) [BlockSize]byte {
	var body [anchorBodySize]byte
	main := a.Main.Marshal()
	copy(body[0:8], main[:])
	reserve := a.Reserve.Marshal()
	copy(body[8:16], reserve[:])

	tag := NewTag(TagAnchorVolumeDescriptorPointer, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()

	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector
}

func (a *AnchorVolumeDescriptorPointer) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := a.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: anchor tag: %w", err)
	}
	if a.Tag.Identifier != TagAnchorVolumeDescriptorPointer {
		return fmt.Errorf("udf: expected anchor tag identifier %d, got %d", TagAnchorVolumeDescriptorPointer, a.Tag.Identifier)
	}
	var main, reserve [ExtentADSize]byte
	copy(main[:], sector[TagSize:TagSize+8])
	copy(reserve[:], sector[TagSize+8:TagSize+16])
	a.Main.Unmarshal(main)
	a.Reserve.Unmarshal(reserve)
	return nil
}

// PrimaryVolumeDescriptor is the UDF primary volume descriptor,
// ECMA-167 3/10.1 — distinct from the ISO9660 descriptor of the same
// name, it carries the volume's dstring identifiers and recording
// timestamp rather than ISO9660's a/d-character fields.
type PrimaryVolumeDescriptor struct {
	Tag                        Tag
	VolumeDescriptorSeqNum     uint32
	PrimaryVolumeDescriptorNum uint32
	VolumeIdentifier           string
	VolumeSequenceNumber       uint16
	MaximumVolumeSequenceNum   uint16
	InterchangeLevel           uint16
	MaximumInterchangeLevel    uint16
	CharacterSetList           uint32
	MaximumCharacterSetList    uint32
	VolumeSetIdentifier        string
	RecordingDateAndTime       [12]byte
	ApplicationIdentifier      EntityID
	ImplementationIdentifier   EntityID
}

func (p PrimaryVolumeDescriptor) Marshal(location uint32) ([BlockSize]byte, error) {
	var body [BlockSize - TagSize]byte
	off := 0

	putU32 := func(v uint32) {
		body[off] = byte(v)
		body[off+1] = byte(v >> 8)
		body[off+2] = byte(v >> 16)
		body[off+3] = byte(v >> 24)
		off += 4
	}
	putU16 := func(v uint16) {
		body[off] = byte(v)
		body[off+1] = byte(v >> 8)
		off += 2
	}

	putU32(p.VolumeDescriptorSeqNum)
	putU32(p.PrimaryVolumeDescriptorNum)

	volID, err := marshalDstring(p.VolumeIdentifier, 32)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+32], volID)
	off += 32

	putU16(p.VolumeSequenceNumber)
	putU16(p.MaximumVolumeSequenceNum)
	putU16(p.InterchangeLevel)
	putU16(p.MaximumInterchangeLevel)
	putU32(p.CharacterSetList)
	putU32(p.MaximumCharacterSetList)

	volSetID, err := marshalDstring(p.VolumeSetIdentifier, 128)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+128], volSetID)
	off += 128

	off += 64 // DescriptorCharacterSet, fixed to the CS0 charspec this package always uses
	off += 64 // ExplanatoryCharacterSet
	off += ExtentADSize // VolumeAbstract, unused
	off += ExtentADSize // VolumeCopyrightNotice, unused

	appID := p.ApplicationIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], appID[:])
	off += EntityIDSize

	copy(body[off:off+12], p.RecordingDateAndTime[:])
	off += 12

	implID := p.ImplementationIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], implID[:])
	off += EntityIDSize

	// remaining bytes: ImplementationUse(64), PredecessorVDSLocation(4),
	// Flags(2), Reserved(22) — all left zero.

	tag := NewTag(TagPrimaryVolumeDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector, nil
}

func (p *PrimaryVolumeDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := p.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: pvd tag: %w", err)
	}
	body := sector[TagSize:]
	off := 0

	getU32 := func() uint32 {
		v := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16 | uint32(body[off+3])<<24
		off += 4
		return v
	}
	getU16 := func() uint16 {
		v := uint16(body[off]) | uint16(body[off+1])<<8
		off += 2
		return v
	}

	p.VolumeDescriptorSeqNum = getU32()
	p.PrimaryVolumeDescriptorNum = getU32()
	p.VolumeIdentifier = unmarshalDstring(body[off : off+32])
	off += 32
	p.VolumeSequenceNumber = getU16()
	p.MaximumVolumeSequenceNum = getU16()
	p.InterchangeLevel = getU16()
	p.MaximumInterchangeLevel = getU16()
	p.CharacterSetList = getU32()
	p.MaximumCharacterSetList = getU32()
	p.VolumeSetIdentifier = unmarshalDstring(body[off : off+128])
	off += 128
	off += 64 + 64 + ExtentADSize + ExtentADSize

	var appID [EntityIDSize]byte
	copy(appID[:], body[off:off+EntityIDSize])
	p.ApplicationIdentifier.Unmarshal(appID)
	off += EntityIDSize

	copy(p.RecordingDateAndTime[:], body[off:off+12])
	off += 12

	var implID [EntityIDSize]byte
	copy(implID[:], body[off:off+EntityIDSize])
	p.ImplementationIdentifier.Unmarshal(implID)

	return nil
}

// PartitionDescriptor (ECMA-167 3/10.5) describes the single partition
// this package ever writes: a contiguous run of blocks holding the file
// set, directories and file data.
type PartitionDescriptor struct {
	Tag                      Tag
	VolumeDescriptorSeqNum   uint32
	PartitionFlags           uint16
	PartitionNumber          uint16
	PartitionContents        EntityID
	AccessType               uint32
	PartitionStartingLoc     uint32
	PartitionLength          uint32
	ImplementationIdentifier EntityID
}

// Access type values, ECMA-167 3/10.5.13.
const (
	AccessTypeOverwritable uint32 = 1
	AccessTypeRewritable   uint32 = 2
	AccessTypeWriteOnce    uint32 = 3
	AccessTypeReadOnly     uint32 = 4
)

func (p PartitionDescriptor) Marshal(location uint32) [BlockSize]byte {
	var body [BlockSize - TagSize]byte
	off := 0
	put16 := func(v uint16) { body[off] = byte(v); body[off+1] = byte(v >> 8); off += 2 }
	put32 := func(v uint32) {
		body[off] = byte(v)
		body[off+1] = byte(v >> 8)
		body[off+2] = byte(v >> 16)
		body[off+3] = byte(v >> 24)
		off += 4
	}

	put32(p.VolumeDescriptorSeqNum)
	put16(p.PartitionFlags)
	put16(p.PartitionNumber)

	contents := p.PartitionContents.Marshal()
	copy(body[off:off+EntityIDSize], contents[:])
	off += EntityIDSize
	off += 128 // PartitionContentsUse, unused by this package

	put32(p.AccessType)
	put32(p.PartitionStartingLoc)
	put32(p.PartitionLength)

	impl := p.ImplementationIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], impl[:])

	tag := NewTag(TagPartitionDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector
}

func (p *PartitionDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := p.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: partition descriptor tag: %w", err)
	}
	body := sector[TagSize:]
	off := 0
	get16 := func() uint16 { v := uint16(body[off]) | uint16(body[off+1])<<8; off += 2; return v }
	get32 := func() uint32 {
		v := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16 | uint32(body[off+3])<<24
		off += 4
		return v
	}

	p.VolumeDescriptorSeqNum = get32()
	p.PartitionFlags = get16()
	p.PartitionNumber = get16()

	var contents [EntityIDSize]byte
	copy(contents[:], body[off:off+EntityIDSize])
	p.PartitionContents.Unmarshal(contents)
	off += EntityIDSize
	off += 128

	p.AccessType = get32()
	p.PartitionStartingLoc = get32()
	p.PartitionLength = get32()

	var impl [EntityIDSize]byte
	copy(impl[:], body[off:off+EntityIDSize])
	p.ImplementationIdentifier.Unmarshal(impl)
	return nil
}

// partitionMapType1Size is the on-disk size of a type-1 partition map,
// ECMA-167 3/10.7.2 — the only kind this package emits.
const partitionMapType1Size = 6

// LogicalVolumeDescriptor (ECMA-167 3/10.6) ties the single partition map
// to a logical volume identifier and points at the File Set Descriptor via
// LogicalVolumeContentsUse.
type LogicalVolumeDescriptor struct {
	Tag                      Tag
	VolumeDescriptorSeqNum   uint32
	LogicalVolumeIdentifier  string
	LogicalBlockSize         uint32
	DomainIdentifier         EntityID
	FileSetDescriptorLoc     LongAD
	PartitionMapVolumeSeqNum uint16
	PartitionMapPartitionNum uint16
	ImplementationIdentifier EntityID
	IntegritySequenceExtent  ExtentAD
}

func (l LogicalVolumeDescriptor) Marshal(location uint32) ([BlockSize]byte, error) {
	var body [BlockSize - TagSize]byte
	off := 0
	put32 := func(v uint32) {
		body[off] = byte(v)
		body[off+1] = byte(v >> 8)
		body[off+2] = byte(v >> 16)
		body[off+3] = byte(v >> 24)
		off += 4
	}

	put32(l.VolumeDescriptorSeqNum)
	off += 64 // DescriptorCharacterSet

	volID, err := marshalDstring(l.LogicalVolumeIdentifier, 128)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+128], volID)
	off += 128

	put32(l.LogicalBlockSize)

	domain := l.DomainIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], domain[:])
	off += EntityIDSize

	fsdLoc := l.FileSetDescriptorLoc.Marshal()
	copy(body[off:off+LongADSize], fsdLoc[:])
	off += LongADSize

	put32(partitionMapType1Size) // MapTableLength
	put32(1)                     // NumberOfPartitionMaps

	impl := l.ImplementationIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], impl[:])
	off += EntityIDSize
	off += 128 // ImplementationUse

	integrity := l.IntegritySequenceExtent.Marshal()
	copy(body[off:off+ExtentADSize], integrity[:])
	off += ExtentADSize

	// Type-1 partition map.
	body[off] = 1                     // partition map type
	body[off+1] = partitionMapType1Size
	body[off+2] = byte(l.PartitionMapVolumeSeqNum)
	body[off+3] = byte(l.PartitionMapVolumeSeqNum >> 8)
	body[off+4] = byte(l.PartitionMapPartitionNum)
	body[off+5] = byte(l.PartitionMapPartitionNum >> 8)

	tag := NewTag(TagLogicalVolumeDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector, nil
}

func (l *LogicalVolumeDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := l.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: logical volume descriptor tag: %w", err)
	}
	body := sector[TagSize:]
	off := 0
	get32 := func() uint32 {
		v := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16 | uint32(body[off+3])<<24
		off += 4
		return v
	}

	l.VolumeDescriptorSeqNum = get32()
	off += 64
	l.LogicalVolumeIdentifier = unmarshalDstring(body[off : off+128])
	off += 128
	l.LogicalBlockSize = get32()

	var domain [EntityIDSize]byte
	copy(domain[:], body[off:off+EntityIDSize])
	l.DomainIdentifier.Unmarshal(domain)
	off += EntityIDSize

	var fsdLoc [LongADSize]byte
	copy(fsdLoc[:], body[off:off+LongADSize])
	l.FileSetDescriptorLoc.Unmarshal(fsdLoc)
	off += LongADSize

	off += 4 // MapTableLength
	off += 4 // NumberOfPartitionMaps

	var impl [EntityIDSize]byte
	copy(impl[:], body[off:off+EntityIDSize])
	l.ImplementationIdentifier.Unmarshal(impl)
	off += EntityIDSize
	off += 128

	var integrity [ExtentADSize]byte
	copy(integrity[:], body[off:off+ExtentADSize])
	l.IntegritySequenceExtent.Unmarshal(integrity)
	off += ExtentADSize

	if body[off] == 1 {
		l.PartitionMapVolumeSeqNum = uint16(body[off+2]) | uint16(body[off+3])<<8
		l.PartitionMapPartitionNum = uint16(body[off+4]) | uint16(body[off+5])<<8
	}
	return nil
}

// UnallocatedSpaceDescriptor (ECMA-167 3/10.8) lists the free-space
// extents outside the single partition. This package always writes a
// zero-length descriptor since the whole volume space is consumed by the
// partition it describes.
type UnallocatedSpaceDescriptor struct {
	Tag                    Tag
	VolumeDescriptorSeqNum uint32
	AllocationDescriptors  []ExtentAD
}

func (u UnallocatedSpaceDescriptor) Marshal(location uint32) [BlockSize]byte {
	var body [BlockSize - TagSize]byte
	body[0] = byte(u.VolumeDescriptorSeqNum)
	body[1] = byte(u.VolumeDescriptorSeqNum >> 8)
	body[2] = byte(u.VolumeDescriptorSeqNum >> 16)
	body[3] = byte(u.VolumeDescriptorSeqNum >> 24)

	n := uint32(len(u.AllocationDescriptors))
	body[4] = byte(n)
	body[5] = byte(n >> 8)
	body[6] = byte(n >> 16)
	body[7] = byte(n >> 24)

	off := 8
	for _, ad := range u.AllocationDescriptors {
		raw := ad.Marshal()
		copy(body[off:off+ExtentADSize], raw[:])
		off += ExtentADSize
	}

	tag := NewTag(TagUnallocatedSpaceDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector
}

func (u *UnallocatedSpaceDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := u.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: unallocated space descriptor tag: %w", err)
	}
	body := sector[TagSize:]
	u.VolumeDescriptorSeqNum = uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16 | uint32(body[3])<<24
	n := uint32(body[4]) | uint32(body[5])<<8 | uint32(body[6])<<16 | uint32(body[7])<<24
	u.AllocationDescriptors = make([]ExtentAD, 0, n)
	off := 8
	for i := uint32(0); i < n; i++ {
		var raw [ExtentADSize]byte
		copy(raw[:], body[off:off+ExtentADSize])
		var ad ExtentAD
		ad.Unmarshal(raw)
		u.AllocationDescriptors = append(u.AllocationDescriptors, ad)
		off += ExtentADSize
	}
	return nil
}

// TerminatingDescriptor (ECMA-167 3/10.9) marks the end of a volume
// descriptor sequence or an integrity sequence; the body is reserved.
type TerminatingDescriptor struct {
	Tag Tag
}

func (t TerminatingDescriptor) Marshal(location uint32) [BlockSize]byte {
	var body [BlockSize - TagSize]byte
	tag := NewTag(TagTerminatingDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	return sector
}

func (t *TerminatingDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := t.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: terminating descriptor tag: %w", err)
	}
	return nil
}

// ImplementationUseVolumeDescriptor (ECMA-167 3/10.4) carries the logical
// volume's informational identifiers (LVInfo1-3) in implementation use
// space; UDF mandates it but readers may ignore its contents.
type ImplementationUseVolumeDescriptor struct {
	Tag                      Tag
	VolumeDescriptorSeqNum   uint32
	ImplementationIdentifier EntityID
	LogicalVolumeIdentifier  string
}

func (i ImplementationUseVolumeDescriptor) Marshal(location uint32) ([BlockSize]byte, error) {
	var body [BlockSize - TagSize]byte
	body[0] = byte(i.VolumeDescriptorSeqNum)
	body[1] = byte(i.VolumeDescriptorSeqNum >> 8)
	body[2] = byte(i.VolumeDescriptorSeqNum >> 16)
	body[3] = byte(i.VolumeDescriptorSeqNum >> 24)

	implID := i.ImplementationIdentifier.Marshal()
	copy(body[4:4+EntityIDSize], implID[:])

	off := 4 + EntityIDSize
	off += 64 // LVICharset

	volID, err := marshalDstring(i.LogicalVolumeIdentifier, 128)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+128], volID)

	tag := NewTag(TagImplementationUseVolumeDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector, nil
}

func (i *ImplementationUseVolumeDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := i.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: implementation use volume descriptor tag: %w", err)
	}
	body := sector[TagSize:]
	i.VolumeDescriptorSeqNum = uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16 | uint32(body[3])<<24

	var implID [EntityIDSize]byte
	copy(implID[:], body[4:4+EntityIDSize])
	i.ImplementationIdentifier.Unmarshal(implID)

	off := 4 + EntityIDSize
	off += 64
	i.LogicalVolumeIdentifier = unmarshalDstring(body[off : off+128])
	return nil
}

// LogicalVolumeIntegrityDescriptor (LVID, ECMA-167 3/10.10) lives at a
// fixed extent (spec.md §4.7: extent 64) and tracks the counters that let
// readers detect an improperly dismounted volume.
type LogicalVolumeIntegrityDescriptor struct {
	Tag                      Tag
	RecordingDateAndTime     [12]byte
	IntegrityType            uint32 // 0 = open, 1 = close
	NextIntegrityExtent      ExtentAD
	UniqueID                 uint64
	FreeSpaceTable           uint32
	SizeTable                uint32
	ImplementationIdentifier EntityID
	NumFiles                 uint32
	NumDirs                  uint32
	MinUDFReadRevision       uint16
	MinUDFWriteRevision      uint16
	MaxUDFWriteRevision      uint16
}

const (
	IntegrityOpen  uint32 = 0
	IntegrityClose uint32 = 1
)

func (l LogicalVolumeIntegrityDescriptor) Marshal(location uint32) [BlockSize]byte {
	var body [BlockSize - TagSize]byte
	off := 0
	copy(body[off:off+12], l.RecordingDateAndTime[:])
	off += 12

	putU32 := func(v uint32) {
		body[off] = byte(v)
		body[off+1] = byte(v >> 8)
		body[off+2] = byte(v >> 16)
		body[off+3] = byte(v >> 24)
		off += 4
	}
	putU32(l.IntegrityType)

	nextExt := l.NextIntegrityExtent.Marshal()
	copy(body[off:off+ExtentADSize], nextExt[:])
	off += ExtentADSize

	// LogicalVolumeContentsUse: UniqueID (8 bytes) + 24 reserved.
	for i := 0; i < 8; i++ {
		body[off+i] = byte(l.UniqueID >> (8 * i))
	}
	off += 32

	putU32(1) // NumberOfPartitions
	putU32(48) // LengthOfImplementationUse: EntityID(32)+NumFiles(4)+NumDirs(4)+3*uint16(6)=46, rounded to 48

	putU32(l.FreeSpaceTable)
	putU32(l.SizeTable)

	implID := l.ImplementationIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], implID[:])
	off += EntityIDSize

	putU32(l.NumFiles)
	putU32(l.NumDirs)

	putU16 := func(v uint16) { body[off] = byte(v); body[off+1] = byte(v >> 8); off += 2 }
	putU16(l.MinUDFReadRevision)
	putU16(l.MinUDFWriteRevision)
	putU16(l.MaxUDFWriteRevision)

	tag := NewTag(TagLogicalVolumeIntegrityDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector
}

func (l *LogicalVolumeIntegrityDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := l.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: lvid tag: %w", err)
	}
	body := sector[TagSize:]
	off := 0
	copy(l.RecordingDateAndTime[:], body[off:off+12])
	off += 12

	getU32 := func() uint32 {
		v := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16 | uint32(body[off+3])<<24
		off += 4
		return v
	}
	l.IntegrityType = getU32()

	var nextExt [ExtentADSize]byte
	copy(nextExt[:], body[off:off+ExtentADSize])
	l.NextIntegrityExtent.Unmarshal(nextExt)
	off += ExtentADSize

	var uid uint64
	for i := 0; i < 8; i++ {
		uid |= uint64(body[off+i]) << (8 * i)
	}
	l.UniqueID = uid
	off += 32

	off += 4 // NumberOfPartitions
	off += 4 // LengthOfImplementationUse

	l.FreeSpaceTable = getU32()
	l.SizeTable = getU32()

	var implID [EntityIDSize]byte
	copy(implID[:], body[off:off+EntityIDSize])
	l.ImplementationIdentifier.Unmarshal(implID)
	off += EntityIDSize

	l.NumFiles = getU32()
	l.NumDirs = getU32()

	getU16 := func() uint16 { v := uint16(body[off]) | uint16(body[off+1])<<8; off += 2; return v }
	l.MinUDFReadRevision = getU16()
	l.MinUDFWriteRevision = getU16()
	l.MaxUDFWriteRevision = getU16()

	return nil
}
