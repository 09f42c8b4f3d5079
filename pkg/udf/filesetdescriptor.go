package udf

import "fmt"

// FileSetDescriptor (ECMA-167 4/14.1) sits at the start of the partition
// and anchors the file set: it names the volume set, points at the root
// directory's File Entry via RootDirectoryICB, and records the
// identifiers applications use to distinguish one file set from another
// on a multi-partition medium — unused here since this package only ever
// writes a single partition, single file set image.
type FileSetDescriptor struct {
	Tag                        Tag
	RecordingDateAndTime       [12]byte
	InterchangeLevel           uint16
	MaximumInterchangeLevel    uint16
	CharacterSetList           uint32
	MaximumCharacterSetList    uint32
	FileSetNumber              uint32
	FileSetDescriptorNumber    uint32
	LogicalVolumeIdentifier    string
	FileSetIdentifier          string
	CopyrightFileIdentifier    string
	AbstractFileIdentifier     string
	RootDirectoryICB           LongAD
	DomainIdentifier           EntityID
	NextExtent                 LongAD
}

func (f FileSetDescriptor) Marshal(location uint32) ([BlockSize]byte, error) {
	var body [BlockSize - TagSize]byte
	off := 0

	copy(body[off:off+12], f.RecordingDateAndTime[:])
	off += 12

	putU16 := func(v uint16) { body[off] = byte(v); body[off+1] = byte(v >> 8); off += 2 }
	putU32 := func(v uint32) {
		body[off] = byte(v)
		body[off+1] = byte(v >> 8)
		body[off+2] = byte(v >> 16)
		body[off+3] = byte(v >> 24)
		off += 4
	}

	putU16(f.InterchangeLevel)
	putU16(f.MaximumInterchangeLevel)
	putU32(f.CharacterSetList)
	putU32(f.MaximumCharacterSetList)
	putU32(f.FileSetNumber)
	putU32(f.FileSetDescriptorNumber)

	off += 64 // LogicalVolumeIdentifierCharacterSet
	logVolID, err := marshalDstring(f.LogicalVolumeIdentifier, 128)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+128], logVolID)
	off += 128

	off += 64 // FileSetCharacterSet
	fileSetID, err := marshalDstring(f.FileSetIdentifier, 32)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+32], fileSetID)
	off += 32

	copyrightID, err := marshalDstring(f.CopyrightFileIdentifier, 32)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+32], copyrightID)
	off += 32

	abstractID, err := marshalDstring(f.AbstractFileIdentifier, 32)
	if err != nil {
		return [BlockSize]byte{}, err
	}
	copy(body[off:off+32], abstractID)
	off += 32

	rootICB := f.RootDirectoryICB.Marshal()
	copy(body[off:off+LongADSize], rootICB[:])
	off += LongADSize

	domain := f.DomainIdentifier.Marshal()
	copy(body[off:off+EntityIDSize], domain[:])
	off += EntityIDSize

	nextExtent := f.NextExtent.Marshal()
	copy(body[off:off+LongADSize], nextExtent[:])
	off += LongADSize

	// remaining: SystemStreamDirectoryICB(16) + Reserved(32), left zero.

	tag := NewTag(TagFileSetDescriptor, tagDescriptorVersion, location, body[:])
	tagBytes := tag.Marshal()
	var sector [BlockSize]byte
	copy(sector[0:TagSize], tagBytes[:])
	copy(sector[TagSize:], body[:])
	return sector, nil
}

func (f *FileSetDescriptor) Unmarshal(sector [BlockSize]byte) error {
	var tagBytes [TagSize]byte
	copy(tagBytes[:], sector[0:TagSize])
	if err := f.Tag.Unmarshal(tagBytes); err != nil {
		return fmt.Errorf("udf: file set descriptor tag: %w", err)
	}
	body := sector[TagSize:]
	off := 0

	copy(f.RecordingDateAndTime[:], body[off:off+12])
	off += 12

	getU16 := func() uint16 { v := uint16(body[off]) | uint16(body[off+1])<<8; off += 2; return v }
	getU32 := func() uint32 {
		v := uint32(body[off]) | uint32(body[off+1])<<8 | uint32(body[off+2])<<16 | uint32(body[off+3])<<24
		off += 4
		return v
	}

	f.InterchangeLevel = getU16()
	f.MaximumInterchangeLevel = getU16()
	f.CharacterSetList = getU32()
	f.MaximumCharacterSetList = getU32()
	f.FileSetNumber = getU32()
	f.FileSetDescriptorNumber = getU32()

	off += 64
	f.LogicalVolumeIdentifier = unmarshalDstring(body[off : off+128])
	off += 128

	off += 64
	f.FileSetIdentifier = unmarshalDstring(body[off : off+32])
	off += 32

	f.CopyrightFileIdentifier = unmarshalDstring(body[off : off+32])
	off += 32

	f.AbstractFileIdentifier = unmarshalDstring(body[off : off+32])
	off += 32

	var rootICB [LongADSize]byte
	copy(rootICB[:], body[off:off+LongADSize])
	f.RootDirectoryICB.Unmarshal(rootICB)
	off += LongADSize

	var domain [EntityIDSize]byte
	copy(domain[:], body[off:off+EntityIDSize])
	f.DomainIdentifier.Unmarshal(domain)
	off += EntityIDSize

	var nextExtent [LongADSize]byte
	copy(nextExtent[:], body[off:off+LongADSize])
	f.NextExtent.Unmarshal(nextExtent)

	return nil
}
