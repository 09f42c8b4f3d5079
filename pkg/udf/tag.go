package udf

import (
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/iso-forge/pkg/helpers"
)

// Descriptor tag identifiers, ECMA-167 1/7.2.1.
const (
	TagPrimaryVolumeDescriptor            uint16 = 1
	TagAnchorVolumeDescriptorPointer      uint16 = 2
	TagVolumeDescriptorPointer            uint16 = 3
	TagImplementationUseVolumeDescriptor  uint16 = 4
	TagPartitionDescriptor                uint16 = 5
	TagLogicalVolumeDescriptor            uint16 = 6
	TagUnallocatedSpaceDescriptor         uint16 = 7
	TagTerminatingDescriptor              uint16 = 8
	TagLogicalVolumeIntegrityDescriptor   uint16 = 9
	TagFileSetDescriptor                  uint16 = 256
	TagFileIdentifierDescriptor           uint16 = 257
	TagAllocationExtentDescriptor         uint16 = 258
	TagIndirectEntry                      uint16 = 259
	TagTerminalEntry                      uint16 = 260
	TagFileEntry                          uint16 = 261
	TagExtendedAttributeHeaderDescriptor  uint16 = 262
)

// TagSize is the fixed on-disk size of a descriptor tag, ECMA-167 1/7.2.
const TagSize = 16

// Tag is the 16-byte descriptor tag prefixed to every UDF descriptor,
// ECMA-167 1/7.2: identifier/version, two checksums over the tag itself and
// over the descriptor body that follows, a serial number and the extent
// (tag_location) the descriptor was recorded at.
type Tag struct {
	Identifier          uint16
	DescriptorVersion   uint16
	TagChecksum         byte
	SerialNumber        uint16
	DescriptorCRC       uint16
	DescriptorCRCLength uint16
	TagLocation         uint32
}

// Marshal writes the 16-byte tag, computing TagChecksum from the other
// fields. descriptorCRC and descriptorCRCLength must already reflect the
// body that follows; the caller computes them with helpers.CRCITUT once
// the body bytes are known.
func (t Tag) Marshal() [TagSize]byte {
	var raw [TagSize]byte
	binary.LittleEndian.PutUint16(raw[0:2], t.Identifier)
	binary.LittleEndian.PutUint16(raw[2:4], t.DescriptorVersion)
	// raw[4] (TagChecksum) filled in below, after the rest is written.
	raw[5] = 0 // reserved
	binary.LittleEndian.PutUint16(raw[6:8], t.SerialNumber)
	binary.LittleEndian.PutUint16(raw[8:10], t.DescriptorCRC)
	binary.LittleEndian.PutUint16(raw[10:12], t.DescriptorCRCLength)
	binary.LittleEndian.PutUint32(raw[12:16], t.TagLocation)
	raw[4] = helpers.TagChecksum(raw)
	return raw
}

// Unmarshal parses a 16-byte tag and verifies its checksum.
func (t *Tag) Unmarshal(raw [TagSize]byte) error {
	want := raw[4]
	got := helpers.TagChecksum(raw)
	if got != want {
		return fmt.Errorf("udf: tag checksum mismatch: stored %#x computed %#x", want, got)
	}
	t.Identifier = binary.LittleEndian.Uint16(raw[0:2])
	t.DescriptorVersion = binary.LittleEndian.Uint16(raw[2:4])
	t.TagChecksum = raw[4]
	t.SerialNumber = binary.LittleEndian.Uint16(raw[6:8])
	t.DescriptorCRC = binary.LittleEndian.Uint16(raw[8:10])
	t.DescriptorCRCLength = binary.LittleEndian.Uint16(raw[10:12])
	t.TagLocation = binary.LittleEndian.Uint32(raw[12:16])
	return nil
}

// VerifyCRC checks DescriptorCRC against the actual body bytes that
// followed this tag on disk. A tag_location mismatch is tolerated (§9 open
// question 3: Unmarshal never compares TagLocation with the extent the tag
// was read from) but a CRC mismatch is not, since it always indicates
// corruption rather than a relocated descriptor.
func (t Tag) VerifyCRC(body []byte) error {
	if int(t.DescriptorCRCLength) != len(body) {
		return fmt.Errorf("udf: descriptor CRC length mismatch: tag says %d, body is %d bytes", t.DescriptorCRCLength, len(body))
	}
	if got := helpers.CRCITUT(body); got != t.DescriptorCRC {
		return fmt.Errorf("udf: descriptor CRC mismatch: stored %#x computed %#x", t.DescriptorCRC, got)
	}
	return nil
}

// NewTag builds a tag for a descriptor body about to be written at
// extent location, computing the CRC over body.
func NewTag(identifier uint16, version uint16, location uint32, body []byte) Tag {
	return Tag{
		Identifier:          identifier,
		DescriptorVersion:   version,
		SerialNumber:        1,
		DescriptorCRC:       helpers.CRCITUT(body),
		DescriptorCRCLength: uint16(len(body)),
		TagLocation:         location,
	}
}
