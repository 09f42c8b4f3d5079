package isohybrid

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"
)

const (
	gptHeaderSize        = 92
	gptPartitionEntries  = 128
	gptPartitionEntrySize = 128
	gptSignature         = "EFI PART"
	gptRevision          = 0x00010000
)

// GPTPartition is one entry in the primary GPT partition array. Name is
// stored as UTF-16LE on disk, one code unit per rune.
type GPTPartition struct {
	TypeGUID   uuid.UUID
	PartGUID   uuid.UUID
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       string
}

// Well-known partition type GUIDs this package writes.
var (
	// GUIDISOHybridISO marks the partition covering the whole image,
	// mirroring MBR partition 0's role (spec.md §4.6 "ISOHybrid ISO").
	GUIDISOHybridISO = uuid.MustParse("2B337617-2BFF-4DAC-95D8-1D8A6492E996")
	// GUIDISOHybridEFI marks a partition shadowing one embedded EFI boot
	// image extent ("ISOHybrid" per spec.md §4.6).
	GUIDISOHybridEFI = uuid.MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	// GUIDMacHFSBoot marks the optional Mac-boot partition added when
	// Mac support is requested alongside EFI.
	GUIDMacHFSBoot = uuid.MustParse("48465300-0000-11AA-AA11-00306543ECAC")
)

// GPT is the primary GUID Partition Table header plus its partition array.
// This package never writes the backup header/array pair a fully spec-
// conformant GPT would have at the end of the disk - isohybrid images are
// read by firmware that only consults the primary copy, and a backup
// would require knowing the final image size before the layout planner
// has finished, which isohybrid construction happens after.
type GPT struct {
	DiskGUID   uuid.UUID
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	Partitions []GPTPartition
}

// Marshal encodes the GPT header at LBA 1 and the partition array
// starting at LBA 2, returning one []byte per 512-byte LBA sector in
// on-disk order (header first, then each partition-array sector).
func (g GPT) Marshal() ([][]byte, error) {
	if len(g.Partitions) > gptPartitionEntries {
		return nil, fmt.Errorf("isohybrid: %d GPT partitions exceeds the %d-entry array", len(g.Partitions), gptPartitionEntries)
	}

	arrayBytes := make([]byte, gptPartitionEntries*gptPartitionEntrySize)
	for i, p := range g.Partitions {
		entry := arrayBytes[i*gptPartitionEntrySize : (i+1)*gptPartitionEntrySize]
		putGUID(entry[0:16], p.TypeGUID)
		putGUID(entry[16:32], p.PartGUID)
		binary.LittleEndian.PutUint64(entry[32:40], p.FirstLBA)
		binary.LittleEndian.PutUint64(entry[40:48], p.LastLBA)
		binary.LittleEndian.PutUint64(entry[48:56], p.Attributes)
		putUTF16LEName(entry[56:128], p.Name)
	}
	arrayCRC := crc32.ChecksumIEEE(arrayBytes)

	header := make([]byte, 512)
	copy(header[0:8], gptSignature)
	binary.LittleEndian.PutUint32(header[8:12], gptRevision)
	binary.LittleEndian.PutUint32(header[12:16], gptHeaderSize)
	// header[16:20] CRC32, filled in below after the rest of the header
	binary.LittleEndian.PutUint64(header[24:32], 1) // this header's own LBA
	// header[32:40] backup header LBA intentionally left 0 - see GPT doc comment
	binary.LittleEndian.PutUint64(header[40:48], g.FirstUsableLBA)
	binary.LittleEndian.PutUint64(header[48:56], g.LastUsableLBA)
	putGUID(header[56:72], g.DiskGUID)
	binary.LittleEndian.PutUint64(header[72:80], 2) // partition array starts at LBA 2
	binary.LittleEndian.PutUint32(header[80:84], gptPartitionEntries)
	binary.LittleEndian.PutUint32(header[84:88], gptPartitionEntrySize)
	binary.LittleEndian.PutUint32(header[88:92], arrayCRC)

	headerCRC := crc32.ChecksumIEEE(header[0:gptHeaderSize])
	binary.LittleEndian.PutUint32(header[16:20], headerCRC)

	out := [][]byte{header}
	for i := 0; i < gptPartitionEntries*gptPartitionEntrySize; i += 512 {
		end := i + 512
		if end > len(arrayBytes) {
			end = len(arrayBytes)
		}
		sector := make([]byte, 512)
		copy(sector, arrayBytes[i:end])
		out = append(out, sector)
	}

	return out, nil
}

func putGUID(dst []byte, id uuid.UUID) {
	// EFI mixed-endian GUID encoding: first three fields little-endian,
	// last two (clock_seq + node) big-endian, per the UEFI spec's GUID
	// representation - distinct from uuid.UUID's RFC 4122 byte order.
	b := id[:]
	dst[0], dst[1], dst[2], dst[3] = b[3], b[2], b[1], b[0]
	dst[4], dst[5] = b[5], b[4]
	dst[6], dst[7] = b[7], b[6]
	copy(dst[8:16], b[8:16])
}

func putUTF16LEName(dst []byte, name string) {
	i := 0
	for _, r := range name {
		if i+2 > len(dst) {
			break
		}
		binary.LittleEndian.PutUint16(dst[i:i+2], uint16(r))
		i += 2
	}
}
