// Package isohybrid builds the MBR (and, for EFI boot, the primary GPT)
// that syslinux-style "isohybrid" patching prepends to an ISO 9660 image's
// system area so the same file boots from optical media and from a
// USB/BIOS block device. Nothing here is read back out of an existing
// image - isohybrid is write-only scaffolding applied on top of an
// already-laid-out ISO 9660/El Torito image.
package isohybrid

import (
	"encoding/binary"
	"fmt"

	"github.com/bgrewell/iso-forge/pkg/consts"
)

const (
	mbrSize            = 512
	mbrPartitionOffset = 446
	mbrPartitionSize   = 16
	mbrSignatureOffset = 510

	// PartitionTypeISOHybrid is the type byte isolinux's isohybrid writes
	// into MBR partition 0 for a BIOS-only hybrid image (spec.md §4.6).
	PartitionTypeISOHybrid = 0x17
	// PartitionTypeProtective marks partition 0 empty/unused when the
	// image instead boots through the primary GPT (EFI mode).
	PartitionTypeProtective = 0x00
	// PartitionTypeEFISystem marks the MBR partition that shadows the
	// GPT's EFI boot-image partition, for firmware that only reads MBRs.
	PartitionTypeEFISystem = 0xef
)

// Partition is one of the four 16-byte MBR partition table entries.
type Partition struct {
	Bootable bool
	Type     byte
	// StartLBA/SizeLBA are both in 512-byte sectors, matching the MBR's
	// native unit regardless of the 2048-byte ISO 9660 sector size.
	StartLBA uint32
	SizeLBA  uint32
}

// MBR is the 512-byte Master Boot Record written at the start of the
// image's system area.
type MBR struct {
	// DiskSignature is the 4-byte value at offset 0x1B8, used by some
	// BIOSes/bootloaders to disambiguate disks. Build leaves it zero.
	DiskSignature uint32
	Partitions    [4]Partition
}

// Marshal encodes the MBR into the first 512 bytes of the system area.
// Bytes before offset 0x1B8 (boot code) are left zero - this package never
// embeds executable boot code, only the partition table isohybrid needs.
func (m MBR) Marshal() [mbrSize]byte {
	var buf [mbrSize]byte

	binary.LittleEndian.PutUint32(buf[0x1B8:0x1BC], m.DiskSignature)

	for i, p := range m.Partitions {
		entry := buf[mbrPartitionOffset+i*mbrPartitionSize : mbrPartitionOffset+(i+1)*mbrPartitionSize]
		if p.Bootable {
			entry[0] = 0x80
		}
		// CHS fields are unused by any modern BIOS/firmware that reads
		// this table; isohybrid itself writes the LBA-max sentinel so
		// tooling that still decodes CHS doesn't read garbage.
		entry[1], entry[2], entry[3] = 0xfe, 0xff, 0xff
		entry[4] = p.Type
		entry[5], entry[6], entry[7] = 0xfe, 0xff, 0xff
		binary.LittleEndian.PutUint32(entry[8:12], p.StartLBA)
		binary.LittleEndian.PutUint32(entry[12:16], p.SizeLBA)
	}

	binary.LittleEndian.PutUint16(buf[mbrSignatureOffset:mbrSize], consts.ISOHYBRID_MBR_SIGNATURE)

	return buf
}

// Unmarshal decodes an MBR from a 512-byte sector, validating the boot
// signature.
func (m *MBR) Unmarshal(sector [mbrSize]byte) error {
	sig := binary.LittleEndian.Uint16(sector[mbrSignatureOffset:mbrSize])
	if sig != consts.ISOHYBRID_MBR_SIGNATURE {
		return fmt.Errorf("isohybrid: invalid MBR signature 0x%04x", sig)
	}

	m.DiskSignature = binary.LittleEndian.Uint32(sector[0x1B8:0x1BC])

	for i := range m.Partitions {
		entry := sector[mbrPartitionOffset+i*mbrPartitionSize : mbrPartitionOffset+(i+1)*mbrPartitionSize]
		m.Partitions[i] = Partition{
			Bootable: entry[0] == 0x80,
			Type:     entry[4],
			StartLBA: binary.LittleEndian.Uint32(entry[8:12]),
			SizeLBA:  binary.LittleEndian.Uint32(entry[12:16]),
		}
	}

	return nil
}
