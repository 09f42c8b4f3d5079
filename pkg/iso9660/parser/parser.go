package parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/filesystem"
	"github.com/bgrewell/iso-forge/pkg/iso9660/boot"
	"github.com/bgrewell/iso-forge/pkg/iso9660/descriptor"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/extensions"
	"github.com/bgrewell/iso-forge/pkg/iso9660/pathtable"
	"github.com/bgrewell/iso-forge/pkg/option"
	"io"
)

// NewParser creates a Parser bound to a readable image and the open options
// that govern how leniently it parses (Rock Ridge/El Torito enablement,
// strict boot validation, logging).
func NewParser(r io.ReaderAt, openOptions *option.OpenOptions) *Parser {
	return &Parser{r: r, openOptions: openOptions}
}

type Parser struct {
	r           io.ReaderAt
	openOptions *option.OpenOptions
}

// GetBootRecord reads and validates the ISO9660 boot record. It returns
// nil and no error when the volume descriptor set has none.
func (p *Parser) GetBootRecord() (*descriptor.BootRecordDescriptor, error) {
	const sectorSize = consts.ISO9660_SECTOR_SIZE
	// The Volume Descriptor Set starts at logical sector 16.
	sector := int64(consts.ISO9660_SYSTEM_AREA_SECTORS)
	var buf [2048]byte

	for {
		offset := sector * int64(sectorSize)
		n, err := p.r.ReadAt(buf[:], offset)
		if err != nil {
			return nil, err
		}
		if n != len(buf) {
			return nil, errors.New("failed to read full sector")
		}

		// Unmarshal the Volume Descriptor Header (first 7 bytes)
		header := descriptor.VolumeDescriptorHeader{}
		if err = header.Unmarshal([7]byte(buf[:7])); err != nil {
			return nil, err
		}

		// A Volume Descriptor Set Terminator has type 255; reaching it
		// means the image carries no boot record.
		if header.VolumeDescriptorType == descriptor.TYPE_TERMINATOR_DESCRIPTOR {
			return nil, nil
		}

		// Validate the ISO9660 signature.
		if string(buf[1:6]) != "CD001" {
			return nil, errors.New("invalid ISO9660 signature")
		}

		// If this is a Boot Record (type 0), unmarshal and return it.
		if header.VolumeDescriptorType == descriptor.TYPE_BOOT_RECORD {
			bootRecord := &descriptor.BootRecordDescriptor{
				VolumeDescriptorHeader: header,
			}
			if err = bootRecord.Unmarshal(buf); err != nil {
				return nil, err
			}
			return bootRecord, nil
		}

		// Otherwise, move to the next sector.
		sector++
	}
}

// GetPrimaryVolumeDescriptor reads and validates the ISO9660 PVD.
func (p *Parser) GetPrimaryVolumeDescriptor() (*descriptor.PrimaryVolumeDescriptor, error) {
	var buf [2048]byte
	_, err := p.r.ReadAt(buf[:], consts.ISO9660_SYSTEM_AREA_SECTORS*consts.ISO9660_SECTOR_SIZE)
	if err != nil {
		return nil, err
	}

	// Unmarshal the VolumeDescriptorHeader
	header := descriptor.VolumeDescriptorHeader{}
	if err = header.Unmarshal([7]byte(buf[:7])); err != nil {
		return nil, err
	}

	// Validate ISO9660 signature
	if string(buf[1:6]) != "CD001" {
		return nil, errors.New("invalid ISO9660 signature")
	}

	// Create a new PrimaryVolumeDescriptor
	pvd := &descriptor.PrimaryVolumeDescriptor{
		VolumeDescriptorHeader: header,
	}

	// Unmarshal the rest of the buffer
	if err = pvd.Unmarshal([2048]byte(buf[:])); err != nil {
		return nil, err
	}

	return pvd, nil
}

// GetSupplementaryVolumeDescriptors reads and validates every ISO9660 SVD.
// An image without any yields an empty result and no error.
func (p *Parser) GetSupplementaryVolumeDescriptors() ([]*descriptor.SupplementaryVolumeDescriptor, error) {
	const sectorSize = consts.ISO9660_SECTOR_SIZE
	// The Volume Descriptor Set starts at logical sector 16.
	sector := int64(consts.ISO9660_SYSTEM_AREA_SECTORS)
	var buf [2048]byte

	// Create a slice to hold the SupplementaryVolumeDescriptors
	var svds []*descriptor.SupplementaryVolumeDescriptor

	for {
		offset := sector * int64(sectorSize)
		n, err := p.r.ReadAt(buf[:], offset)
		if err != nil {
			return nil, err
		}
		if n != len(buf) {
			return nil, errors.New("failed to read full sector")
		}

		// Unmarshal the Volume Descriptor Header (first 7 bytes)
		header := descriptor.VolumeDescriptorHeader{}
		if err = header.Unmarshal([7]byte(buf[:7])); err != nil {
			return nil, err
		}

		// A Volume Descriptor Set Terminator has type 255.
		if header.VolumeDescriptorType == descriptor.TYPE_TERMINATOR_DESCRIPTOR {
			return svds, nil
		}

		// Validate the ISO9660 signature.
		if string(buf[1:6]) != "CD001" {
			return nil, errors.New("invalid ISO9660 signature")
		}

		// If this is a Supplementary Volume Descriptor, unmarshal it and add to the collection.
		if header.VolumeDescriptorType == descriptor.TYPE_SUPPLEMENTARY_DESCRIPTOR {
			svd := &descriptor.SupplementaryVolumeDescriptor{
				VolumeDescriptorHeader: header,
			}

			if err = svd.Unmarshal(buf); err != nil {
				return nil, err
			}

			svds = append(svds, svd)
		}

		// Otherwise, move to the next sector.
		sector++
	}
}

// GetVolumePartitionDescriptors reads every Volume Partition Descriptor
// (type 3) in the volume descriptor set. Like the boot record and the
// supplementary descriptors, partition descriptors are optional and a set
// without any is normal, so an empty result is not an error.
func (p *Parser) GetVolumePartitionDescriptors() ([]*descriptor.VolumePartitionDescriptor, error) {
	const sectorSize = consts.ISO9660_SECTOR_SIZE
	sector := int64(consts.ISO9660_SYSTEM_AREA_SECTORS)
	var buf [consts.ISO9660_SECTOR_SIZE]byte

	var vpds []*descriptor.VolumePartitionDescriptor

	for {
		offset := sector * int64(sectorSize)
		if _, err := p.r.ReadAt(buf[:], offset); err != nil {
			return nil, err
		}

		header := descriptor.VolumeDescriptorHeader{}
		if err := header.Unmarshal([consts.ISO9660_VOLUME_DESC_HEADER_SIZE]byte(buf[:consts.ISO9660_VOLUME_DESC_HEADER_SIZE])); err != nil {
			return nil, err
		}

		if header.VolumeDescriptorType == descriptor.TYPE_TERMINATOR_DESCRIPTOR {
			return vpds, nil
		}

		if string(buf[1:6]) != "CD001" {
			return nil, errors.New("invalid ISO9660 signature")
		}

		if header.VolumeDescriptorType == descriptor.TYPE_PARTITION_DESCRIPTOR {
			vpd := &descriptor.VolumePartitionDescriptor{VolumeDescriptorHeader: header}
			if err := vpd.Unmarshal(buf); err != nil {
				return nil, err
			}
			vpds = append(vpds, vpd)
		}

		sector++
	}
}

// GetVolumeDescriptorSetTerminator scans the volume descriptor set for its
// closing terminator (type 255) and unmarshals it.
func (p *Parser) GetVolumeDescriptorSetTerminator() (*descriptor.VolumeDescriptorSetTerminator, error) {
	const sectorSize = consts.ISO9660_SECTOR_SIZE
	sector := int64(consts.ISO9660_SYSTEM_AREA_SECTORS)
	var buf [consts.ISO9660_SECTOR_SIZE]byte

	for {
		offset := sector * int64(sectorSize)
		if _, err := p.r.ReadAt(buf[:], offset); err != nil {
			return nil, err
		}

		header := descriptor.VolumeDescriptorHeader{}
		if err := header.Unmarshal([consts.ISO9660_VOLUME_DESC_HEADER_SIZE]byte(buf[:consts.ISO9660_VOLUME_DESC_HEADER_SIZE])); err != nil {
			return nil, err
		}

		if string(buf[1:6]) != "CD001" {
			return nil, errors.New("invalid ISO9660 signature")
		}

		if header.VolumeDescriptorType == descriptor.TYPE_TERMINATOR_DESCRIPTOR {
			term := &descriptor.VolumeDescriptorSetTerminator{VolumeDescriptorHeader: header, LBA: uint32(sector)}
			if err := term.Unmarshal(buf); err != nil {
				return nil, err
			}
			return term, nil
		}

		sector++
	}
}

// GetElTorito locates the boot catalog pointed to by a boot record's system
// use area (the first 4 bytes hold the catalog's absolute LBA, little-endian,
// per the El Torito specification) and unmarshals it.
func (p *Parser) GetElTorito(bootRecord *descriptor.BootRecordDescriptor) (*boot.ElTorito, error) {
	if bootRecord == nil {
		return nil, errors.New("eltorito: nil boot record")
	}

	catalogLBA := binary.LittleEndian.Uint32(bootRecord.BootSystemUse[:4])
	if catalogLBA == 0 {
		return nil, errors.New("eltorito: boot record carries no boot catalog pointer")
	}

	var buf [consts.ISO9660_SECTOR_SIZE]byte
	if _, err := p.r.ReadAt(buf[:], int64(catalogLBA)*consts.ISO9660_SECTOR_SIZE); err != nil {
		return nil, fmt.Errorf("failed to read el torito boot catalog at LBA %d: %w", catalogLBA, err)
	}

	et := &boot.ElTorito{
		ObjectLocation: int64(catalogLBA) * consts.ISO9660_SECTOR_SIZE,
		ObjectSize:     consts.ISO9660_SECTOR_SIZE,
	}
	if p.openOptions != nil {
		et.Logger = p.openOptions.Logger
		et.StrictValidation = p.openOptions.StrictBootValidation
	}
	if err := et.UnmarshalBinary(buf[:]); err != nil {
		return nil, err
	}

	return et, nil
}

// GetPathTables reads the Type L (little-endian) and Type M (big-endian)
// path tables a primary or supplementary volume descriptor points at. Both
// descriptor types carry the same path table location/size fields but
// expose them through distinct concrete structs rather than a shared
// accessor, so they're handled here by type switch rather than by widening
// the descriptor.VolumeDescriptor interface for a single caller's benefit.
func (p *Parser) GetPathTables(vd descriptor.VolumeDescriptor) ([]*pathtable.PathTable, error) {
	var (
		size       uint32
		locationL  uint32
		locationM  uint32
		sourceName string
	)

	switch d := vd.(type) {
	case *descriptor.PrimaryVolumeDescriptor:
		size = d.PathTableSize
		locationL = d.LocationOfTypeLPathTable
		locationM = d.LocationOfTypeMPathTable
		sourceName = "Primary"
	case *descriptor.SupplementaryVolumeDescriptor:
		size = d.PathTableSize
		locationL = d.LocationOfTypeLPathTable
		locationM = d.LocationOfTypeMPathTable
		sourceName = "Supplementary"
	default:
		return nil, fmt.Errorf("pathtable: unsupported volume descriptor type %T", vd)
	}

	if size == 0 {
		return nil, fmt.Errorf("%s volume descriptor has no path table", sourceName)
	}

	ptL, err := pathtable.NewPathTable(p.r, locationL, int(size), sourceName, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s Type L path table: %w", sourceName, err)
	}

	ptM, err := pathtable.NewPathTable(p.r, locationM, int(size), sourceName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s Type M path table: %w", sourceName, err)
	}

	return []*pathtable.PathTable{ptL, ptM}, nil
}

// BuildFileSystemEntries walks the directory tree and converts entries into FileSystemEntry objects.
func (p *Parser) BuildFileSystemEntries(rootDir *directory.DirectoryRecord, RockRidgeEnabled bool) ([]*filesystem.FileSystemEntry, error) {
	if rootDir == nil {
		return nil, errors.New("rootDir cannot be nil")
	}

	visited := make(map[uint32]bool) // Prevent infinite recursion
	var entries []*filesystem.FileSystemEntry

	var walk func(dir *directory.DirectoryRecord, parentPath string) error
	walk = func(dir *directory.DirectoryRecord, parentPath string) error {
		if visited[dir.LocationOfExtent] {
			return nil
		}
		visited[dir.LocationOfExtent] = true

		// Read directory records
		dirRecords, err := p.ReadDirectoryRecords(dir.LocationOfExtent, dir.DataLength)
		if err != nil {
			return err
		}

		for _, record := range dirRecords {
			// Build full path
			fullPath := parentPath + "/" + record.GetBestName(RockRidgeEnabled)

			// Retrieve file attributes
			permissions := record.GetPermissions(RockRidgeEnabled)
			uid, gid := record.GetOwnership(RockRidgeEnabled)
			creationTime, modificationTime := record.GetTimestamps(RockRidgeEnabled)

			// Create FileSystemEntry
			entry := filesystem.FileSystemEntry{
				Name:       record.GetBestName(RockRidgeEnabled),
				FullPath:   fullPath,
				IsDir:      record.IsDirectory(),
				Size:       record.DataLength,
				Location:   record.LocationOfExtent,
				Mode:       permissions,
				CreateTime: creationTime,
				ModTime:    modificationTime,
				UID:        uid,
				GID:        gid,
			}

			entries = append(entries, &entry)

			// Recursively walk directories
			if record.IsDirectory() && !record.IsSpecial() {
				if err := walk(record, fullPath); err != nil {
					return err
				}
			}
		}
		return nil
	}

	// Start walking from the root directory
	if err := walk(rootDir, ""); err != nil {
		return nil, err
	}

	return entries, nil
}

// TODO: Should this not be exported?
// WalkDirectoryRecords recursively walks the directory tree from a given directory record
// and returns a slice of fully populated DirectoryRecord pointers.
func (p *Parser) WalkDirectoryRecords(rootDir *directory.DirectoryRecord) ([]*directory.DirectoryRecord, error) {
	if rootDir == nil {
		return nil, errors.New("rootDir cannot be nil")
	}

	visited := make(map[uint32]bool) // Prevent infinite recursion
	var records []*directory.DirectoryRecord

	var walk func(dir *directory.DirectoryRecord) error
	walk = func(dir *directory.DirectoryRecord) error {
		// Prevent revisiting the same directory
		if visited[dir.LocationOfExtent] {
			return nil
		}
		visited[dir.LocationOfExtent] = true

		// Read directory records from this LBA
		dirRecords, err := p.ReadDirectoryRecords(dir.LocationOfExtent, dir.DataLength)
		if err != nil {
			return err
		}

		for _, record := range dirRecords {
			records = append(records, record)

			// If the record is a directory (excluding `.` and `..` entries), recurse
			if record.IsDirectory() && !record.IsSpecial() {
				if err := walk(record); err != nil {
					return err
				}
			}
		}
		return nil
	}

	// Start walking from the provided root directory record
	if err := walk(rootDir); err != nil {
		return nil, err
	}

	return records, nil
}

// ReadDirectoryRecords reads directory records from a given LBA (logical
// block address), spanning as many consts.ISO9660_SECTOR_SIZE sectors as
// dataLength requires (at least one), and processes Rock Ridge extensions
// if present. A record never spans a sector boundary (ECMA-119 6.8.1.1),
// so a zero length byte at the start of a sector marks padding to the next
// sector rather than the end of the directory - only a zero length byte
// after every requested sector has been consumed ends the scan early.
// dataLength of 0 is treated as exactly one sector, for callers (e.g. the
// root directory record read before its own DataLength is known) that
// haven't resolved the real extent size yet.
func (p *Parser) ReadDirectoryRecords(lba uint32, dataLength uint32) ([]*directory.DirectoryRecord, error) {
	sectors := dataLength / consts.ISO9660_SECTOR_SIZE
	if dataLength%consts.ISO9660_SECTOR_SIZE != 0 || sectors == 0 {
		sectors++
	}

	offset := int64(lba) * consts.ISO9660_SECTOR_SIZE
	buf := make([]byte, consts.ISO9660_SECTOR_SIZE*int(sectors))

	if _, err := p.r.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("failed to read directory extent at LBA %d (%d sectors): %w", lba, sectors, err)
	}

	var records []*directory.DirectoryRecord

	for sector := 0; sector < int(sectors); sector++ {
		reader := bytes.NewReader(buf[sector*consts.ISO9660_SECTOR_SIZE : (sector+1)*consts.ISO9660_SECTOR_SIZE])

		for reader.Len() > 0 {
			// Read length of this directory record (first byte)
			var length byte
			if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
				return nil, fmt.Errorf("failed to read directory record length: %w", err)
			}

			// If length is zero, we've reached padding to the end of this
			// sector; the next record (if any) starts fresh in the next one.
			if length == 0 {
				break
			}

			// Read the record data into a buffer
			recordBuf := make([]byte, length)
			recordBuf[0] = length // First byte already read
			if _, err := io.ReadFull(reader, recordBuf[1:]); err != nil {
				return nil, fmt.Errorf("failed to read directory record: %w", err)
			}

			// Parse directory record from raw data
			dr := &directory.DirectoryRecord{}
			err := dr.Unmarshal(recordBuf)
			if err != nil {
				return nil, fmt.Errorf("failed to parse directory record: %w", err)
			}

			// **Parse Rock Ridge extensions if present**
			if len(dr.SystemUse) > 0 {
				rr, err := extensions.UnmarshalRockRidge(dr.SystemUse)
				if err == nil {
					dr.RockRidge = rr
				}
			}

			records = append(records, dr)
		}
	}

	return records, nil
}
