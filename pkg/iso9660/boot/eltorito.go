package boot

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/filesystem"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
	"github.com/bgrewell/iso-forge/pkg/logging"
)

const (
	// Logical sector 17, the conventional home of the El-Torito boot record
	// (the boot catalog's own LBA is stored inside that record)
	EL_TORITO_SECTOR = 0x11
	// Default catalog name for non-Rock Ridge filesystems
	EL_TORITO_DEFAULT_CATALOG = "BOOT.CAT"
	// Default catalog name for Rock Ridge filesystems
	EL_TORITO_DEFAULT_CATALOG_RR = "boot.catalog"

	catalogEntrySize = 32
)

// PartitionType represents the type of partition in the boot image.
type PartitionType byte

// List of one-byte MBR partition types
const (
	Empty         PartitionType = 0x00
	Fat12         PartitionType = 0x01
	XenixRoot     PartitionType = 0x02
	XenixUsr      PartitionType = 0x03
	Fat16         PartitionType = 0x04
	ExtendedCHS   PartitionType = 0x05
	Fat16b        PartitionType = 0x06
	NTFS          PartitionType = 0x07
	CommodoreFAT  PartitionType = 0x08
	Fat32CHS      PartitionType = 0x0b
	Fat32LBA      PartitionType = 0x0c
	Fat16bLBA     PartitionType = 0x0e
	ExtendedLBA   PartitionType = 0x0f
	Linux         PartitionType = 0x83
	LinuxExtended PartitionType = 0x85
	LinuxLVM      PartitionType = 0x8e
	Iso9660       PartitionType = 0x96
	MacOSXUFS     PartitionType = 0xa8
	MacOSXBoot    PartitionType = 0xab
	HFS           PartitionType = 0xaf
	Solaris8Boot  PartitionType = 0xbe
	EFISystem     PartitionType = 0xef
	VMWareFS      PartitionType = 0xfb
	VMWareSwap    PartitionType = 0xfc
)

func (p PartitionType) String() string {
	switch p {
	case Empty:
		return "Empty"
	case Fat12:
		return "FAT12"
	case XenixRoot:
		return "Xenix Root"
	case XenixUsr:
		return "Xenix User"
	case Fat16:
		return "FAT16"
	case ExtendedCHS:
		return "Extended (CHS)"
	case Fat16b:
		return "FAT16B"
	case NTFS:
		return "NTFS"
	case CommodoreFAT:
		return "Commodore FAT"
	case Fat32CHS:
		return "FAT32 (CHS)"
	case Fat32LBA:
		return "FAT32 (LBA)"
	case Fat16bLBA:
		return "FAT16B (LBA)"
	case ExtendedLBA:
		return "Extended (LBA)"
	case Linux:
		return "Linux"
	case LinuxExtended:
		return "Linux Extended"
	case LinuxLVM:
		return "Linux LVM"
	case Iso9660:
		return "ISO9660"
	case MacOSXUFS:
		return "MacOS X UFS"
	case MacOSXBoot:
		return "MacOS X Boot"
	case HFS:
		return "HFS"
	case Solaris8Boot:
		return "Solaris 8 Boot"
	case EFISystem:
		return "EFI System"
	case VMWareFS:
		return "VMWare FS"
	case VMWareSwap:
		return "VMWare Swap"
	default:
		return "Unknown"
	}
}

// Platform represents the target booting system for an El-Torito bootable ISO.
type Platform uint8

const (
	BIOS Platform = 0x0
	PPC  Platform = 0x1
	Mac  Platform = 0x2
	EFI  Platform = 0xef
)

func (p Platform) String() string {
	switch p {
	case BIOS:
		return "BIOS"
	case PPC:
		return "PowerPC"
	case Mac:
		return "Macintosh"
	case EFI:
		return "EFI"
	default:
		return "Unknown"
	}
}

// Emulation represents the emulation mode used for booting.
type Emulation uint8

const (
	NoEmulation        Emulation = 0x0
	Floppy12Emulation  Emulation = 0x1
	Floppy144Emulation Emulation = 0x2
	Floppy288Emulation Emulation = 0x3
	HardDiskEmulation  Emulation = 0x4
)

func (e Emulation) String() string {
	switch e {
	case NoEmulation:
		return "NoEmul"
	case Floppy12Emulation:
		return "1.2MFloppy"
	case Floppy144Emulation:
		return "1.44MFloppy"
	case Floppy288Emulation:
		return "2.88MFloppy"
	case HardDiskEmulation:
		return "HardDisk"
	default:
		return "Unknown"
	}
}

// ElToritoEntry represents a single boot image reference, whether it came
// from the validation-adjacent initial/default entry or from a platform
// section.
type ElToritoEntry struct {
	Platform      Platform
	Emulation     Emulation
	BootFile      string
	HideBootFile  bool
	Bootable      bool
	LoadSegment   uint16
	PartitionType PartitionType
	SelectionCriteriaType byte
	size          uint16 // 512-byte sectors
	location      uint32 // 2048-byte logical sectors

	// IsInitialDefault is true for the single entry that immediately
	// follows the validation entry (no section header owns it).
	IsInitialDefault bool
}

// NewEntry builds a catalog entry for a boot image that hasn't been placed
// on disc yet; call SetExtent once the planner has assigned the image's
// directory record an extent.
func NewEntry(platform Platform, emulation Emulation, bootFile string, bootable bool, loadSegment uint16, partitionType PartitionType) *ElToritoEntry {
	return &ElToritoEntry{
		Platform:      platform,
		Emulation:     emulation,
		BootFile:      bootFile,
		Bootable:      bootable,
		LoadSegment:   loadSegment,
		PartitionType: partitionType,
	}
}

// SetExtent records where e's boot image ended up: location is the image's
// LBA (2048-byte logical blocks, matching every other directory record),
// and sizeBytes its length - the catalog entry itself counts size in
// 512-byte virtual sectors, so it's rounded up here.
func (e *ElToritoEntry) SetExtent(location uint32, sizeBytes uint32) {
	e.location = location
	e.size = uint16((sizeBytes + 511) / 512)
}

// SectionHeader groups a run of section entries under one platform.
type SectionHeader struct {
	Last     bool // indicator 0x91 instead of 0x90
	Platform Platform
	IDString string
	Entries  []*ElToritoEntry
}

// ValidationEntry is the 32-byte header every boot catalog starts with.
type ValidationEntry struct {
	Platform   Platform
	Identifier string
}

// BootInfoTable is the optional 56-byte patch (§4.6) written at offset 8 of
// a BIOS boot image so the bootloader can locate itself without relying on
// the El Torito catalog at runtime.
type BootInfoTable struct {
	PVDLocation   uint32
	BootFileLBA   uint32
	BootFileBytes uint32
	Checksum      uint32
}

// ElTorito is the in-memory boot catalog: one validation entry, the initial
// default entry, and zero or more additional platform sections.
type ElTorito struct {
	BootCatalog     string
	HideBootCatalog bool
	Validation      ValidationEntry
	Initial         *ElToritoEntry
	Sections        []*SectionHeader
	Entries         []*ElToritoEntry // flattened view: Initial + every section entry, in catalog order

	// StrictValidation rejects a non-conformant validation checksum or
	// validation key bytes instead of tolerating and logging them. A stray
	// 0x00 slot inside a section is tolerated whether or not it is set.
	StrictValidation bool

	ObjectLocation int64  `json:"object_location"`
	ObjectSize     uint32 `json:"object_size"`
	Logger         *logging.Logger
}

func (et *ElTorito) Type() string { return "Boot Catalog" }
func (et *ElTorito) Name() string { return "El Torito Boot Catalog" }

func (et *ElTorito) Description() string {
	return fmt.Sprintf("%s Entries: %d", et.BootCatalog, len(et.Entries))
}

func (et *ElTorito) Properties() map[string]interface{} {
	type entryDetails struct {
		Emulation     string
		Platform      string
		PartitionType string
		Location      uint32
		Size          uint16
	}
	details := make(map[string]entryDetails)
	for i, entry := range et.Entries {
		details[fmt.Sprintf("%d:%s", i, entry.BootFile)] = entryDetails{
			Emulation:     entry.Emulation.String(),
			Platform:      entry.Platform.String(),
			PartitionType: entry.PartitionType.String(),
			Location:      entry.location,
			Size:          entry.size,
		}
	}
	return map[string]interface{}{
		"Entries":         len(et.Entries),
		"Sections":        len(et.Sections),
		"HideBootCatalog": et.HideBootCatalog,
		"EntryDetails":    details,
	}
}

func (et *ElTorito) Offset() int64 { return et.ObjectLocation }
func (et *ElTorito) Size() int     { return int(et.ObjectSize) }

func (et *ElTorito) GetObjects() []info.ImageObject {
	return []info.ImageObject{et}
}

// Marshal writes the validation entry, the initial/default entry, and every
// section header + its entries, in that order, zero-padded to a full sector.
func (et *ElTorito) Marshal() ([]byte, error) {
	if et.Initial == nil {
		return nil, fmt.Errorf("eltorito: boot catalog has no initial/default entry")
	}

	data := make([]byte, consts.ISO9660_SECTOR_SIZE)
	offset := 0

	writeValidation(data[offset:offset+catalogEntrySize], et.Validation)
	offset += catalogEntrySize

	writeInitialEntry(data[offset:offset+catalogEntrySize], et.Initial)
	offset += catalogEntrySize

	for _, section := range et.Sections {
		if offset+catalogEntrySize*(1+len(section.Entries)) > len(data) {
			return nil, fmt.Errorf("eltorito: boot catalog exceeds one sector")
		}
		writeSectionHeader(data[offset:offset+catalogEntrySize], section)
		offset += catalogEntrySize
		for _, entry := range section.Entries {
			writeSectionEntry(data[offset:offset+catalogEntrySize], entry)
			offset += catalogEntrySize
		}
	}
	// A 0x00 byte (already present from zero-init) terminates the catalog.

	return data, nil
}

func writeValidation(buf []byte, v ValidationEntry) {
	buf[0] = consts.EL_TORITO_VALIDATION_HEADER_ID
	buf[1] = byte(v.Platform)
	id := v.Identifier
	if len(id) > 24 {
		id = id[:24]
	}
	copy(buf[4:28], padRight(id, 24))
	buf[0x1E] = 0x55
	buf[0x1F] = 0xAA

	checksum := uint16(0)
	for i := 0; i < 32; i += 2 {
		checksum += binary.LittleEndian.Uint16(buf[i : i+2])
	}
	binary.LittleEndian.PutUint16(buf[0x1C:0x1E], 0)
	binary.LittleEndian.PutUint16(buf[0x1C:0x1E], uint16(0)-checksum)
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func writeInitialEntry(buf []byte, e *ElToritoEntry) {
	if e.Bootable {
		buf[0] = consts.EL_TORITO_INITIAL_BOOTABLE
	} else {
		buf[0] = consts.EL_TORITO_INITIAL_NOT_BOOTABLE
	}
	buf[1] = byte(e.Emulation)
	binary.LittleEndian.PutUint16(buf[2:4], e.LoadSegment)
	buf[4] = byte(e.PartitionType)
	binary.LittleEndian.PutUint16(buf[6:8], e.size)
	binary.LittleEndian.PutUint32(buf[8:12], e.location)
}

func writeSectionHeader(buf []byte, s *SectionHeader) {
	if s.Last {
		buf[0] = consts.EL_TORITO_SECTION_HEADER_LAST
	} else {
		buf[0] = consts.EL_TORITO_SECTION_HEADER_MORE
	}
	buf[1] = byte(s.Platform)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(s.Entries)))
	id := s.IDString
	if len(id) > 28 {
		id = id[:28]
	}
	copy(buf[4:32], padRight(id, 28))
}

func writeSectionEntry(buf []byte, e *ElToritoEntry) {
	if e.Bootable {
		buf[0] = consts.EL_TORITO_INITIAL_BOOTABLE
	} else {
		buf[0] = consts.EL_TORITO_INITIAL_NOT_BOOTABLE
	}
	buf[1] = byte(e.Emulation)
	binary.LittleEndian.PutUint16(buf[2:4], e.LoadSegment)
	buf[4] = byte(e.PartitionType)
	buf[5] = e.SelectionCriteriaType
	binary.LittleEndian.PutUint16(buf[6:8], e.size)
	binary.LittleEndian.PutUint32(buf[8:12], e.location)
}

// UnmarshalBinary decodes an El-Torito boot catalog, tolerating a stray
// 0x00 byte between entries in "expect section entry" state instead of
// treating it as a malformed catalog (§9 Open Question 1, matching
// pycdlib's eltorito.py scan behavior).
func (et *ElTorito) UnmarshalBinary(data []byte) error {
	if et.Logger != nil {
		et.Logger.Debug("Starting El Torito Boot Catalog unmarshalling")
	}
	if len(data) < catalogEntrySize {
		return fmt.Errorf("eltorito: boot catalog data too short")
	}

	validation, err := parseValidationEntry(data[:catalogEntrySize], et.StrictValidation, et.Logger)
	if err != nil {
		return fmt.Errorf("eltorito: invalid validation entry: %w", err)
	}
	et.Validation = *validation

	if len(data) < catalogEntrySize*2 {
		return fmt.Errorf("eltorito: boot catalog missing initial entry")
	}
	et.Initial = parseCatalogEntry(data[catalogEntrySize:catalogEntrySize*2], true)
	et.Entries = append(et.Entries, et.Initial)

	offset := catalogEntrySize * 2
	var current *SectionHeader
	remainingInSection := 0

	for offset+catalogEntrySize <= len(data) {
		entryData := data[offset : offset+catalogEntrySize]
		indicator := entryData[0]

		switch indicator {
		case 0x00:
			if remainingInSection > 0 {
				// Tolerated quirk: a stray unused slot inside a section.
				if et.Logger != nil {
					et.Logger.Info("tolerating stray 0x00 entry while expecting a section entry", "offset", offset)
				}
				offset += catalogEntrySize
				remainingInSection--
				continue
			}
			if et.Logger != nil {
				et.Logger.Debug("end of El Torito boot catalog reached", "offset", offset)
			}
			offset = len(data)

		case consts.EL_TORITO_SECTION_HEADER_MORE, consts.EL_TORITO_SECTION_HEADER_LAST:
			remainingInSection = int(binary.LittleEndian.Uint16(entryData[2:4]))
			current = &SectionHeader{
				Last:     indicator == consts.EL_TORITO_SECTION_HEADER_LAST,
				Platform: Platform(entryData[1]),
				IDString: strings.TrimRight(string(entryData[4:32]), "\x00 "),
			}
			et.Sections = append(et.Sections, current)
			offset += catalogEntrySize

		default:
			entry := parseCatalogEntry(entryData, false)
			if current != nil {
				current.Entries = append(current.Entries, entry)
				remainingInSection--
			}
			et.Entries = append(et.Entries, entry)
			offset += catalogEntrySize
		}

		if offset >= len(data) {
			break
		}
	}

	if et.Logger != nil {
		et.Logger.Debug("total El Torito entries discovered", "count", len(et.Entries))
	}
	return nil
}

func parseCatalogEntry(data []byte, isInitial bool) *ElToritoEntry {
	e := &ElToritoEntry{
		Bootable:         data[0] == consts.EL_TORITO_INITIAL_BOOTABLE,
		Platform:         Platform(data[1]),
		Emulation:        Emulation(data[1] & 0x0f),
		LoadSegment:      binary.LittleEndian.Uint16(data[2:4]),
		PartitionType:    PartitionType(data[4]),
		size:             binary.LittleEndian.Uint16(data[6:8]),
		location:         binary.LittleEndian.Uint32(data[8:12]),
		IsInitialDefault: isInitial,
	}
	if !isInitial {
		e.Emulation = Emulation(data[1])
		e.SelectionCriteriaType = data[5]
	} else {
		e.Emulation = Emulation(data[1])
	}
	return e
}

func parseValidationEntry(data []byte, strict bool, logger *logging.Logger) (*ValidationEntry, error) {
	if len(data) < catalogEntrySize {
		return nil, fmt.Errorf("validation entry: data too short")
	}
	if data[0] != consts.EL_TORITO_VALIDATION_HEADER_ID {
		return nil, fmt.Errorf("validation entry: invalid header ID 0x%02x", data[0])
	}

	checksum := uint16(0)
	for i := 0; i < 32; i += 2 {
		checksum += binary.LittleEndian.Uint16(data[i : i+2])
	}
	if checksum != 0 {
		if strict {
			return nil, fmt.Errorf("validation entry: checksum invalid")
		}
		if logger != nil {
			logger.Info("tolerating non-conformant El Torito validation checksum")
		}
	}
	if data[0x1E] != 0x55 || data[0x1F] != 0xAA {
		if strict {
			return nil, fmt.Errorf("validation entry: invalid key bytes 0x%02x%02x", data[0x1E], data[0x1F])
		}
		if logger != nil {
			logger.Info("tolerating non-conformant El Torito key bytes")
		}
	}

	return &ValidationEntry{
		Platform:   Platform(data[1]),
		Identifier: strings.TrimRight(string(data[4:28]), "\x00 "),
	}, nil
}

// BuildBootImageEntries constructs synthetic FileSystemEntry objects for
// each bootable image so they surface through the same extraction path as
// ordinary files.
func (et *ElTorito) BuildBootImageEntries() ([]*filesystem.FileSystemEntry, error) {
	var entries []*filesystem.FileSystemEntry

	for i, entry := range et.Entries {
		if entry.size == 0 || entry.location == 0 {
			continue
		}
		filename := fmt.Sprintf("%d-Boot-%s.img", i+1, entry.Emulation)
		fsEntry := &filesystem.FileSystemEntry{
			Name:       filename,
			FullPath:   "/[BOOT]/" + filename,
			IsDir:      false,
			Size:       uint32(entry.size) * 512,
			Location:   entry.location,
			Mode:       0444,
			CreateTime: time.Time{},
			ModTime:    time.Time{},
		}
		entries = append(entries, fsEntry)
	}

	if et.Logger != nil {
		et.Logger.Debug("total boot image entries built", "count", len(entries))
	}
	return entries, nil
}

// ExtractBootImages writes every bootable image out to outputDir.
func (et *ElTorito) ExtractBootImages(ra io.ReaderAt, outputDir string) error {
	if et.Logger != nil {
		et.Logger.Debug("extracting El Torito boot images", "outputDir", outputDir)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	for i, entry := range et.Entries {
		if entry.size == 0 || entry.location == 0 {
			continue
		}

		filename := fmt.Sprintf("%d-Boot-%s.img", i+1, entry.Emulation)
		outputPath := filepath.Join(outputDir, filename)

		outFile, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", outputPath, err)
		}

		startOffset := int64(entry.location) * int64(consts.ISO9660_SECTOR_SIZE)
		data := make([]byte, int64(entry.size)*512)
		if _, err := ra.ReadAt(data, startOffset); err != nil {
			outFile.Close()
			return fmt.Errorf("failed to read boot image at offset %d: %w", startOffset, err)
		}

		if _, err := outFile.Write(data); err != nil {
			outFile.Close()
			return fmt.Errorf("failed to write boot image to file %s: %w", outputPath, err)
		}
		outFile.Close()

		entry.BootFile = outputPath
		if et.Logger != nil {
			et.Logger.Debug("boot image extracted", "outputPath", outputPath)
		}
	}

	return nil
}

// IsElTorito reports whether a boot record's system identifier names the
// El Torito specification.
func IsElTorito(bootSystemIdentifier string) bool {
	trimmed := strings.TrimRight(bootSystemIdentifier, "\x00")
	return trimmed == consts.EL_TORITO_BOOT_SYSTEM_ID
}

// MarshalBootInfoTable produces the 56-byte patch written at byte offset 8
// of a BIOS boot image.
func MarshalBootInfoTable(t BootInfoTable) []byte {
	buf := make([]byte, 56)
	binary.LittleEndian.PutUint32(buf[0:4], t.PVDLocation)
	binary.LittleEndian.PutUint32(buf[4:8], t.BootFileLBA)
	binary.LittleEndian.PutUint32(buf[8:12], t.BootFileBytes)
	binary.LittleEndian.PutUint32(buf[12:16], t.Checksum)
	return buf
}

// ComputeBootInfoTableChecksum sums every 32-bit little-endian word of the
// boot file starting at byte 64 (the table itself occupies bytes 8-63).
func ComputeBootInfoTableChecksum(bootFile []byte) uint32 {
	var sum uint32
	for i := 64; i+4 <= len(bootFile); i += 4 {
		sum += binary.LittleEndian.Uint32(bootFile[i : i+4])
	}
	return sum
}
