package isohybrid

import (
	"bytes"
	"fmt"

	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
	"github.com/google/uuid"
)

// isolinuxSignature is the 4-byte marker isohybrid.pl/isolinux expect at
// offset 0x40 of a patched boot file, used to locate where the MBR
// geometry gets written back into the loader at runtime (spec.md §4.6).
var isolinuxSignature = [4]byte{0xfb, 0xc0, 0x78, 0x70}

// bootLoadSizeSectors is the fixed El Torito boot-load size (in 512-byte
// virtual sectors) isohybrid requires of its initial/default entry.
const bootLoadSizeSectors = 4

// Options configures Build.
type Options struct {
	// EFI, when non-nil, describes the embedded EFI boot image's extent
	// (in 2048-byte ISO sectors) and switches MBR partition 0 to
	// PartitionTypeProtective with a GPT taking over as the real
	// partition table.
	EFI *BootImageExtent
	// Mac adds a third GPT partition marking an HFS+/Mac boot region
	// over the same EFI extent, for Mac firmware that boots from GPT
	// but expects an Apple-recognized partition type.
	Mac bool
}

// BootImageExtent locates one El Torito boot image within the image, in
// 2048-byte ISO 9660 sectors.
type BootImageExtent struct {
	LBA     uint32
	Sectors uint32
}

// Image is the built MBR (+ optional GPT) ready to be written at the
// start of an image's system area, alongside the ISO 9660 structures
// pkg/iso9660 lays out starting at sector 16.
type Image struct {
	MBR MBR
	GPT *GPT

	ObjectLocation int64
	ObjectSize     int
}

// Build assembles the isohybrid MBR (and, when opts.EFI is set, the
// primary GPT) covering an image of imageSectors 2048-byte ISO 9660
// sectors, per spec.md §4.6: partition 0 is type 0x17 in BIOS-only mode,
// or empty with the GPT's "ISOHybrid ISO" partition taking over in EFI
// mode; an EFI boot image gets a shadow MBR partition plus a GPT
// "ISOHybrid" partition, and Mac support adds one more GPT partition over
// the same extent.
func Build(imageSectors uint32, opts Options) (*Image, error) {
	const lbaScale = consts.ISO9660_SECTOR_SIZE / 512 // 512-byte LBAs per ISO sector

	totalLBA := uint64(imageSectors) * lbaScale

	img := &Image{}

	if opts.EFI == nil {
		img.MBR.Partitions[0] = Partition{
			Type:     PartitionTypeISOHybrid,
			StartLBA: 0,
			SizeLBA:  uint32(totalLBA),
		}
		img.ObjectSize = mbrSize
		return img, nil
	}

	efiStartLBA := uint64(opts.EFI.LBA) * lbaScale
	efiSizeLBA := uint64(opts.EFI.Sectors) * lbaScale

	img.MBR.Partitions[0] = Partition{
		Type:     PartitionTypeProtective,
		StartLBA: 0,
		SizeLBA:  uint32(totalLBA),
	}
	img.MBR.Partitions[1] = Partition{
		Type:     PartitionTypeEFISystem,
		StartLBA: uint32(efiStartLBA),
		SizeLBA:  uint32(efiSizeLBA),
	}

	diskGUID := uuid.New()
	gpt := &GPT{
		DiskGUID:       diskGUID,
		FirstUsableLBA: 34,
		LastUsableLBA:  totalLBA - 1 - 33,
		Partitions: []GPTPartition{
			{
				TypeGUID: GUIDISOHybridISO,
				PartGUID: uuid.New(),
				FirstLBA: 0,
				LastLBA:  totalLBA - 1,
				Name:     "ISOHybrid ISO",
			},
			{
				TypeGUID: GUIDISOHybridEFI,
				PartGUID: uuid.New(),
				FirstLBA: efiStartLBA,
				LastLBA:  efiStartLBA + efiSizeLBA - 1,
				Name:     "ISOHybrid",
			},
		},
	}

	if opts.Mac {
		gpt.Partitions = append(gpt.Partitions, GPTPartition{
			TypeGUID: GUIDMacHFSBoot,
			PartGUID: uuid.New(),
			FirstLBA: efiStartLBA,
			LastLBA:  efiStartLBA + efiSizeLBA - 1,
			Name:     "ISOHybrid Mac",
		})
	}

	img.GPT = gpt
	img.ObjectSize = mbrSize + (1+gptPartitionEntries*gptPartitionEntrySize/512)*512
	return img, nil
}

// ValidateBootFile checks the two properties spec.md §4.6 requires of a
// BIOS boot image before isohybrid patching can be applied to it: a
// boot-load size of exactly 4 (512-byte) sectors, and the isolinux
// signature at offset 0x40.
func ValidateBootFile(bootLoadSizeSectorsField uint16, header []byte) error {
	if bootLoadSizeSectorsField != bootLoadSizeSectors {
		return fmt.Errorf("isohybrid: boot file declares boot-load size %d sectors, want %d", bootLoadSizeSectorsField, bootLoadSizeSectors)
	}
	if len(header) < 0x44 {
		return fmt.Errorf("isohybrid: boot file too short to carry the isolinux signature at offset 0x40")
	}
	if !bytes.Equal(header[0x40:0x44], isolinuxSignature[:]) {
		return fmt.Errorf("isohybrid: boot file missing isolinux signature 0x%x at offset 0x40", isolinuxSignature)
	}
	return nil
}

func (img *Image) Type() string        { return "Isohybrid" }
func (img *Image) Name() string        { return "Isohybrid MBR/GPT" }
func (img *Image) Description() string { return "isohybrid boot scaffolding in the system area" }

func (img *Image) Properties() map[string]interface{} {
	props := map[string]interface{}{
		"partitions": img.MBR.Partitions,
	}
	if img.GPT != nil {
		props["gpt_partitions"] = len(img.GPT.Partitions)
	}
	return props
}

func (img *Image) Offset() int64 { return img.ObjectLocation }
func (img *Image) Size() int     { return img.ObjectSize }

func (img *Image) GetObjects() []info.ImageObject {
	return []info.ImageObject{img}
}

// Marshal encodes the MBR sector followed by the GPT header/array sectors
// (when present), for writing at the start of the system area.
func (img *Image) Marshal() ([]byte, error) {
	mbr := img.MBR.Marshal()
	out := append([]byte{}, mbr[:]...)

	if img.GPT != nil {
		sectors, err := img.GPT.Marshal()
		if err != nil {
			return nil, err
		}
		for _, s := range sectors {
			out = append(out, s...)
		}
	}

	return out, nil
}
