package descriptor

import (
	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
)

// Every volume descriptor occupies exactly one 2048-byte sector (ECMA-119
// 8.1), so Offset/Size only need the LBA each type now carries.

func (pvd *PrimaryVolumeDescriptor) Type() string        { return "Volume Descriptor" }
func (pvd *PrimaryVolumeDescriptor) Name() string        { return "Primary Volume Descriptor" }
func (pvd *PrimaryVolumeDescriptor) Description() string { return pvd.VolumeIdentifier() }

func (pvd *PrimaryVolumeDescriptor) Properties() map[string]interface{} {
	return map[string]interface{}{
		"VolumeIdentifier": pvd.VolumeIdentifier(),
		"VolumeSpaceSize":  pvd.VolumeSpaceSize,
	}
}

func (pvd *PrimaryVolumeDescriptor) Offset() int64 { return int64(pvd.LBA) * consts.ISO9660_SECTOR_SIZE }
func (pvd *PrimaryVolumeDescriptor) Size() int     { return consts.ISO9660_SECTOR_SIZE }

func (pvd *PrimaryVolumeDescriptor) GetObjects() []info.ImageObject {
	return []info.ImageObject{pvd}
}

func (svd *SupplementaryVolumeDescriptor) Type() string { return "Volume Descriptor" }
func (svd *SupplementaryVolumeDescriptor) Name() string {
	return "Supplementary Volume Descriptor"
}
func (svd *SupplementaryVolumeDescriptor) Description() string { return svd.VolumeIdentifier() }

func (svd *SupplementaryVolumeDescriptor) Properties() map[string]interface{} {
	return map[string]interface{}{
		"VolumeIdentifier": svd.VolumeIdentifier(),
		"Joliet":           svd.HasJoliet(),
	}
}

func (svd *SupplementaryVolumeDescriptor) Offset() int64 {
	return int64(svd.LBA) * consts.ISO9660_SECTOR_SIZE
}
func (svd *SupplementaryVolumeDescriptor) Size() int { return consts.ISO9660_SECTOR_SIZE }

func (svd *SupplementaryVolumeDescriptor) GetObjects() []info.ImageObject {
	return []info.ImageObject{svd}
}

func (t *VolumeDescriptorSetTerminator) Type() string        { return "Volume Descriptor" }
func (t *VolumeDescriptorSetTerminator) Name() string        { return "Volume Descriptor Set Terminator" }
func (t *VolumeDescriptorSetTerminator) Description() string { return "" }

func (t *VolumeDescriptorSetTerminator) Properties() map[string]interface{} {
	return map[string]interface{}{}
}

func (t *VolumeDescriptorSetTerminator) Offset() int64 {
	return int64(t.LBA) * consts.ISO9660_SECTOR_SIZE
}
func (t *VolumeDescriptorSetTerminator) Size() int { return consts.ISO9660_SECTOR_SIZE }

func (t *VolumeDescriptorSetTerminator) GetObjects() []info.ImageObject {
	return []info.ImageObject{t}
}

func (b *BootRecordDescriptor) Type() string        { return "Volume Descriptor" }
func (b *BootRecordDescriptor) Name() string        { return "Boot Record Descriptor" }
func (b *BootRecordDescriptor) Description() string { return b.BootRecordBody.BootSystemIdentifier }

func (b *BootRecordDescriptor) Properties() map[string]interface{} {
	return map[string]interface{}{
		"BootSystemIdentifier": b.BootRecordBody.BootSystemIdentifier,
		"BootIdentifier":       b.BootRecordBody.BootIdentifier,
	}
}

func (b *BootRecordDescriptor) Offset() int64 { return int64(b.LBA) * consts.ISO9660_SECTOR_SIZE }
func (b *BootRecordDescriptor) Size() int     { return consts.ISO9660_SECTOR_SIZE }

func (b *BootRecordDescriptor) GetObjects() []info.ImageObject {
	return []info.ImageObject{b}
}
