package systemarea

import (
	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
)

// SystemArea is the image's first 16 sectors (0-15), reserved by ECMA-119
// 6.2.1 for whatever the system chooses to put there. isoforge uses it to
// carry the isohybrid MBR/GPT (pkg/isohybrid) when that's enabled; left
// zero otherwise.
type SystemArea struct {
	// System Area's use isn't defined in the ISO 9660 standard. It is reserved for system use.
	Contents [consts.ISO9660_SECTOR_SIZE * consts.ISO9660_SYSTEM_AREA_SECTORS]byte
}

func (sa *SystemArea) Type() string { return "System Area" }
func (sa *SystemArea) Name() string { return "System Area" }
func (sa *SystemArea) Description() string {
	return "reserved sectors 0-15 preceding the volume descriptor set"
}

func (sa *SystemArea) Properties() map[string]interface{} {
	return map[string]interface{}{"sectors": consts.ISO9660_SYSTEM_AREA_SECTORS}
}

func (sa *SystemArea) Offset() int64 { return 0 }
func (sa *SystemArea) Size() int     { return len(sa.Contents) }

func (sa *SystemArea) GetObjects() []info.ImageObject {
	return []info.ImageObject{sa}
}

// Marshal returns the system area's contents. Callers that need to embed
// isohybrid scaffolding write into Contents before Marshal is called - the
// write loop that calls Marshal runs after the whole image has been planned.
func (sa *SystemArea) Marshal() ([]byte, error) {
	return sa.Contents[:], nil
}
