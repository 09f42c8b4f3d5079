package udf

import "encoding/binary"

// ShortADSize is the on-disk size of a short_ad, ECMA-167 4/14.14.1.
const ShortADSize = 8

// ShortAD ("short allocation descriptor") addresses an extent within the
// partition the owning descriptor belongs to: a length (low 30 bits) plus
// two type bits, and a block number relative to the partition start.
type ShortAD struct {
	ExtentLength uint32
	ExtentType   byte // 0=recorded+allocated, 1=not recorded+allocated, 2=not recorded+not allocated, 3=next extent
	Position     uint32
}

func (a ShortAD) Marshal() [ShortADSize]byte {
	var raw [ShortADSize]byte
	lengthField := a.ExtentLength&0x3FFFFFFF | uint32(a.ExtentType)<<30
	binary.LittleEndian.PutUint32(raw[0:4], lengthField)
	binary.LittleEndian.PutUint32(raw[4:8], a.Position)
	return raw
}

func (a *ShortAD) Unmarshal(raw [ShortADSize]byte) {
	lengthField := binary.LittleEndian.Uint32(raw[0:4])
	a.ExtentLength = lengthField & 0x3FFFFFFF
	a.ExtentType = byte(lengthField >> 30)
	a.Position = binary.LittleEndian.Uint32(raw[4:8])
}

// LongADSize is the on-disk size of a long_ad, ECMA-167 4/14.14.2.
const LongADSize = 16

// LongAD ("long allocation descriptor") extends ShortAD with an explicit
// partition reference number and 6 bytes of implementation use, letting it
// address an extent in any partition rather than only the owner's own.
type LongAD struct {
	ExtentLength    uint32
	ExtentType      byte
	Position        uint32
	PartitionRefNum uint16
	ImplementUse    [6]byte
}

func (a LongAD) Marshal() [LongADSize]byte {
	var raw [LongADSize]byte
	lengthField := a.ExtentLength&0x3FFFFFFF | uint32(a.ExtentType)<<30
	binary.LittleEndian.PutUint32(raw[0:4], lengthField)
	binary.LittleEndian.PutUint32(raw[4:8], a.Position)
	binary.LittleEndian.PutUint16(raw[8:10], a.PartitionRefNum)
	copy(raw[10:16], a.ImplementUse[:])
	return raw
}

func (a *LongAD) Unmarshal(raw [LongADSize]byte) {
	lengthField := binary.LittleEndian.Uint32(raw[0:4])
	a.ExtentLength = lengthField & 0x3FFFFFFF
	a.ExtentType = byte(lengthField >> 30)
	a.Position = binary.LittleEndian.Uint32(raw[4:8])
	a.PartitionRefNum = binary.LittleEndian.Uint16(raw[8:10])
	copy(a.ImplementUse[:], raw[10:16])
}

// ICBTagSize is the on-disk size of an ICB tag, ECMA-167 4/14.6.
const ICBTagSize = 20

// File type codes relevant to this package's tree, ECMA-167 4/14.6.6.
const (
	FileTypeDirectory  byte = 4
	FileTypeRegular    byte = 5
	FileTypeSymlink    byte = 12
)

// ICBTag ("Information Control Block tag") precedes a File Entry's body
// and records the node's allocation descriptor strategy and file type.
// ParentICBBlock/ParentICBPartition form the 6-byte lb_addr the standard
// embeds at offset 12 (a bare block+partition pair, not a full long_ad).
type ICBTag struct {
	PriorDirectEntries uint32
	StrategyType       uint16 // 4 = direct entries, this package only writes strategy 4
	StrategyParameter  [2]byte
	MaxEntries         uint16
	FileType           byte
	ParentICBBlock     uint32
	ParentICBPartition uint16
	Flags              uint16 // bits 0-2: allocation descriptor type (0 = short_ad)
}

func (t ICBTag) Marshal() [ICBTagSize]byte {
	var raw [ICBTagSize]byte
	binary.LittleEndian.PutUint32(raw[0:4], t.PriorDirectEntries)
	binary.LittleEndian.PutUint16(raw[4:6], t.StrategyType)
	copy(raw[6:8], t.StrategyParameter[:])
	binary.LittleEndian.PutUint16(raw[8:10], t.MaxEntries)
	raw[10] = 0 // reserved
	raw[11] = t.FileType
	binary.LittleEndian.PutUint32(raw[12:16], t.ParentICBBlock)
	binary.LittleEndian.PutUint16(raw[16:18], t.ParentICBPartition)
	binary.LittleEndian.PutUint16(raw[18:20], t.Flags)
	return raw
}

func (t *ICBTag) Unmarshal(raw [ICBTagSize]byte) {
	t.PriorDirectEntries = binary.LittleEndian.Uint32(raw[0:4])
	t.StrategyType = binary.LittleEndian.Uint16(raw[4:6])
	copy(t.StrategyParameter[:], raw[6:8])
	t.MaxEntries = binary.LittleEndian.Uint16(raw[8:10])
	t.FileType = raw[11]
	t.ParentICBBlock = binary.LittleEndian.Uint32(raw[12:16])
	t.ParentICBPartition = binary.LittleEndian.Uint16(raw[16:18])
	t.Flags = binary.LittleEndian.Uint16(raw[18:20])
}
