package udf

import "encoding/binary"

// ExtentADSize is the on-disk size of an extent_ad, ECMA-167 1/7.1: a
// byte length followed by the logical block it starts at.
const ExtentADSize = 8

// ExtentAD addresses a run of blocks without a partition reference —
// used for the anchor pointer's volume descriptor sequence extents and
// the unallocated space descriptor's free-space runs.
type ExtentAD struct {
	Length   uint32
	Location uint32
}

func (e ExtentAD) Marshal() [ExtentADSize]byte {
	var raw [ExtentADSize]byte
	binary.LittleEndian.PutUint32(raw[0:4], e.Length)
	binary.LittleEndian.PutUint32(raw[4:8], e.Location)
	return raw
}

func (e *ExtentAD) Unmarshal(raw [ExtentADSize]byte) {
	e.Length = binary.LittleEndian.Uint32(raw[0:4])
	e.Location = binary.LittleEndian.Uint32(raw[4:8])
}
