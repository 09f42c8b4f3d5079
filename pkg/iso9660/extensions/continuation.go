package extensions

import (
	"github.com/bgrewell/iso-forge/pkg/iso9660/encoding"
)

// ContinuationArea is the arena a remaster writes SUSP entries into once
// they no longer fit the System Use field of their owning directory record.
// There is one arena per image; entries from many directories are packed
// into it back to back, each addressed by its own CE chain link.
type ContinuationArea struct {
	blockSize int
	data      []byte
}

// NewContinuationArea starts an empty arena and records blockSize (2048
// when not positive), the counterpart of
// CreateOptions.RRContinuationBlockSize. Reserve does not consult it:
// payloads are appended back to back with no per-block limit.
func NewContinuationArea(blockSize int) *ContinuationArea {
	if blockSize <= 0 {
		blockSize = 2048
	}
	return &ContinuationArea{blockSize: blockSize}
}

// Reserve appends payload (already-marshaled SUSP entries that didn't fit
// the directory record) to the arena and returns the byte offset it starts
// at; the caller combines that with the arena's eventual extent LBA to
// build a CE entry pointing at it.
func (c *ContinuationArea) Reserve(payload []byte) (offset int, length int) {
	offset = len(c.data)
	c.data = append(c.data, payload...)
	return offset, len(payload)
}

// Bytes returns the packed arena content, zero-padded to a sector boundary.
func (c *ContinuationArea) Bytes() []byte {
	padded := make([]byte, c.Sectors(2048)*2048)
	copy(padded, c.data)
	return padded
}

// Sectors reports how many 2048-byte sectors the arena currently occupies.
func (c *ContinuationArea) Sectors(sectorSize int) int {
	if sectorSize <= 0 {
		sectorSize = 2048
	}
	return (len(c.data) + sectorSize - 1) / sectorSize
}

// BuildCEEntry marshals a CE system use entry pointing at (lba, offset,
// length) in the arena.
func BuildCEEntry(lba uint32, offset uint32, length uint32) []byte {
	e := susEntry{sig: sig(CONTINUATION), version: ROCK_RIDGE_VERSION}
	lbaBytes := encoding.MarshalBothByteOrders32(lba)
	offsetBytes := encoding.MarshalBothByteOrders32(offset)
	lengthBytes := encoding.MarshalBothByteOrders32(length)
	e.payload = append(e.payload, lbaBytes[:]...)
	e.payload = append(e.payload, offsetBytes[:]...)
	e.payload = append(e.payload, lengthBytes[:]...)
	return e.marshal()
}

// Pack fits as many of the remaining entries (already-marshaled SUSP byte
// strings) as possible into budget bytes, returning the ones that fit and
// the ones that overflow into the Continuation Area. 28 bytes are reserved
// for a trailing CE entry whenever there is overflow, matching the
// numbered packing algorithm: fill the directory record's System Use
// field first, spill the remainder into one arena reservation, and link it
// with a single CE.
func Pack(entries [][]byte, budget int) (fitting [][]byte, overflow [][]byte) {
	const ceSize = 28
	used := 0
	for i, e := range entries {
		remainingBudget := budget
		if hasMoreAfter(entries, i) {
			remainingBudget -= ceSize
		}
		if used+len(e) > remainingBudget {
			overflow = entries[i:]
			return fitting, overflow
		}
		fitting = append(fitting, e)
		used += len(e)
	}
	return fitting, nil
}

func hasMoreAfter(entries [][]byte, i int) bool {
	return i+1 < len(entries)
}
