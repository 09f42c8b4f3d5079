package udf

import (
	"github.com/bgrewell/iso-forge/pkg/helpers"
	"github.com/google/uuid"
)

// EntityIDSize is the fixed on-disk size of an entity identifier
// (ECMA-167 1/7.4): a flags byte, a 23-byte identifier, and 8 bytes of
// identifier suffix.
const EntityIDSize = 32

// EntityID ("regid") names the domain, implementation or application that
// produced a descriptor. This package puts the OSTA UDF domain identifier
// on the logical volume and file set descriptors, whose suffix holds the
// UDF revision and domain flags, and an implementation identifier on the
// other descriptors and File Entries, whose suffix is UUID-derived so that
// images built in separate runs carry distinguishable ids, mirroring how
// other tools stamp a per-build implementation id.
type EntityID struct {
	Flags      byte
	Identifier string
	Suffix     [8]byte
}

// Marshal writes the 32-byte entity identifier.
func (e EntityID) Marshal() [EntityIDSize]byte {
	var raw [EntityIDSize]byte
	raw[0] = e.Flags
	copy(raw[1:24], helpers.PadString(e.Identifier, 23))
	copy(raw[24:32], e.Suffix[:])
	return raw
}

// Unmarshal parses a 32-byte entity identifier.
func (e *EntityID) Unmarshal(raw [EntityIDSize]byte) {
	e.Flags = raw[0]
	e.Identifier = trimZeroPadded(raw[1:24])
	copy(e.Suffix[:], raw[24:32])
}

// OSTAUDFDomainIdentifier is the OSTA UDF domain entity id this package
// records in the logical volume and file set descriptors.
func OSTAUDFDomainIdentifier() EntityID {
	return EntityID{
		Flags:      0,
		Identifier: "*OSTA UDF Compliant",
		Suffix:     udfDomainSuffix(0x0260, 0x03),
	}
}

// ImplementationIdentifier stamps an entity id for this package's own
// file entries, deriving its 8-byte suffix from a random UUID so that
// images built in separate runs carry distinguishable implementation ids,
// the way a build/version stamp would.
func ImplementationIdentifier() EntityID {
	id := uuid.New()
	var suffix [8]byte
	copy(suffix[:], id[:8])
	return EntityID{
		Flags:      0,
		Identifier: "*iso-forge",
		Suffix:     suffix,
	}
}

// udfDomainSuffix builds the 8-byte OSTA domain identifier suffix: UDF
// revision (LE uint16), domain flags, and 5 reserved bytes.
func udfDomainSuffix(revision uint16, domainFlags byte) [8]byte {
	var s [8]byte
	s[0] = byte(revision)
	s[1] = byte(revision >> 8)
	s[2] = domainFlags
	return s
}

func trimZeroPadded(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}
