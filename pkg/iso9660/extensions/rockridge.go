package extensions

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/iso9660/encoding"
)

const (
	ROCK_RIDGE_IDENTIFIER = "RRIP_1991A"
	ROCK_RIDGE_VERSION    = 1
)

// RockRidgeEntryType is the two-byte SUSP signature of a system use entry.
type RockRidgeEntryType string

const (
	SHARING_PROTOCOL RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_SP)
	ROCK_RIDGE        RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_RR)
	CONTINUATION      RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_CE)
	EXTENSIONS_REF    RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_ER)
	POSIX_FILE_PERMS  RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_PX)
	POSIX_DEVICE_NUM  RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_PN)
	SYMBOLIC_LINK     RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_SL)
	ALTERNATE_NAME    RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_NM)
	CHILD_LINK        RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_CL)
	PARENT_LINK       RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_PL)
	RELOCATED_DIR     RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_RE)
	TIME_STAMPS       RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_TF)
	SPARSE_FILE       RockRidgeEntryType = RockRidgeEntryType(consts.RR_SIG_SF)
)

// NameEntryFlags decodes the one-byte flags field of an NM entry.
type NameEntryFlags struct {
	Continue  bool // Bit 0: Name Content continues in the next NM entry.
	Current   bool // Bit 1: Name Content refers to "." (the NM payload is empty).
	Parent    bool // Bit 2: Name Content refers to ".." (the NM payload is empty).
	Reserved1 bool
	Reserved2 bool
	Historic  bool // Bit 5: historically the network node name, unused here.
	Reserved4 bool
	Reserved5 bool
}

func (f NameEntryFlags) byte_() byte {
	var b byte
	if f.Continue {
		b |= 0x01
	}
	if f.Current {
		b |= 0x02
	}
	if f.Parent {
		b |= 0x04
	}
	return b
}

// TimeStampFlags selects which of the TF entry's optional timestamps are
// present, and whether they use the 17-byte volume-descriptor date form
// (long) instead of the default 7-byte recording date form.
type TimeStampFlags struct {
	Creation     bool
	Modification bool
	Access       bool
	Attributes   bool
	Backup       bool
	Expiration   bool
	Effective    bool
	LongForm     bool
}

// RockRidgeExtensions holds the decoded system use fields for one directory
// record. A nil *RockRidgeExtensions means the record carries no SUSP area
// at all; a non-nil one with every field nil means SUSP fields were present
// but none of the ones this package decodes (SP/RR/ER are recognized and
// skipped; nothing from them is stored).
type RockRidgeExtensions struct {
	// PX
	UID         *uint32
	GID         *uint32
	Permissions *fs.FileMode
	Links       *uint32

	// PN
	Major *uint32
	Minor *uint32

	// SL
	SymlinkTarget *string
	SymlinkFlags  *byte

	// NM - a name may be split across several NM entries;
	// AlternateNameFlags holds the flags of the last entry read, and
	// AlternateName is set once an entry without the Continue bit ends it.
	AlternateNameFlags *NameEntryFlags
	AlternateName      *string

	// CL/PL/RE - directory relocation (§4.5 RR_MOVED)
	ChildLinkLBA  *uint32
	ParentLinkLBA *uint32
	IsRelocated   *bool

	// TF
	CreationTime     *time.Time
	ModificationTime *time.Time
	AccessTime       *time.Time

	// SF
	IsSparse *bool

	// CE - a Continuation Area chain link; present when the System Use
	// field could not fit every requested entry in the directory record.
	ContinuationLBA    *uint32
	ContinuationOffset *uint32
	ContinuationLength *uint32
}

// HasRockRidge reports whether any Rock Ridge field was decoded.
func (r *RockRidgeExtensions) HasRockRidge() bool {
	if r == nil {
		return false
	}
	return r.UID != nil || r.GID != nil || r.Permissions != nil ||
		r.Major != nil || r.Minor != nil || r.SymlinkTarget != nil ||
		r.AlternateName != nil || r.ChildLinkLBA != nil || r.ParentLinkLBA != nil ||
		r.IsRelocated != nil || r.CreationTime != nil || r.ModificationTime != nil ||
		r.AccessTime != nil || r.IsSparse != nil
}

// susEntry is one raw signature/length/version/payload record, the unit
// SUSP 1.12 §5.1 defines every system use field in terms of.
type susEntry struct {
	sig     [2]byte
	version byte
	payload []byte
}

func (e susEntry) length() int {
	return 4 + len(e.payload)
}

func (e susEntry) marshal() []byte {
	buf := make([]byte, 0, e.length())
	buf = append(buf, e.sig[:]...)
	buf = append(buf, byte(e.length()))
	buf = append(buf, e.version)
	buf = append(buf, e.payload...)
	return buf
}

func splitSUSEntries(data []byte) ([]susEntry, error) {
	var entries []susEntry
	offset := 0
	for offset+4 <= len(data) {
		length := int(data[offset+2])
		if length < 4 || offset+length > len(data) {
			// Some encoders pad the System Use area with trailing zero
			// bytes to reach an even record length; treat a short/zero
			// remainder as padding rather than a hard error.
			break
		}
		var sig [2]byte
		copy(sig[:], data[offset:offset+2])
		entries = append(entries, susEntry{
			sig:     sig,
			version: data[offset+3],
			payload: append([]byte(nil), data[offset+4:offset+length]...),
		})
		offset += length
	}
	return entries, nil
}

// UnmarshalRockRidge decodes every recognized SUSP/RRIP entry out of a
// directory record's System Use field. It does not follow CE continuation
// chains itself - FollowContinuations does that once the image's reader is
// available - but it does report the chain link via ContinuationLBA so the
// caller knows one exists.
func UnmarshalRockRidge(data []byte) (*RockRidgeExtensions, error) {
	if len(data) < 4 {
		return nil, errors.New("extensions: system use area too short for a Rock Ridge entry")
	}

	entries, err := splitSUSEntries(data)
	if err != nil {
		return nil, err
	}

	rr := &RockRidgeExtensions{}
	var nameBuilder bytes.Buffer
	nameContinuing := false

	for _, e := range entries {
		switch RockRidgeEntryType(e.sig[:]) {
		case SHARING_PROTOCOL, ROCK_RIDGE, EXTENSIONS_REF:
			// SP marks the start of the SUSP area (root record only), RR is
			// the legacy 1991a presence flag, ER declares the extension -
			// none carry fields this struct exposes.
			continue

		case CONTINUATION:
			if len(e.payload) < 24 {
				return nil, fmt.Errorf("extensions: CE payload too short: %d bytes", len(e.payload))
			}
			lba, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[0:8]))
			if err != nil {
				return nil, fmt.Errorf("extensions: CE location: %w", err)
			}
			off, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[8:16]))
			if err != nil {
				return nil, fmt.Errorf("extensions: CE offset: %w", err)
			}
			sz, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[16:24]))
			if err != nil {
				return nil, fmt.Errorf("extensions: CE size: %w", err)
			}
			rr.ContinuationLBA = &lba
			rr.ContinuationOffset = &off
			rr.ContinuationLength = &sz

		case POSIX_FILE_PERMS:
			if len(e.payload) < 32 {
				return nil, fmt.Errorf("extensions: PX payload too short: %d bytes", len(e.payload))
			}
			modeRaw, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[0:8]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PX mode: %w", err)
			}
			mode := parseFileMode(modeRaw)
			rr.Permissions = &mode

			links, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[8:16]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PX links: %w", err)
			}
			rr.Links = &links

			uid, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[16:24]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PX uid: %w", err)
			}
			rr.UID = &uid

			gid, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[24:32]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PX gid: %w", err)
			}
			rr.GID = &gid

		case POSIX_DEVICE_NUM:
			if len(e.payload) < 16 {
				return nil, fmt.Errorf("extensions: PN payload too short: %d bytes", len(e.payload))
			}
			major, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[0:8]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PN major: %w", err)
			}
			minor, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[8:16]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PN minor: %w", err)
			}
			rr.Major = &major
			rr.Minor = &minor

		case TIME_STAMPS:
			if len(e.payload) < 1 {
				return nil, errors.New("extensions: TF payload too short")
			}
			flag := e.payload[0]
			longForm := flag&0x80 != 0
			offset := 1
			fieldLen := 7
			if longForm {
				fieldLen = 17
			}
			readField := func() (time.Time, error) {
				if offset+fieldLen > len(e.payload) {
					return time.Time{}, errors.New("extensions: TF field truncated")
				}
				var t time.Time
				var err error
				if longForm {
					t, err = encoding.UnmarshalDateTime([17]byte(e.payload[offset : offset+17]))
				} else {
					t, err = encoding.UnmarshalRecordingDateTime([7]byte(e.payload[offset : offset+7]))
				}
				offset += fieldLen
				return t, err
			}
			if flag&0x01 != 0 {
				t, err := readField()
				if err != nil {
					return nil, fmt.Errorf("extensions: TF creation: %w", err)
				}
				rr.CreationTime = &t
			}
			if flag&0x02 != 0 {
				t, err := readField()
				if err != nil {
					return nil, fmt.Errorf("extensions: TF modification: %w", err)
				}
				rr.ModificationTime = &t
			}
			if flag&0x04 != 0 {
				t, err := readField()
				if err != nil {
					return nil, fmt.Errorf("extensions: TF access: %w", err)
				}
				rr.AccessTime = &t
			}

		case ALTERNATE_NAME:
			if len(e.payload) < 1 {
				return nil, errors.New("extensions: NM payload too short")
			}
			flagByte := e.payload[0]
			flags := &NameEntryFlags{
				Continue: flagByte&0x01 != 0,
				Current:  flagByte&0x02 != 0,
				Parent:   flagByte&0x04 != 0,
				Historic: flagByte&0x20 != 0,
			}
			nameBuilder.Write(e.payload[1:])
			nameContinuing = flags.Continue
			rr.AlternateNameFlags = flags
			if !nameContinuing {
				s := nameBuilder.String()
				rr.AlternateName = &s
			}

		case SYMBOLIC_LINK:
			if len(e.payload) < 1 {
				return nil, errors.New("extensions: SL payload too short")
			}
			flags := e.payload[0]
			rr.SymlinkFlags = &flags
			target, err := decodeSymlinkComponents(e.payload[1:])
			if err != nil {
				return nil, fmt.Errorf("extensions: SL: %w", err)
			}
			rr.SymlinkTarget = &target

		case CHILD_LINK:
			if len(e.payload) < 8 {
				return nil, errors.New("extensions: CL payload too short")
			}
			lba, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[0:8]))
			if err != nil {
				return nil, fmt.Errorf("extensions: CL: %w", err)
			}
			rr.ChildLinkLBA = &lba

		case PARENT_LINK:
			if len(e.payload) < 8 {
				return nil, errors.New("extensions: PL payload too short")
			}
			lba, err := encoding.UnmarshalUint32LSBMSB([8]byte(e.payload[0:8]))
			if err != nil {
				return nil, fmt.Errorf("extensions: PL: %w", err)
			}
			rr.ParentLinkLBA = &lba

		case RELOCATED_DIR:
			t := true
			rr.IsRelocated = &t

		case SPARSE_FILE:
			t := true
			rr.IsSparse = &t
		}
	}

	return rr, nil
}

// decodeSymlinkComponents joins SL component records (each: flags byte,
// length byte, content) with "/", substituting the reserved current/parent/
// root component flags for "." / ".." / "/" per RRIP 4.1.3.1.
func decodeSymlinkComponents(data []byte) (string, error) {
	var parts []string
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return "", errors.New("truncated component header")
		}
		flags := data[offset]
		length := int(data[offset+1])
		offset += 2
		switch {
		case flags&0x02 != 0:
			parts = append(parts, ".")
			continue
		case flags&0x04 != 0:
			parts = append(parts, "..")
			continue
		case flags&0x08 != 0:
			parts = append(parts, "")
			continue
		}
		if offset+length > len(data) {
			return "", errors.New("truncated component content")
		}
		parts = append(parts, string(data[offset:offset+length]))
		offset += length
	}
	result := ""
	for i, p := range parts {
		if i > 0 {
			result += "/"
		}
		result += p
	}
	if len(parts) > 0 && parts[0] == "" {
		result = "/" + result[1:]
	}
	return result, nil
}

// MarshalRockRidge serializes the populated fields of rr into a sequence of
// SUSP entries, in the conventional PX/PN/SL/NM/CL/PL/RE/TF/SF order. It
// does not emit SP/RR/CE/ER and does not check the result against the
// space left in the directory record's System Use field; CE links are
// built separately by BuildCEEntry/ContinuationArea in continuation.go.
func MarshalRockRidge(rr *RockRidgeExtensions) ([]byte, error) {
	var entries []susEntry

	if rr.UID != nil && rr.GID != nil && rr.Permissions != nil {
		payload := make([]byte, 0, 32)
		modeBytes := encoding.MarshalBothByteOrders32(fileModeToRaw(*rr.Permissions))
		payload = append(payload, modeBytes[:]...)
		links := uint32(1)
		if rr.Links != nil {
			links = *rr.Links
		}
		linkBytes := encoding.MarshalBothByteOrders32(links)
		uidBytes := encoding.MarshalBothByteOrders32(*rr.UID)
		gidBytes := encoding.MarshalBothByteOrders32(*rr.GID)
		payload = append(payload, linkBytes[:]...)
		payload = append(payload, uidBytes[:]...)
		payload = append(payload, gidBytes[:]...)
		entries = append(entries, susEntry{sig: sig(POSIX_FILE_PERMS), version: ROCK_RIDGE_VERSION, payload: payload})
	}

	if rr.Major != nil && rr.Minor != nil {
		payload := make([]byte, 0, 16)
		majorBytes := encoding.MarshalBothByteOrders32(*rr.Major)
		minorBytes := encoding.MarshalBothByteOrders32(*rr.Minor)
		payload = append(payload, majorBytes[:]...)
		payload = append(payload, minorBytes[:]...)
		entries = append(entries, susEntry{sig: sig(POSIX_DEVICE_NUM), version: ROCK_RIDGE_VERSION, payload: payload})
	}

	if rr.SymlinkTarget != nil {
		payload := make([]byte, 0, 16)
		flags := byte(0)
		if rr.SymlinkFlags != nil {
			flags = *rr.SymlinkFlags
		}
		payload = append(payload, flags)
		payload = append(payload, encodeSymlinkComponents(*rr.SymlinkTarget)...)
		entries = append(entries, susEntry{sig: sig(SYMBOLIC_LINK), version: ROCK_RIDGE_VERSION, payload: payload})
	}

	if rr.AlternateName != nil {
		// Chunk the name into <=250-byte NM entries (250 = 255 max record
		// length - 4 header bytes - 1 flags byte), setting Continue on all
		// but the last.
		name := []byte(*rr.AlternateName)
		const maxChunk = 250
		if len(name) == 0 {
			entries = append(entries, susEntry{sig: sig(ALTERNATE_NAME), version: ROCK_RIDGE_VERSION, payload: []byte{0x00}})
		}
		for offset := 0; offset < len(name); offset += maxChunk {
			end := offset + maxChunk
			cont := end < len(name)
			if end > len(name) {
				end = len(name)
			}
			flags := byte(0)
			if cont {
				flags |= 0x01
			}
			payload := append([]byte{flags}, name[offset:end]...)
			entries = append(entries, susEntry{sig: sig(ALTERNATE_NAME), version: ROCK_RIDGE_VERSION, payload: payload})
		}
	}

	if rr.ChildLinkLBA != nil {
		payload := encoding.MarshalBothByteOrders32(*rr.ChildLinkLBA)
		entries = append(entries, susEntry{sig: sig(CHILD_LINK), version: ROCK_RIDGE_VERSION, payload: payload[:]})
	}

	if rr.ParentLinkLBA != nil {
		payload := encoding.MarshalBothByteOrders32(*rr.ParentLinkLBA)
		entries = append(entries, susEntry{sig: sig(PARENT_LINK), version: ROCK_RIDGE_VERSION, payload: payload[:]})
	}

	if rr.IsRelocated != nil && *rr.IsRelocated {
		entries = append(entries, susEntry{sig: sig(RELOCATED_DIR), version: ROCK_RIDGE_VERSION})
	}

	if rr.CreationTime != nil || rr.ModificationTime != nil || rr.AccessTime != nil {
		var flag byte
		var payload []byte
		if rr.CreationTime != nil {
			flag |= 0x01
		}
		if rr.ModificationTime != nil {
			flag |= 0x02
		}
		if rr.AccessTime != nil {
			flag |= 0x04
		}
		payload = append(payload, flag)
		appendField := func(t *time.Time) error {
			if t == nil {
				return nil
			}
			b, err := encoding.MarshalRecordingDateTime(*t)
			if err != nil {
				return err
			}
			payload = append(payload, b[:]...)
			return nil
		}
		if err := appendField(rr.CreationTime); err != nil {
			return nil, fmt.Errorf("extensions: TF creation: %w", err)
		}
		if err := appendField(rr.ModificationTime); err != nil {
			return nil, fmt.Errorf("extensions: TF modification: %w", err)
		}
		if err := appendField(rr.AccessTime); err != nil {
			return nil, fmt.Errorf("extensions: TF access: %w", err)
		}
		entries = append(entries, susEntry{sig: sig(TIME_STAMPS), version: ROCK_RIDGE_VERSION, payload: payload})
	}

	if rr.IsSparse != nil && *rr.IsSparse {
		entries = append(entries, susEntry{sig: sig(SPARSE_FILE), version: ROCK_RIDGE_VERSION})
	}

	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(e.marshal())
	}
	return buf.Bytes(), nil
}

func encodeSymlinkComponents(target string) []byte {
	var buf bytes.Buffer
	isAbs := len(target) > 0 && target[0] == '/'
	comps := splitPath(target)
	for i, c := range comps {
		switch {
		case i == 0 && isAbs:
			buf.WriteByte(0x08)
			buf.WriteByte(0)
		case c == ".":
			buf.WriteByte(0x02)
			buf.WriteByte(0)
		case c == "..":
			buf.WriteByte(0x04)
			buf.WriteByte(0)
		default:
			buf.WriteByte(0x00)
			buf.WriteByte(byte(len(c)))
			buf.WriteString(c)
		}
	}
	return buf.Bytes()
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	var parts []string
	start := 0
	if p[0] == '/' {
		start = 1
	}
	cur := ""
	for i := start; i < len(p); i++ {
		if p[i] == '/' {
			parts = append(parts, cur)
			cur = ""
			continue
		}
		cur += string(p[i])
	}
	parts = append(parts, cur)
	return parts
}

func sig(t RockRidgeEntryType) [2]byte {
	var s [2]byte
	copy(s[:], string(t))
	return s
}

// parseFileMode converts a POSIX st_mode value into an fs.FileMode.
func parseFileMode(mode uint32) fs.FileMode {
	var fileMode fs.FileMode

	switch mode & 0xF000 {
	case 0xC000:
		fileMode |= fs.ModeSocket
	case 0xA000:
		fileMode |= fs.ModeSymlink
	case 0x8000:
		// regular file
	case 0x6000:
		fileMode |= fs.ModeDevice
	case 0x2000:
		fileMode |= fs.ModeCharDevice
	case 0x4000:
		fileMode |= fs.ModeDir
	case 0x1000:
		fileMode |= fs.ModeNamedPipe
	}

	if mode&0x0100 != 0 {
		fileMode |= 0400
	}
	if mode&0x0080 != 0 {
		fileMode |= 0200
	}
	if mode&0x0040 != 0 {
		fileMode |= 0100
	}
	if mode&0x0020 != 0 {
		fileMode |= 0040
	}
	if mode&0x0010 != 0 {
		fileMode |= 0020
	}
	if mode&0x0008 != 0 {
		fileMode |= 0010
	}
	if mode&0x0004 != 0 {
		fileMode |= 0004
	}
	if mode&0x0002 != 0 {
		fileMode |= 0002
	}
	if mode&0x0001 != 0 {
		fileMode |= 0001
	}

	if mode&0x0800 != 0 {
		fileMode |= os.ModeSetuid
	}
	if mode&0x0400 != 0 {
		fileMode |= os.ModeSetgid
	}
	if mode&0x0200 != 0 {
		fileMode |= os.ModeSticky
	}

	return fileMode
}

// fileModeToRaw is the inverse of parseFileMode, used when marshaling a PX
// entry for a freshly-built image.
func fileModeToRaw(mode fs.FileMode) uint32 {
	var raw uint32
	switch {
	case mode&fs.ModeSocket != 0:
		raw |= 0xC000
	case mode&fs.ModeSymlink != 0:
		raw |= 0xA000
	case mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice != 0:
		raw |= 0x2000
	case mode&fs.ModeDevice != 0:
		raw |= 0x6000
	case mode&fs.ModeDir != 0:
		raw |= 0x4000
	case mode&fs.ModeNamedPipe != 0:
		raw |= 0x1000
	default:
		raw |= 0x8000
	}

	perm := mode.Perm()
	raw |= uint32(perm)
	if mode&os.ModeSetuid != 0 {
		raw |= 0x0800
	}
	if mode&os.ModeSetgid != 0 {
		raw |= 0x0400
	}
	if mode&os.ModeSticky != 0 {
		raw |= 0x0200
	}
	return raw
}
