package option

import (
	"time"

	"github.com/bgrewell/iso-forge/pkg/clock"
	"github.com/bgrewell/iso-forge/pkg/logging"
)

// ISOType selects which on-disk filesystem family a new image targets.
type ISOType int

const (
	ISO_TYPE_ISO9660 ISOType = iota
	ISO_TYPE_UDF
)

// InterchangeLevel names the ISO 9660 interchange level of the primary
// (non-Joliet, non-Rock-Ridge) tree. CreateOptions records it; no code in
// this module checks names or directory depth against it.
type InterchangeLevel int

const (
	InterchangeLevel1 InterchangeLevel = iota + 1
	InterchangeLevel2
	InterchangeLevel3
)

// CreateOptions configures a new/remastered image. Zero value is usable:
// ISO 9660 only, interchange level 1, no Joliet/Rock Ridge/El Torito/UDF,
// 2048-byte Rock Ridge continuation blocks, system clock.
type CreateOptions struct {
	ISOType ISOType

	InterchangeLevel InterchangeLevel

	// EnableJoliet adds a Supplementary Volume Descriptor with a UCS-2 tree.
	EnableJoliet bool
	JolietLevel  int // 1, 2, or 3, as passed to WithJoliet; recorded only, no default is substituted.

	// EnableRockRidge adds SUSP/RRIP system use fields to the primary tree.
	EnableRockRidge bool
	// RRContinuationBlockSize is the Rock Ridge Continuation Area block size
	// (default 2048). The write path does not read it: Rock Ridge entries
	// are not split into CE-linked continuation blocks.
	RRContinuationBlockSize int
	// RRMovedDirName names the placeholder directory for relocated deep
	// directories (default "RR_MOVED"). No code reads it: directories deeper
	// than eight levels are not relocated automatically.
	RRMovedDirName string

	// EnableElTorito builds a boot catalog from the supplied boot entries.
	EnableElTorito bool

	// EnableUDF adds a UDF 2.60 bridge format alongside ISO 9660.
	EnableUDF bool

	// EnableIsohybrid patches an MBR (and optional GPT) into the system
	// area so the image boots from both optical and USB/BIOS media.
	EnableIsohybrid bool

	// StrictBootValidation rejects El Torito images whose validation entry
	// checksum or key bytes are non-conformant instead of tolerating and
	// logging them.
	StrictBootValidation bool

	// Clock stamps volume descriptor and directory record timestamps.
	// Defaults to clock.System when nil.
	Clock clock.Provider

	// Logger receives structured progress/quirk messages during planning
	// and writing. Defaults to a no-op logger when nil.
	Logger *logging.Logger

	// Preparer stamps the Data Preparer Identifier field of the primary
	// (and Joliet, if enabled) volume descriptor.
	Preparer string

	// RootDir, if set, seeds the new image by recursively adding the
	// contents of this host directory as the image's root directory.
	RootDir string
}

// CreateOption mutates a CreateOptions in place.
type CreateOption func(*CreateOptions)

// NewCreateOptions applies opts over the documented defaults.
func NewCreateOptions(opts ...CreateOption) *CreateOptions {
	o := &CreateOptions{
		ISOType:                 ISO_TYPE_ISO9660,
		InterchangeLevel:        InterchangeLevel1,
		RRContinuationBlockSize: 2048,
		RRMovedDirName:          "RR_MOVED",
		Clock:                   clock.System,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithISOType(isoType ISOType) CreateOption {
	return func(o *CreateOptions) { o.ISOType = isoType }
}

func WithInterchangeLevel(level InterchangeLevel) CreateOption {
	return func(o *CreateOptions) { o.InterchangeLevel = level }
}

func WithJoliet(level int) CreateOption {
	return func(o *CreateOptions) {
		o.EnableJoliet = true
		o.JolietLevel = level
	}
}

func WithRockRidge(continuationBlockSize int) CreateOption {
	return func(o *CreateOptions) {
		o.EnableRockRidge = true
		if continuationBlockSize > 0 {
			o.RRContinuationBlockSize = continuationBlockSize
		}
	}
}

func WithElTorito() CreateOption {
	return func(o *CreateOptions) { o.EnableElTorito = true }
}

func WithUDF() CreateOption {
	return func(o *CreateOptions) { o.EnableUDF = true }
}

func WithIsohybrid() CreateOption {
	return func(o *CreateOptions) { o.EnableIsohybrid = true }
}

func WithStrictBootValidation(strict bool) CreateOption {
	return func(o *CreateOptions) { o.StrictBootValidation = strict }
}

func WithClock(c clock.Provider) CreateOption {
	return func(o *CreateOptions) { o.Clock = c }
}

func WithFixedTime(t time.Time) CreateOption {
	return func(o *CreateOptions) { o.Clock = clock.Fixed(t) }
}

func WithCreateLogger(logger *logging.Logger) CreateOption {
	return func(o *CreateOptions) { o.Logger = logger }
}

func WithPreparer(preparer string) CreateOption {
	return func(o *CreateOptions) { o.Preparer = preparer }
}

func WithRootDir(path string) CreateOption {
	return func(o *CreateOptions) { o.RootDir = path }
}
