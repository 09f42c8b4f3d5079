package option

import (
	"github.com/bgrewell/iso-forge/pkg/logging"
)

// ExtractionProgressCallback reports byte-level progress while extracting
// one or more files from an open image.
type ExtractionProgressCallback func(
	currentFilename string,
	bytesTransferred int64,
	totalBytes int64,
	currentFileNumber int,
	totalFileCount int,
)

// OpenOptions configures how an existing image is parsed and how lenient
// parsing is about tolerated quirks (see the per-component quirk tables).
type OpenOptions struct {
	ParseOnOpen      bool
	ReadOnly         bool
	PreloadDir       bool
	PreferJoliet     bool
	PreferEnhancedVD bool
	StripVersionInfo bool
	RockRidgeEnabled bool
	ElToritoEnabled  bool
	UDFEnabled       bool

	BootFileExtractLocation string

	// StrictBootValidation rejects instead of tolerates a non-conformant
	// El Torito validation entry (checksum or key bytes). A stray 0x00 slot
	// while scanning section entries is tolerated either way.
	StrictBootValidation bool

	ExtractionProgressCallback ExtractionProgressCallback
	Logger                     *logging.Logger
}

// OpenOption mutates an OpenOptions in place.
type OpenOption func(*OpenOptions)

// NewOpenOptions applies opts over the documented defaults: parse
// immediately, read-only, auto-detect Rock Ridge/El Torito presence
// during Parse rather than requiring the caller to declare them upfront.
// UDFEnabled is also set, but Open does not parse UDF structures.
func NewOpenOptions(opts ...OpenOption) *OpenOptions {
	o := &OpenOptions{
		ParseOnOpen:      true,
		ReadOnly:         true,
		RockRidgeEnabled: true,
		ElToritoEnabled:  true,
		UDFEnabled:       true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithExtractionProgress(callback ExtractionProgressCallback) OpenOption {
	return func(o *OpenOptions) { o.ExtractionProgressCallback = callback }
}

func WithBootFileExtractLocation(location string) OpenOption {
	return func(o *OpenOptions) { o.BootFileExtractLocation = location }
}

func WithLogger(logger *logging.Logger) OpenOption {
	return func(o *OpenOptions) { o.Logger = logger }
}

func WithParseOnOpen(parseOnOpen bool) OpenOption {
	return func(o *OpenOptions) { o.ParseOnOpen = parseOnOpen }
}

func WithReadOnly(readOnly bool) OpenOption {
	return func(o *OpenOptions) { o.ReadOnly = readOnly }
}

func WithPreloadDir(preloadDir bool) OpenOption {
	return func(o *OpenOptions) { o.PreloadDir = preloadDir }
}

func WithStripVersionInfo(stripVersionInfo bool) OpenOption {
	return func(o *OpenOptions) { o.StripVersionInfo = stripVersionInfo }
}

func WithPreferJoliet(preferJoliet bool) OpenOption {
	return func(o *OpenOptions) { o.PreferJoliet = preferJoliet }
}

func WithPreferEnhancedVD(preferEnhancedVD bool) OpenOption {
	return func(o *OpenOptions) { o.PreferEnhancedVD = preferEnhancedVD }
}

func WithRockRidgeEnabled(enabled bool) OpenOption {
	return func(o *OpenOptions) { o.RockRidgeEnabled = enabled }
}

func WithElToritoEnabled(enabled bool) OpenOption {
	return func(o *OpenOptions) { o.ElToritoEnabled = enabled }
}

func WithUDFEnabled(enabled bool) OpenOption {
	return func(o *OpenOptions) { o.UDFEnabled = enabled }
}

func WithStrictBootValidation(strict bool) OpenOption {
	return func(o *OpenOptions) { o.StrictBootValidation = strict }
}
