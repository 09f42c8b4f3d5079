// Package version exposes build-time identifiers stamped via -ldflags
// (e.g. -X github.com/bgrewell/iso-forge/pkg/version.version=1.2.3); all
// four vars default to "dev"/"unknown" for a plain `go build`.
package version

var (
	version  = "dev"
	revision = "unknown"
	branch   = "unknown"
	date     = "unknown"
)

// Version returns the stamped semantic version, or "dev" if unset.
func Version() string { return version }

// Revision returns the stamped VCS commit hash, or "unknown" if unset.
func Revision() string { return revision }

// Branch returns the stamped VCS branch, or "unknown" if unset.
func Branch() string { return branch }

// Date returns the stamped build timestamp, or "unknown" if unset.
func Date() string { return date }
