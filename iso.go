// Package iso is the root façade for opening, inspecting, and creating
// ISO 9660 (with Joliet, Rock Ridge, El Torito, and UDF bridge-format)
// images. It does no parsing or encoding itself — every operation
// delegates to pkg/iso9660, which owns the on-disk structures; this
// package only adapts that struct's method set to a stable interface
// and handles the os.File plumbing the underlying package leaves to
// its caller.
package iso

import (
	"fmt"
	"os"

	"github.com/bgrewell/iso-forge/pkg/filesystem"
	"github.com/bgrewell/iso-forge/pkg/iso9660"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
	"github.com/bgrewell/iso-forge/pkg/option"
)

// ISO is the set of operations available on an opened or newly created
// image, satisfied by *iso9660.ISO9660.
type ISO interface {
	GetVolumeID() string
	GetSystemID() string
	GetVolumeSize() uint32
	GetVolumeSetID() string
	GetPublisherID() string
	GetDataPreparerID() string
	GetApplicationID() string
	GetCopyrightID() string
	GetAbstractID() string
	GetBibliographicID() string

	HasJoliet() bool
	HasRockRidge() bool
	HasElTorito() bool

	RootDirectoryLocation() uint32
	ListBootEntries() ([]*filesystem.FileSystemEntry, error)
	ListFiles() ([]*filesystem.FileSystemEntry, error)
	ListDirectories() ([]*filesystem.FileSystemEntry, error)
	ReadFile(path string) ([]byte, error)
	AddFile(path string, data []byte) error
	RemoveFile(path string) error
	AddDirectory(sourcePath, targetPath string) error
	RemoveDirectory(path string) error

	AddJolietDirectory(path string) error
	RemoveJolietDirectory(path string) error

	AddHardLink(oldPath, newPath string) error
	RemoveHardLink(path string) error
	AddSymlink(isoPath, target string) error

	SetHidden(path string) error
	ClearHidden(path string) error
	SetRelocatedName(isoName, rrName string) error
	ModifyFileInPlace(path string, data []byte) error

	GetRecord(path string) (*directory.DirectoryRecord, error)
	ListChildren(path string) ([]*filesystem.FileSystemEntry, error)
	WalkTree(path string) ([]iso9660.WalkResult, error)
	OpenFileFromISO(path string) (*iso9660.FileHandle, error)
	FullPathFromDirRecord(record *directory.DirectoryRecord) (string, error)
	FileMode(path string) (os.FileMode, error)
	HasUDF() bool

	AddIsohybrid(mac, efi bool) error
	RemoveIsohybrid() error
	DuplicatePVD() error

	AddElTorito(spec iso9660.ElToritoSpec) error
	RemoveElTorito() error

	GetLayout() *info.ISOLayout

	Extract(path string) error
	Write(path string) error
	Close() error
}

// Open opens an existing image at location for reading.
func Open(location string, opts ...option.OpenOption) (ISO, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}

	img, err := iso9660.Open(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}

	return img, nil
}

// Create builds a new image in memory, named name, ready to be populated
// with AddFile/AddDirectory and written out with Write or Save.
func Create(name string, opts ...option.CreateOption) (ISO, error) {
	img, err := iso9660.Create(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO %q: %w", name, err)
	}
	return img, nil
}
