package iso9660

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/bgrewell/iso-forge/pkg/filesystem"
	"github.com/bgrewell/iso-forge/pkg/inode"
	"github.com/bgrewell/iso-forge/pkg/iso9660/boot"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/extensions"
)

// normalizePath strips the leading slash every façade path parameter is
// documented to accept, matching the convention AddFile/ReadFile already
// use for iso.filesystemEntries lookups.
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}

// entryAt returns the filesystem entry at path, or nil.
func (iso *ISO9660) entryAt(path string) *filesystem.FileSystemEntry {
	path = normalizePath(path)
	for _, entry := range iso.filesystemEntries {
		if entry.FullPath == path {
			return entry
		}
	}
	return nil
}

// RemoveDirectory removes a directory and every entry nested under it,
// mirroring rm_directory: the root directory itself cannot be removed.
func (iso *ISO9660) RemoveDirectory(path string) error {
	path = normalizePath(path)
	if path == "" {
		return fmt.Errorf("iso9660: cannot remove the root directory")
	}

	prefix := path + "/"
	found := false
	kept := iso.filesystemEntries[:0:0]
	for _, entry := range iso.filesystemEntries {
		if entry.FullPath == path || strings.HasPrefix(entry.FullPath, prefix) {
			found = true
			delete(iso.pendingFiles, entry.FullPath)
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return fmt.Errorf("iso9660: directory not found: %s", path)
	}
	iso.filesystemEntries = kept
	iso.isPacked = false
	return nil
}

// AddJolietDirectory exists for API parity with rm_joliet_directory /
// add_directory; buildJolietTree always mirrors the ISO 9660 tree, so
// today a Joliet-only directory hierarchy diverging from the primary tree
// isn't supported - this just ensures the shared directory exists.
func (iso *ISO9660) AddJolietDirectory(path string) error {
	return iso.addDirectoryEntry(path)
}

// RemoveJolietDirectory mirrors RemoveDirectory for the same reason
// AddJolietDirectory mirrors AddDirectory: Joliet doesn't have an
// independent hierarchy to remove from separately.
func (iso *ISO9660) RemoveJolietDirectory(path string) error {
	return iso.RemoveDirectory(path)
}

// addDirectoryEntry registers an empty directory entry at path without
// requiring any file beneath it, for callers that want an explicit empty
// directory rather than one implied by a file's parent path.
func (iso *ISO9660) addDirectoryEntry(path string) error {
	normalized := normalizePath(path)
	if iso.entryAt(normalized) != nil {
		return nil
	}
	record := &directory.DirectoryRecord{
		FileIdentifier:       pathBase(normalized),
		FileFlags:            directory.FileFlags{Directory: true},
		RecordingDateAndTime: time.Now(),
	}
	entry := filesystem.NewFileSystemEntry(pathBase(normalized), normalized, true, 0, 0, nil, nil, fs.ModeDir|0o755, time.Now(), time.Now(), record, nil)
	iso.filesystemEntries = append(iso.filesystemEntries, entry)
	iso.isPacked = false
	return nil
}

func pathBase(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// AddHardLink adds a second name, newPath, for the bytes already stored at
// oldPath. Both names are content-addressed to the same inode during Pack
// (pkg/inode's sha256 dedup means two names over identical bytes already
// collapse to one extent - this just makes the sharing an explicit,
// intentional link rather than an accidental content match).
func (iso *ISO9660) AddHardLink(oldPath, newPath string) error {
	oldPath = normalizePath(oldPath)
	data, ok := iso.pendingFiles[oldPath]
	if !ok {
		return fmt.Errorf("iso9660: hard link source not found: %s", oldPath)
	}
	return iso.AddFile(newPath, data)
}

// RemoveHardLink removes one name for a file without requiring the caller
// to know whether other names still reference the same content; AddFile's
// duplicate-path check means every name is independent bookkeeping until
// Pack dedups by content.
func (iso *ISO9660) RemoveHardLink(path string) error {
	return iso.RemoveFile(path)
}

// AddSymlink adds a Rock Ridge symbolic link record at isoPath pointing at
// target. The underlying file is zero-length - SL carries the target, not
// file content - so this only produces a real symlink on disc when
// CreateOptions.EnableRockRidge is set; without Rock Ridge there's nowhere
// in ISO 9660 to record a symlink target and the entry marshals as an
// ordinary empty file.
func (iso *ISO9660) AddSymlink(isoPath, target string) error {
	normalized := normalizePath(isoPath)
	if iso.entryAt(normalized) != nil {
		return fmt.Errorf("iso9660: path already exists: %s", isoPath)
	}

	if iso.pendingFiles == nil {
		iso.pendingFiles = make(map[string][]byte)
	}
	iso.pendingFiles[normalized] = nil

	name := pathBase(normalized)
	record := &directory.DirectoryRecord{
		RecordingDateAndTime: time.Now(),
		FileFlags:            directory.FileFlags{},
		FileIdentifier:       identifierFor(name),
	}
	entry := filesystem.NewFileSystemEntry(name, normalized, false, 0, 0, nil, nil, fs.ModeSymlink|0o777, time.Now(), time.Now(), record, nil)
	entry.SymlinkTarget = target
	iso.filesystemEntries = append(iso.filesystemEntries, entry)
	iso.isPacked = false
	return nil
}

// SetHidden sets the existence-bit (ECMA-119 9.5.3 bit 0) on the directory
// record at path so conformant readers don't list it. Recorded on the
// FileSystemEntry rather than its placeholder DirectoryRecord, since Pack's
// buildTree rebuilds that record from scratch from the entry.
func (iso *ISO9660) SetHidden(path string) error {
	entry := iso.entryAt(path)
	if entry == nil {
		return fmt.Errorf("iso9660: path not found: %s", path)
	}
	entry.Hidden = true
	entry.DirectoryRecord().FileFlags.Hidden = true
	iso.isPacked = false
	return nil
}

// ClearHidden reverses SetHidden.
func (iso *ISO9660) ClearHidden(path string) error {
	entry := iso.entryAt(path)
	if entry == nil {
		return fmt.Errorf("iso9660: path not found: %s", path)
	}
	entry.Hidden = false
	entry.DirectoryRecord().FileFlags.Hidden = false
	iso.isPacked = false
	return nil
}

// SetRelocatedName records the Rock Ridge alternate name rrName for the
// directory at isoName, and marks it relocated (RE) the way a directory
// moved under CreateOptions.RRMovedDirName to satisfy the eight-level
// interchange depth limit is marked on the relocated copy. This records
// the naming metadata only - the caller is responsible for having already
// placed the directory at its relocated path via AddDirectory. Recorded on
// the FileSystemEntry (populateRockRidge reads it back during Pack) rather
// than the placeholder DirectoryRecord, which Pack's buildTree discards and
// rebuilds from the entry.
func (iso *ISO9660) SetRelocatedName(isoName, rrName string) error {
	entry := iso.entryAt(isoName)
	if entry == nil {
		return fmt.Errorf("iso9660: directory not found: %s", isoName)
	}
	entry.RelocatedName = rrName

	record := entry.DirectoryRecord()
	if record.RockRidge == nil {
		record.RockRidge = &extensions.RockRidgeExtensions{}
	}
	alt := rrName
	record.RockRidge.AlternateName = &alt
	relocated := true
	record.RockRidge.IsRelocated = &relocated
	return nil
}

// ModifyFileInPlace overwrites the bytes stored at path with data without
// changing the number of sectors the file occupies - spec-mandated since
// changing the extent count would require re-running the planner and
// shifting every extent after it. Forbidden to grow past the existing
// sector count; shrinking within the same sector count is allowed.
func (iso *ISO9660) ModifyFileInPlace(path string, data []byte) error {
	normalized := normalizePath(path)
	existing, ok := iso.pendingFiles[normalized]
	if !ok {
		return fmt.Errorf("iso9660: file not found: %s", path)
	}
	if sectorsForBytes(uint32(len(data))) != sectorsForBytes(uint32(len(existing))) {
		return fmt.Errorf("iso9660: modify_file_in_place: %d bytes would change the extent count for %s (currently %d bytes)", len(data), path, len(existing))
	}
	iso.pendingFiles[normalized] = data
	if entry := iso.entryAt(normalized); entry != nil {
		entry.Size = uint32(len(data))
		entry.DirectoryRecord().DataLength = uint32(len(data))
	}
	iso.isPacked = false
	return nil
}

// GetRecord returns the directory record for the given path, whichever of
// the ISO 9660, Rock Ridge, or Joliet planes it's named on - the façade
// only tracks one DirectoryRecord per entry today, shared across planes,
// so the plane kwarg the enumerated operation describes is a no-op here.
// Once Pack has run, this returns the authoritative record buildTree
// produced (carrying real extents and Rock Ridge SystemUse bytes) rather
// than the pre-Pack placeholder AddFile/AddDirectory/AddSymlink attach to
// the FileSystemEntry, which Pack discards and rebuilds from scratch.
func (iso *ISO9660) GetRecord(path string) (*directory.DirectoryRecord, error) {
	if iso.packedRoot != nil {
		if n, err := findNodeByPath(iso.packedRoot, path); err == nil {
			return n.Record, nil
		}
	}
	entry := iso.entryAt(path)
	if entry == nil {
		return nil, fmt.Errorf("iso9660: path not found: %s", path)
	}
	return entry.DirectoryRecord(), nil
}

// ListChildren returns every entry whose immediate parent is path.
func (iso *ISO9660) ListChildren(path string) ([]*filesystem.FileSystemEntry, error) {
	path = normalizePath(path)
	var children []*filesystem.FileSystemEntry
	for _, entry := range iso.filesystemEntries {
		parent, _ := splitPath(entry.FullPath)
		if parent == path {
			children = append(children, entry)
		}
	}
	return children, nil
}

// WalkResult is one (dirname, dirs, files) tuple WalkTree yields per
// directory, matching the enumerated walk(path) generator.
type WalkResult struct {
	DirName     string
	DirEntries  []*filesystem.FileSystemEntry
	FileEntries []*filesystem.FileSystemEntry
}

// WalkTree descends from path (inclusive) producing one WalkResult per
// directory in the subtree, in path-depth order.
func (iso *ISO9660) WalkTree(path string) ([]WalkResult, error) {
	path = normalizePath(path)
	if path != "" && iso.entryAt(path) == nil {
		return nil, fmt.Errorf("iso9660: directory not found: %s", path)
	}

	dirs := map[string]bool{path: true}
	for _, entry := range iso.filesystemEntries {
		if entry.IsDir && (entry.FullPath == path || strings.HasPrefix(entry.FullPath, path+"/")) {
			dirs[entry.FullPath] = true
		}
	}

	var names []string
	for d := range dirs {
		names = append(names, d)
	}
	// Shallowest directories first, matching walk()'s top-down convention.
	// The root ("") is depth 0 and a top-level directory depth 1.
	depth := func(p string) int {
		if p == "" {
			return 0
		}
		return strings.Count(p, "/") + 1
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if depth(names[j]) < depth(names[i]) {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	results := make([]WalkResult, 0, len(names))
	for _, d := range names {
		children, err := iso.ListChildren(d)
		if err != nil {
			return nil, err
		}
		res := WalkResult{DirName: d}
		for _, c := range children {
			if c.IsDir {
				res.DirEntries = append(res.DirEntries, c)
			} else {
				res.FileEntries = append(res.FileEntries, c)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// FileHandle implements the read/readall/readinto/seek/tell/length surface
// open_file_from_iso describes, backed by an in-memory copy of the entry's
// bytes (the façade's pendingFiles/filesystemEntries model doesn't stream
// extents lazily pre-Pack, so there's no partial-read benefit to deferring
// the copy).
type FileHandle struct {
	*bytes.Reader
	length int64
}

func (h *FileHandle) Close() error { return nil }

// Length returns the handle's total byte length.
func (h *FileHandle) Length() int64 { return h.length }

// ReadAll reads every remaining byte from the handle's current position.
func (h *FileHandle) ReadAll() ([]byte, error) { return io.ReadAll(h) }

// OpenFileFromISO opens path for reading, returning a handle supporting
// Read, ReadAll, Seek, and Length.
func (iso *ISO9660) OpenFileFromISO(path string) (*FileHandle, error) {
	data, err := iso.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &FileHandle{Reader: bytes.NewReader(data), length: int64(len(data))}, nil
}

// FullPathFromDirRecord finds the entry whose DirectoryRecord is record and
// returns its path. Searches the packed tree first (GetRecord's usual
// source once Pack has run), then the pre-Pack placeholder records.
func (iso *ISO9660) FullPathFromDirRecord(record *directory.DirectoryRecord) (string, error) {
	if iso.packedRoot != nil {
		var found string
		_ = iso.packedRoot.Walk(func(n *directory.Node) error {
			if found == "" && n.Record == record {
				found = nodePath(n)
			}
			return nil
		})
		if found != "" {
			return found, nil
		}
	}
	for _, entry := range iso.filesystemEntries {
		if entry.DirectoryRecord() == record {
			return entry.FullPath, nil
		}
	}
	return "", fmt.Errorf("iso9660: no entry for the given directory record")
}

// FileMode returns the POSIX mode recorded for path (meaningful once Rock
// Ridge is enabled; otherwise the façade's own AddFile/AddDirectory default).
func (iso *ISO9660) FileMode(path string) (os.FileMode, error) {
	entry := iso.entryAt(path)
	if entry == nil {
		return 0, fmt.Errorf("iso9660: path not found: %s", path)
	}
	return entry.Mode, nil
}

// HasUDF reports whether this image carries a UDF 2.60 bridge format.
// Parsing an existing UDF bridge on Open isn't implemented yet (see
// DESIGN.md), so an opened image that actually has one still reports
// false here; a freshly created image reports whatever EnableUDF was set.
func (iso *ISO9660) HasUDF() bool {
	return iso.createOptions != nil && iso.createOptions.EnableUDF
}

// AddIsohybrid turns on the isohybrid MBR patch Pack applies to the system
// area. mac/efi are accepted for API parity with add_isohybrid(mac?, efi?)
// but aren't wired into pkg/isohybrid's BIOS-only Options yet (see
// DESIGN.md's El Torito/isohybrid section).
func (iso *ISO9660) AddIsohybrid(mac, efi bool) error {
	if iso.createOptions == nil {
		return fmt.Errorf("iso9660: isohybrid requires an image created with Create")
	}
	iso.createOptions.EnableIsohybrid = true
	iso.isPacked = false
	return nil
}

// RemoveIsohybrid turns the isohybrid MBR patch back off.
func (iso *ISO9660) RemoveIsohybrid() error {
	if iso.createOptions != nil {
		iso.createOptions.EnableIsohybrid = false
	}
	iso.isPacked = false
	return nil
}

// DuplicatePVD appends a second Primary Volume Descriptor identical to the
// first, sharing its root directory record; some UDF bridge consumers
// expect to find the PVD twice in the descriptor set.
func (iso *ISO9660) DuplicatePVD() error {
	if iso.volumeDescriptorSet.Primary == nil {
		return fmt.Errorf("iso9660: no primary volume descriptor to duplicate")
	}
	dup := *iso.volumeDescriptorSet.Primary
	iso.duplicatePVDs = append(iso.duplicatePVDs, &dup)
	iso.isPacked = false
	return nil
}

// ElToritoSpec describes one boot entry to add via AddElTorito. BootFile
// must already have been staged with AddFile - its bytes become the boot
// image, and its assigned extent is what the catalog entry points at.
type ElToritoSpec struct {
	BootFile      string
	BootCatalog   string
	Platform      boot.Platform
	Emulation     boot.Emulation
	LoadSegment   uint16
	Bootable      bool
	PartitionType boot.PartitionType
	// BootInfoTable requests the §4.6 boot info table patch at byte offset
	// 8 of the boot image.
	BootInfoTable bool
}

// AddElTorito queues a boot catalog entry to be built during Pack, once the
// boot file named by spec.BootFile has an assigned extent. The first call
// becomes the catalog's initial/default entry; subsequent calls each open
// a new platform section.
func (iso *ISO9660) AddElTorito(spec ElToritoSpec) error {
	if _, ok := iso.pendingFiles[normalizePath(spec.BootFile)]; !ok {
		return fmt.Errorf("iso9660: boot file must be added with AddFile before AddElTorito: %s", spec.BootFile)
	}
	iso.pendingBoot = append(iso.pendingBoot, spec)
	if iso.createOptions != nil {
		iso.createOptions.EnableElTorito = true
	}
	iso.isPacked = false
	return nil
}

// RemoveElTorito drops every queued boot entry and any previously built
// catalog, turning the image back into a non-bootable one.
func (iso *ISO9660) RemoveElTorito() error {
	iso.pendingBoot = nil
	iso.elTorito = nil
	iso.volumeDescriptorSet.Boot = nil
	if iso.createOptions != nil {
		iso.createOptions.EnableElTorito = false
	}
	iso.isPacked = false
	return nil
}

// buildBootCatalog locates every pendingBoot entry's planned extent in
// root, builds the in-memory *boot.ElTorito catalog, and patches each boot
// info table in place when requested. Returns nil if there are no pending
// boot entries.
func (iso *ISO9660) buildBootCatalog(root *directory.Node) (*boot.ElTorito, error) {
	if len(iso.pendingBoot) == 0 {
		return nil, nil
	}

	strict := iso.createOptions != nil && iso.createOptions.StrictBootValidation
	et := &boot.ElTorito{
		BootCatalog:      iso.pendingBoot[0].BootCatalog,
		Validation:       boot.ValidationEntry{Platform: iso.pendingBoot[0].Platform, Identifier: "ISO-FORGE"},
		StrictValidation: strict,
	}

	for i, spec := range iso.pendingBoot {
		node, err := findNodeByPath(root, spec.BootFile)
		if err != nil {
			return nil, fmt.Errorf("iso9660: el torito boot file: %w", err)
		}

		entry := boot.NewEntry(spec.Platform, spec.Emulation, spec.BootFile, spec.Bootable, spec.LoadSegment, spec.PartitionType)
		entry.SetExtent(node.Record.LocationOfExtent, node.Record.DataLength)

		if spec.BootInfoTable {
			if err := iso.patchBootInfoTable(node, root); err != nil {
				return nil, err
			}
		}

		if i == 0 {
			et.Initial = entry
			et.Initial.IsInitialDefault = true
		} else {
			et.Sections = append(et.Sections, &boot.SectionHeader{
				Platform: spec.Platform,
				Last:     i == len(iso.pendingBoot)-1,
				Entries:  []*boot.ElToritoEntry{entry},
			})
		}
		et.Entries = append(et.Entries, entry)
	}

	return et, nil
}

// patchBootInfoTable overwrites bytes [8:64) of the boot file named by
// node's payload with the §4.6 boot info table, recomputing the checksum
// over the rest of the file; it never changes the file's length, so the
// extent the planner already assigned stays valid.
func (iso *ISO9660) patchBootInfoTable(node *directory.Node, root *directory.Node) error {
	in, ok := iso.payloads.Get(node.InodeID)
	if !ok {
		return fmt.Errorf("iso9660: no payload for boot file %q", node.Name)
	}
	if in.Length < 64 {
		return fmt.Errorf("iso9660: boot file %q is too short for a boot info table", node.Name)
	}

	data := make([]byte, in.Length)
	if _, err := in.Source.ReadAt(data, 0); err != nil {
		return fmt.Errorf("iso9660: reading boot file for boot info table patch: %w", err)
	}

	table := boot.BootInfoTable{
		PVDLocation:   iso.volumeDescriptorSet.Primary.LBA,
		BootFileLBA:   in.ExtentLocation,
		BootFileBytes: uint32(in.Length),
	}
	table.Checksum = boot.ComputeBootInfoTableChecksum(data)
	copy(data[8:64], boot.MarshalBootInfoTable(table))

	in.Source = inode.FromBytes(data)
	return nil
}

// findNodeByPath walks root looking for the node whose slash-joined path
// from the root matches path.
func findNodeByPath(root *directory.Node, path string) (*directory.Node, error) {
	target := normalizePath(path)
	var found *directory.Node
	err := root.Walk(func(n *directory.Node) error {
		if found != nil {
			return nil
		}
		if nodePath(n) == target {
			found = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("no such path: %s", path)
	}
	return found, nil
}

// nodePath reconstructs n's slash-joined path from the root by walking its
// Parent chain.
func nodePath(n *directory.Node) string {
	var parts []string
	for p := n; p.Parent != nil; p = p.Parent {
		parts = append([]string{p.Name}, parts...)
	}
	return strings.Join(parts, "/")
}
