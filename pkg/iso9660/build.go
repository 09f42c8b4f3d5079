package iso9660

import (
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/bgrewell/iso-forge/pkg/filesystem"
	"github.com/bgrewell/iso-forge/pkg/inode"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/encoding"
	"github.com/bgrewell/iso-forge/pkg/iso9660/extensions"
)

// buildTree turns the flat filesystemEntries/pendingFiles model AddFile and
// AddDirectory populate into the directory.Node tree the planner walks.
// Directories only exist implicitly in that flat model - this is where they
// become real nodes, one per unique path prefix. When Rock Ridge is enabled,
// every record's SystemUse is populated here too, before the planner sizes
// directory extents against the marshaled record length.
func buildTree(iso *ISO9660) (*directory.Node, *inode.Table, error) {
	root := directory.NewTree()
	table := inode.NewTable()

	byPath := make(map[string]*filesystem.FileSystemEntry, len(iso.filesystemEntries))
	for _, entry := range iso.filesystemEntries {
		byPath[entry.FullPath] = entry
	}

	rrEnabled := iso.createOptions != nil && iso.createOptions.EnableRockRidge

	dirs := map[string]*directory.Node{"": root}

	var ensureDir func(path string) *directory.Node
	ensureDir = func(path string) *directory.Node {
		if n, ok := dirs[path]; ok {
			return n
		}
		parentPath, name := splitPath(path)
		parent := ensureDir(parentPath)
		dirEntry := byPath[path]
		record := &directory.DirectoryRecord{
			FileIdentifier:       name,
			FileFlags:            directory.FileFlags{Directory: true, Hidden: dirEntry != nil && dirEntry.Hidden},
			RecordingDateAndTime: time.Now(),
		}
		if rrEnabled {
			populateRockRidge(record, dirEntry, true)
		}
		n := parent.AddChild(name, record)
		dirs[path] = n
		return n
	}

	for _, entry := range iso.filesystemEntries {
		if entry.IsDir {
			ensureDir(entry.FullPath)
			continue
		}

		data, ok := iso.pendingFiles[entry.FullPath]
		if !ok {
			return nil, nil, fmt.Errorf("iso9660: no pending data for file %q", entry.FullPath)
		}

		parentPath, name := splitPath(entry.FullPath)
		parent := ensureDir(parentPath)

		record := &directory.DirectoryRecord{
			FileIdentifier:       identifierFor(name),
			FileFlags:            directory.FileFlags{Hidden: entry.Hidden},
			RecordingDateAndTime: entry.ModTime,
		}
		if rrEnabled {
			populateRockRidge(record, entry, false)
		}

		n := parent.AddChild(name, record)

		in := table.AddBytes(data)
		table.AddRef(in, inode.PlaneISO, n)
	}

	return root, table, nil
}

// populateRockRidge fills in record.RockRidge/SystemUse from entry's POSIX
// metadata (PX) and timestamps (TF); entry is nil for a directory inferred
// only from an intermediate path component, in which case default
// permissions are recorded instead. SP/RR/ER/CE entries aren't emitted here
// - those belong to the root "." record and the Continuation Area planner,
// neither of which this façade builds yet.
func populateRockRidge(record *directory.DirectoryRecord, entry *filesystem.FileSystemEntry, isDir bool) {
	mode := fs.FileMode(0o644)
	if isDir {
		mode = fs.ModeDir | 0o755
	}
	uid, gid := uint32(0), uint32(0)
	modTime := record.RecordingDateAndTime
	if entry != nil {
		if entry.Mode != 0 {
			mode = entry.Mode
		}
		if entry.UID != nil {
			uid = *entry.UID
		}
		if entry.GID != nil {
			gid = *entry.GID
		}
		if !entry.ModTime.IsZero() {
			modTime = entry.ModTime
		}
	}

	// PX only gets written once UID/GID/Permissions are all non-nil; default
	// ownership to 0 rather than omitting PX entirely.
	rr := &extensions.RockRidgeExtensions{
		Permissions:      &mode,
		UID:              &uid,
		GID:              &gid,
		ModificationTime: &modTime,
	}
	if entry != nil && entry.SymlinkTarget != "" {
		target := entry.SymlinkTarget
		rr.SymlinkTarget = &target
	}
	if entry != nil && entry.RelocatedName != "" {
		alt := entry.RelocatedName
		rr.AlternateName = &alt
		relocated := true
		rr.IsRelocated = &relocated
	}

	data, err := extensions.MarshalRockRidge(rr)
	if err != nil {
		// Only reachable if a TF timestamp fails to encode, which can't
		// happen for a valid time.Time; skip RR for this record rather than
		// fail the whole remaster.
		return
	}
	record.RockRidge = rr
	record.SystemUse = data
}

// buildJolietTree mirrors root into a second directory.Node tree using
// Joliet's UCS-2 naming rules (spec.md §3.2 invariant 8: no version suffix,
// <=64 UTF-16 code units) while sharing every file's inode - the planner
// recognizes the inode already has an assigned extent and reuses it instead
// of laying out a second copy of the data (spec.md §3.2 invariant 2).
func buildJolietTree(root *directory.Node, table *inode.Table) *directory.Node {
	jroot := directory.NewTree()
	jroot.Record.RecordingDateAndTime = root.Record.RecordingDateAndTime

	var walk func(src, dst *directory.Node)
	walk = func(src, dst *directory.Node) {
		for _, c := range src.Children {
			name := jolietName(c.Name)
			record := &directory.DirectoryRecord{
				FileIdentifier:       name,
				FileFlags:            c.Record.FileFlags,
				RecordingDateAndTime: c.Record.RecordingDateAndTime,
				Joliet:               true,
			}
			jn := dst.AddChild(name, record)
			if c.Record.IsDirectory() {
				walk(c, jn)
				continue
			}
			if in, ok := table.Get(c.InodeID); ok {
				table.AddRef(in, inode.PlaneJoliet, jn)
			}
		}
	}
	walk(root, jroot)
	return jroot
}

// jolietName truncates an ISO 9660 identifier to Joliet's 64 UTF-16 code
// unit limit; names this short in practice never need it, but a level-1
// 8.3 name widened by translation or a long Rock Ridge alternate name
// mirrored onto the Joliet plane could exceed it.
func jolietName(name string) string {
	units := encoding.EncodeUCS2BigEndian(name)
	const maxUnits = 64
	if len(units)/2 <= maxUnits {
		return name
	}
	truncated := units[:maxUnits*2]
	return encoding.DecodeUCS2BigEndian(truncated)
}

// splitPath splits a "/"-joined relative path into its parent directory path
// and final component. "" splits to ("", "").
func splitPath(path string) (parent, name string) {
	if path == "" {
		return "", ""
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

// identifierFor appends the ISO9660 version suffix ECMA-119 7.5.1 requires
// of every file identifier recorded outside Rock Ridge/Joliet name fields.
func identifierFor(name string) string {
	if strings.Contains(name, ";") {
		return name
	}
	return name + ";1"
}
