package iso9660

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/filesystem"
	"github.com/bgrewell/iso-forge/pkg/iso9660/boot"
	"github.com/bgrewell/iso-forge/pkg/inode"
	"github.com/bgrewell/iso-forge/pkg/iso9660/descriptor"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
	"github.com/bgrewell/iso-forge/pkg/iso9660/encoding"
	"github.com/bgrewell/iso-forge/pkg/iso9660/info"
	"github.com/bgrewell/iso-forge/pkg/iso9660/parser"
	"github.com/bgrewell/iso-forge/pkg/iso9660/pathtable"
	"github.com/bgrewell/iso-forge/pkg/iso9660/planner"
	"github.com/bgrewell/iso-forge/pkg/iso9660/systemarea"
	"github.com/bgrewell/iso-forge/pkg/isohybrid"
	"github.com/bgrewell/iso-forge/pkg/logging"
	"github.com/bgrewell/iso-forge/pkg/option"
	"github.com/bgrewell/iso-forge/pkg/udf"
	"github.com/bgrewell/iso-forge/pkg/version"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Open opens an ISO9660 filesystem from the specified reader.
func Open(isoReader io.ReaderAt, opts ...option.OpenOption) (*ISO9660, error) {

	// Set default open options
	emptyCallback := func(currentFilename string, bytesTransferred int64, totalBytes int64, currentFileNumber int, totalFileCount int) {
	}
	openOptions := &option.OpenOptions{
		ReadOnly:                   true,
		ParseOnOpen:                true,
		PreloadDir:                 true,
		StripVersionInfo:           true,
		RockRidgeEnabled:           true,
		ElToritoEnabled:            true,
		PreferJoliet:               false,
		BootFileExtractLocation:    "[BOOT]",
		ExtractionProgressCallback: emptyCallback,
		Logger:                     logging.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(openOptions)
	}

	// Read the System Area
	saBuf := [consts.ISO9660_SECTOR_SIZE * consts.ISO9660_SYSTEM_AREA_SECTORS]byte{}
	if _, err := isoReader.ReadAt(saBuf[:], 0); err != nil {
		return nil, err
	}
	sa := systemarea.SystemArea{
		Contents: saBuf,
	}

	// Create a parser
	p := parser.NewParser(isoReader, openOptions)

	// Read the boot record
	bootRecord, err := p.GetBootRecord()
	if err != nil {
		return nil, err
	}

	// Check for El-Torito boot record
	var et *boot.ElTorito
	if bootRecord != nil && boot.IsElTorito(bootRecord.BootSystemIdentifier) && openOptions.ElToritoEnabled {
		et, err = p.GetElTorito(bootRecord)
		if err != nil {
			return nil, err
		}
	}

	// Read the primary volume descriptor
	pvd, err := p.GetPrimaryVolumeDescriptor()
	if err != nil {
		return nil, err
	}

	// Read the supplementary volume descriptors
	svds, err := p.GetSupplementaryVolumeDescriptors()
	if err != nil {
		return nil, err
	}

	// Read any partition volume descriptors
	partitionvds, err := p.GetVolumePartitionDescriptors()
	if err != nil {
		return nil, err
	}

	// Mark the end of the volume descriptors
	term, err := p.GetVolumeDescriptorSetTerminator()
	if err != nil {
		return nil, err
	}

	// Handle walking the pvd directory records
	pvd.DirectoryRecords, err = p.WalkDirectoryRecords(pvd.RootDirectoryRecord)
	if err != nil {
		return nil, err
	}

	// Handle walking the svd directory records
	for _, svd := range svds {
		svd.DirectoryRecords, err = p.WalkDirectoryRecords(svd.RootDirectoryRecord)
		if err != nil {
			return nil, err
		}
	}

	// Handle processing volume descriptor
	var filesystemEntries []*filesystem.FileSystemEntry
	if openOptions.PreferJoliet && len(svds) > 0 {
		// Open the Joliet filesystem
		filesystemEntries, err = p.BuildFileSystemEntries(svds[0].RootDirectoryRecord, false)
	} else {
		filesystemEntries, err = p.BuildFileSystemEntries(pvd.RootDirectoryRecord, openOptions.RockRidgeEnabled)
	}

	// Handle the path tables
	tables, err := p.GetPathTables(pvd)
	if err != nil {
		return nil, err
	}
	for _, svd := range svds {
		svdTables, err := p.GetPathTables(svd)
		if err != nil {
			return nil, err
		}
		tables = append(tables, svdTables...)
	}

	volumeDescSet := &descriptor.VolumeDescriptorSet{
		Primary:       pvd,
		Supplementary: svds,
		Partition:     partitionvds,
		Boot:          bootRecord,
		Terminator:    term,
	}

	iso := &ISO9660{
		isoReader:           isoReader,
		openOptions:         openOptions, //TODO: Work on making composite options that limit users ability to create based on context but have a single set behind the scenes
		systemArea:          sa,
		volumeDescriptorSet: volumeDescSet,
		pathTables:          tables,
		filesystemEntries:   filesystemEntries,
		elTorito:            et,
		logger:              openOptions.Logger,
		isPacked:            true,
		pendingFiles:        make(map[string][]byte),
	}

	return iso, nil
}

func Create(name string, opts ...option.CreateOption) (*ISO9660, error) {
	// Set default create options
	createOptions := &option.CreateOptions{
		Preparer: fmt.Sprintf("iso-forge %s %s (%s) %s", version.Version(), version.Revision(), version.Branch(), version.Date()),
	}

	for _, opt := range opts {
		opt(createOptions)
	}

	// Create a root directory record
	rootDir := &directory.DirectoryRecord{
		FileIdentifier:                "\x00",
		LengthOfDirectoryRecord:       34, // Standard size for root directory
		ExtendedAttributeRecordLength: 0,
		LocationOfExtent:              18, // Usually starts at sector 18
		DataLength:                    consts.ISO9660_SECTOR_SIZE, // One sector for root directory
		RecordingDateAndTime:          time.Now(),
		FileFlags:                     directory.FileFlags{Directory: true},
		VolumeSequenceNumber:          1,
	}

	// Create system area (First 16 sectors reserved)
	sa := systemarea.SystemArea{}

	// Create primary volume descriptor
	pvd := &descriptor.PrimaryVolumeDescriptor{
		VolumeDescriptorHeader: descriptor.VolumeDescriptorHeader{
			VolumeDescriptorType:    descriptor.TYPE_PRIMARY_DESCRIPTOR,
			StandardIdentifier:      consts.ISO9660_STD_IDENTIFIER,
			VolumeDescriptorVersion: consts.ISO9660_VOLUME_DESC_VERSION,
		},
		PrimaryVolumeDescriptorBody: descriptor.PrimaryVolumeDescriptorBody{
			SystemIdentifier:              "",
			VolumeIdentifier:              name,
			VolumeSpaceSize:               19, // Initially small - will grow as files are added
			VolumeSetSize:                 1,
			VolumeSequenceNumber:          1,
			LogicalBlockSize:              consts.ISO9660_SECTOR_SIZE,
			RootDirectoryRecord:           rootDir,
			VolumeSetIdentifier:           "",
			PublisherIdentifier:           "",
			DataPreparerIdentifier:        createOptions.Preparer,
			ApplicationIdentifier:         "",
			VolumeCreationDateAndTime:     time.Now(),
			VolumeModificationDateAndTime: time.Now(),
			VolumeExpirationDateAndTime:   time.Time{}, // No expiration
			VolumeEffectiveDateAndTime:    time.Now(),
			FileStructureVersion:          1,
		},
	}

	// Create volume descriptor set terminator
	term := descriptor.NewVolumeDescriptorSetTerminator()

	// Initialize supplementary volume descriptors (for Joliet)
	var svds []*descriptor.SupplementaryVolumeDescriptor
	if createOptions.EnableJoliet {
		svd := &descriptor.SupplementaryVolumeDescriptor{
			VolumeDescriptorHeader: descriptor.VolumeDescriptorHeader{
				VolumeDescriptorType:    descriptor.TYPE_SUPPLEMENTARY_DESCRIPTOR,
				StandardIdentifier:      consts.ISO9660_STD_IDENTIFIER,
				VolumeDescriptorVersion: consts.ISO9660_VOLUME_DESC_VERSION,
			},
			SupplementaryVolumeDescriptorBody: descriptor.SupplementaryVolumeDescriptorBody{
				VolumeFlags:                   0,
				SystemIdentifier:              "",
				VolumeIdentifier:              name,
				VolumeSpaceSize:               [8]byte{19, 0, 0, 0, 0, 0, 0, 19}, // BothByteOrder
				RootDirectoryRecord:           rootDir,
				VolumeSetIdentifier:           "",
				PublisherIdentifier:           "",
				DataPreparerIdentifier:        createOptions.Preparer,
				ApplicationIdentifier:         "",
				VolumeCreationDateAndTime:     time.Now(),
				VolumeModificationDateAndTime: time.Now(),
				VolumeExpirationDateAndTime:   time.Time{}, // No expiration
				VolumeEffectiveDateAndTime:    time.Now(),
				FileStructureVersion:          1,
			},
		}
		// Set Joliet escape sequence for Level 3
		copy(svd.SupplementaryVolumeDescriptorBody.EscapeSequences[:], []byte(consts.JOLIET_LEVEL_3_ESCAPE))
		svds = append(svds, svd)
	}

	// Create volume descriptor set
	volumeDescSet := &descriptor.VolumeDescriptorSet{
		Primary:       pvd,
		Supplementary: svds,
		Partition:     nil, // Not commonly used in basic ISO9660
		Boot:          nil, // Boot record would go here for El Torito
		Terminator:    term,
	}

	// Create empty filesystem entries (just root directory for now)
	filesystemEntries := []*filesystem.FileSystemEntry{}

	// Build ISO structure
	iso := &ISO9660{
		isoReader:           nil, // No reader for created ISOs
		createOptions:       createOptions,
		systemArea:          sa,
		volumeDescriptorSet: volumeDescSet,
		pathTables:          nil, // Will be generated during packing
		filesystemEntries:   filesystemEntries,
		elTorito:            nil, // No boot record initially
		logger:              createOptions.Logger,
		isPacked:            false, // Not packed yet
		pendingFiles:        make(map[string][]byte),
	}

	// Add files from root directory if specified
	if createOptions.RootDir != "" {
		err := iso.AddDirectory(createOptions.RootDir, "")
		if err != nil {
			return nil, fmt.Errorf("failed to add root directory: %w", err)
		}
	}

	return iso, nil
}

// ISO9660 represents an ISO9660 filesystem.
type ISO9660 struct {
	// ISO Reader
	isoReader io.ReaderAt
	// Open Options
	openOptions *option.OpenOptions
	// Create Options
	createOptions *option.CreateOptions
	// System Area
	systemArea systemarea.SystemArea
	// Volume Descriptor Set
	volumeDescriptorSet *descriptor.VolumeDescriptorSet
	// Path Tables
	pathTables []*pathtable.PathTable
	// ElTorito Boot Record
	elTorito *boot.ElTorito
	// FileSystemEntries
	filesystemEntries []*filesystem.FileSystemEntry
	// Logger
	logger *logging.Logger
	// isPacked represents if the ISO9660 filesystem is packed and ready to write to disk
	isPacked bool
	// pendingFiles stores data for newly added files that haven't been written to disk yet
	pendingFiles map[string][]byte
	// payloads is the content-addressed table backing every file extent
	// Pack assigns; built fresh each Pack from filesystemEntries/pendingFiles.
	payloads *inode.Table
	// plannedObjects holds the directory/file extents the planner assigned
	// during the most recent Pack, merged into GetObjects' write list.
	plannedObjects []info.ImageObject
	// pendingBoot holds boot entries queued by AddElTorito, built into
	// elTorito during the next Pack once every boot file has an extent.
	pendingBoot []ElToritoSpec
	// duplicatePVDs holds extra Primary Volume Descriptor copies queued by
	// DuplicatePVD.
	duplicatePVDs []*descriptor.PrimaryVolumeDescriptor
	// packedRoot is the directory tree buildTree/the planner produced during
	// the most recent Pack - the authoritative source for GetRecord/
	// ListChildren/FullPathFromDirRecord once Pack has run, since its
	// records (unlike filesystemEntries' pre-Pack placeholders) carry real
	// extents and Rock Ridge SystemUse bytes.
	packedRoot *directory.Node
}

// GetVolumeID returns the volume identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetVolumeID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].VolumeIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.VolumeIdentifier()
}

// GetSystemID returns the system identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetSystemID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].SystemIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.SystemIdentifier()
}

// GetVolumeSize returns the size of the ISO9660 filesystem.
func (iso *ISO9660) GetVolumeSize() uint32 {
	return iso.volumeDescriptorSet.Primary.VolumeSpaceSize
}

// GetVolumeSetID returns the volume set identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetVolumeSetID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].VolumeSetIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.VolumeSetIdentifier()
}

// GetPublisherID returns the publisher identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetPublisherID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].PublisherIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.PublisherIdentifier()
}

// GetDataPreparerID returns the data preparer identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetDataPreparerID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].DataPreparerIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.DataPreparerIdentifier()
}

// GetApplicationID returns the application identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetApplicationID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].ApplicationIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.ApplicationIdentifier()
}

// GetCopyrightID returns the copyright identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetCopyrightID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].CopyrightFileIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.CopyrightFileIdentifier()
}

// GetAbstractID returns the abstract identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetAbstractID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].AbstractFileIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.AbstractFileIdentifier()
}

// GetBibliographicID returns the bibliographic identifier of the ISO9660 filesystem.
func (iso *ISO9660) GetBibliographicID() string {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].BibliographicFileIdentifier()
	}
	return iso.volumeDescriptorSet.Primary.BibliographicFileIdentifier()
}

// GetCreationDateTime returns the creation date and time of the ISO9660 filesystem.
func (iso *ISO9660) GetCreationDateTime() time.Time {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].VolumeCreationDateTime()
	}
	return iso.volumeDescriptorSet.Primary.VolumeCreationDateTime()
}

// GetModificationDateTime returns the modification date and time of the ISO9660 filesystem.
func (iso *ISO9660) GetModificationDateTime() time.Time {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].VolumeModificationDateTime()
	}
	return iso.volumeDescriptorSet.Primary.VolumeModificationDateTime()
}

// GetExpirationDateTime returns the expiration date and time of the ISO9660 filesystem.
func (iso *ISO9660) GetExpirationDateTime() time.Time {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].VolumeExpirationDateTime()
	}
	return iso.volumeDescriptorSet.Primary.VolumeExpirationDateTime()
}

// GetEffectiveDateTime returns the effective date and time of the ISO9660 filesystem.
func (iso *ISO9660) GetEffectiveDateTime() time.Time {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].VolumeEffectiveDateTime()
	}
	return iso.volumeDescriptorSet.Primary.VolumeEffectiveDateTime()
}

// HasJoliet returns true if the ISO9660 filesystem has Joliet extensions.
func (iso *ISO9660) HasJoliet() bool {
	for _, svd := range iso.volumeDescriptorSet.Supplementary {
		if svd.HasJoliet() {
			return true
		}
	}
	return false
}

// HasRockRidge returns true if the ISO9660 filesystem has Rock Ridge extensions.
func (iso *ISO9660) HasRockRidge() bool {
	return iso.volumeDescriptorSet.Primary.HasRockRidge()
}

// HasElTorito returns true if the ISO9660 filesystem has El Torito boot extensions.
func (iso *ISO9660) HasElTorito() bool {
	return iso.elTorito != nil
}

// RootDirectoryLocation returns the location of the root directory in the ISO9660 filesystem.
func (iso *ISO9660) RootDirectoryLocation() uint32 {
	if iso.openOptions.PreferJoliet && iso.volumeDescriptorSet.Supplementary != nil {
		return iso.volumeDescriptorSet.Supplementary[0].RootDirectoryRecord.LocationOfExtent
	}
	return iso.volumeDescriptorSet.Primary.RootDirectoryRecord.LocationOfExtent
}

// ListBootEntries returns a list of all boot entries in the ISO9660 filesystem.
func (iso *ISO9660) ListBootEntries() ([]*filesystem.FileSystemEntry, error) {
	return iso.elTorito.BuildBootImageEntries()
}

// ListFiles returns a list of all files in the ISO9660 filesystem.
func (iso *ISO9660) ListFiles() ([]*filesystem.FileSystemEntry, error) {
	files := make([]*filesystem.FileSystemEntry, 0)
	for _, entry := range iso.filesystemEntries {
		if !entry.IsDir {
			files = append(files, entry)
		}
	}

	return files, nil
}

// ListDirectories returns a list of all directories in the ISO9660 filesystem.
func (iso *ISO9660) ListDirectories() ([]*filesystem.FileSystemEntry, error) {
	dirs := make([]*filesystem.FileSystemEntry, 0)
	for _, entry := range iso.filesystemEntries {
		if entry.IsDir {
			dirs = append(dirs, entry)
		}
	}

	return dirs, nil
}

func (iso *ISO9660) ReadFile(path string) ([]byte, error) {
	// Normalize the path by removing leading slash
	normalizedPath := strings.TrimPrefix(path, "/")
	
	// Check if it's a pending file first
	if iso.pendingFiles != nil {
		if data, exists := iso.pendingFiles[normalizedPath]; exists {
			return data, nil
		}
	}
	
	// Find the file in our filesystem entries
	for _, entry := range iso.filesystemEntries {
		if entry.FullPath == normalizedPath && !entry.IsDir {
			return entry.GetBytes()
		}
	}
	
	return nil, fmt.Errorf("file not found: %s", path)
}

func (iso *ISO9660) AddFile(path string, data []byte) error {
	// Normalize the path by removing leading slash
	normalizedPath := strings.TrimPrefix(path, "/")
	
	// Check if file already exists
	for _, entry := range iso.filesystemEntries {
		if entry.FullPath == normalizedPath {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	
	// Initialize pendingFiles map if it doesn't exist
	if iso.pendingFiles == nil {
		iso.pendingFiles = make(map[string][]byte)
	}
	
	// Store the file data
	iso.pendingFiles[normalizedPath] = data
	
	// Create a new file system entry
	fileName := filepath.Base(normalizedPath)
	
	// Create directory record for the new file
	record := &directory.DirectoryRecord{
		DataLength:              uint32(len(data)),
		RecordingDateAndTime:    time.Now(),
		FileFlags:               directory.FileFlags{}, // Regular file
		FileIdentifier:          fileName,
		LocationOfExtent:        0, // Will be set during packing/save
		ExtendedAttributeRecordLength: 0,
	}
	
	// Create filesystem entry
	entry := filesystem.NewFileSystemEntry(
		fileName,
		normalizedPath,
		false, // not a directory
		uint32(len(data)),
		0, // location will be set during packing
		nil, // uid
		nil, // gid
		0644, // default file mode
		time.Now(), // create time
		time.Now(), // mod time
		record,
		nil, // reader will be set during save
	)
	
	// Add it to the filesystem entries
	iso.filesystemEntries = append(iso.filesystemEntries, entry)
	
	// Mark as unpacked since we've added a new file
	iso.isPacked = false
	
	return nil
}

func (iso *ISO9660) RemoveFile(path string) error {
	// Normalize the path by removing leading slash
	normalizedPath := strings.TrimPrefix(path, "/")
	
	// Remove from pending files if it exists there
	if iso.pendingFiles != nil {
		if _, exists := iso.pendingFiles[normalizedPath]; exists {
			delete(iso.pendingFiles, normalizedPath)
		}
	}
	
	// Find and remove the file from our filesystem entries
	for i, entry := range iso.filesystemEntries {
		if entry.FullPath == normalizedPath && !entry.IsDir {
			// Remove the entry from the slice
			iso.filesystemEntries = append(iso.filesystemEntries[:i], iso.filesystemEntries[i+1:]...)
			// Mark as unpacked since we've modified the filesystem
			iso.isPacked = false
			return nil
		}
	}
	
	return fmt.Errorf("file not found: %s", path)
}

// AddDirectory recursively adds all files from a directory to the ISO
func (iso *ISO9660) AddDirectory(sourcePath, targetPath string) error {
	// Normalize paths
	sourcePath = filepath.Clean(sourcePath)
	targetPath = strings.TrimPrefix(filepath.Clean(targetPath), "/")
	
	// Check if source directory exists
	sourceInfo, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("source directory does not exist: %s", sourcePath)
	}
	
	if !sourceInfo.IsDir() {
		return fmt.Errorf("source path is not a directory: %s", sourcePath)
	}
	
	// Walk the directory tree
	return filepath.Walk(sourcePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		
		// Calculate relative path from the source directory
		relPath, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		
		// Skip the root directory itself
		if relPath == "." {
			return nil
		}
		
		// Build the target path in the ISO
		isoPath := filepath.Join(targetPath, relPath)
		isoPath = filepath.ToSlash(isoPath) // Convert to forward slashes for ISO paths
		
		if info.IsDir() {
			// For directories, we could create them explicitly, but ISO9660 
			// typically creates them implicitly when files are added
			return nil
		} else {
			// Read the file content and add it to the ISO
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read file %s: %w", path, err)
			}
			
			return iso.AddFile(isoPath, data)
		}
	})
}

// CreateDirectories creates all directories from the ISO in the specified path.
func (iso *ISO9660) CreateDirectories(path string) error {
	// Ensure output directory exists
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", path, err)
	}

	// Iterate over directory FileSystemEntries and create directories
	dirs, err := iso.ListDirectories()
	if err != nil {
		return fmt.Errorf("failed to list directories: %w", err)
	}
	for _, entry := range dirs {
		dirPath := filepath.Join(path, entry.FullPath)
		if err := os.MkdirAll(dirPath, entry.Mode); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// Extract extracts all files and directories from the ISO to the specified path.
func (iso *ISO9660) Extract(path string) error {
	// Create all directories first
	if err := iso.CreateDirectories(path); err != nil {
		return err
	}

	// Extract El Torito boot images if enabled
	if iso.elTorito != nil && iso.openOptions.ElToritoEnabled {
		err := iso.elTorito.ExtractBootImages(iso.isoReader, filepath.Join(path, iso.openOptions.BootFileExtractLocation))
		if err != nil {
			return fmt.Errorf("failed to extract El Torito boot images: %w", err)
		}
	}

	// Get list of files to extract
	files, err := iso.ListFiles()
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	totalFiles := len(files)

	// Extract files
	for i, entry := range files {
		outputPath := filepath.Join(path, entry.FullPath)

		// Ensure parent directories exist
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return fmt.Errorf("failed to create parent directories for %s: %w", outputPath, err)
		}

		// if the option to strip version info is enabled, enhanced and rr are not enabled then strip the version info
		if iso.openOptions.StripVersionInfo && !iso.openOptions.RockRidgeEnabled && !iso.openOptions.PreferJoliet {
			outputPath = strings.TrimSuffix(outputPath, ";1")
		}

		// Open output file for writing
		outFile, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create file %s: %w", outputPath, err)
		}
		defer outFile.Close()

		// Stream the file from the ISO
		startOffset := int64(entry.Location) * int64(consts.ISO9660_SECTOR_SIZE)
		size := int64(entry.Size)
		bufferSize := 4096 // 4KB buffer
		buffer := make([]byte, bufferSize)

		var bytesTransferred int64
		for bytesTransferred < size {
			// Read chunk from ISO
			bytesToRead := bufferSize
			if remaining := size - bytesTransferred; remaining < int64(bufferSize) {
				bytesToRead = int(remaining)
			}

			n, err := entry.ReadAt(buffer[:bytesToRead], startOffset+bytesTransferred)
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read file %s from ISO: %w", entry.FullPath, err)
			}

			if n == 0 {
				break // Reached EOF
			}

			// Write chunk to file
			if _, err := outFile.Write(buffer[:n]); err != nil {
				return fmt.Errorf("failed to write to file %s: %w", outputPath, err)
			}

			// Update bytes transferred
			bytesTransferred += int64(n)

			// Invoke progress callback
			if iso.openOptions.ExtractionProgressCallback != nil {
				iso.openOptions.ExtractionProgressCallback(outputPath, bytesTransferred, size, i+1, totalFiles)
			}
		}

		// Set correct file permissions
		if err := os.Chmod(outputPath, entry.Mode); err != nil {
			return fmt.Errorf("failed to set permissions on %s: %w", outputPath, err)
		}

		// Set timestamps
		if !entry.ModTime.IsZero() {
			if err := os.Chtimes(outputPath, entry.ModTime, entry.ModTime); err != nil {
				return fmt.Errorf("failed to set timestamps on %s: %w", outputPath, err)
			}
		}
	}

	return nil
}

// SetLogger sets the logger for the ISO9660 filesystem.
func (iso *ISO9660) SetLogger(logger *logging.Logger) {
	iso.logger = logger
}

// GetLogger returns the logger for the ISO9660 filesystem.
func (iso *ISO9660) GetLogger() *logging.Logger {
	return iso.logger
}

// GetLayout returns the layout information for the ISO9660 filesystem.
func (iso *ISO9660) GetLayout() *info.ISOLayout {
	objects := iso.GetObjects()

	return &info.ISOLayout{
		Objects: objects,
	}
}

func (iso *ISO9660) GetObjects() []info.ImageObject {
	var objects []info.ImageObject

	for _, objs := range []([]info.ImageObject){
		iso.systemArea.GetObjects(),
		iso.volumeDescriptorSet.Primary.GetObjects(),
		iso.volumeDescriptorSet.Terminator.GetObjects(),
	} {
		objects = append(objects, objs...)
	}

	if iso.volumeDescriptorSet.Boot != nil {
		objects = append(objects, iso.volumeDescriptorSet.Boot.GetObjects()...)
	}

	if iso.volumeDescriptorSet.Supplementary != nil {
		for _, svd := range iso.volumeDescriptorSet.Supplementary {
			objects = append(objects, svd.GetObjects()...)
		}
	}

	if iso.volumeDescriptorSet.Partition != nil {
		for _, pvd := range iso.volumeDescriptorSet.Partition {
			objects = append(objects, pvd.GetObjects()...)
		}
	}

	for _, dup := range iso.duplicatePVDs {
		objects = append(objects, dup.GetObjects()...)
	}

	if iso.pathTables != nil {
		for _, pt := range iso.pathTables {
			objects = append(objects, pt.GetObjects()...)
		}
	}

	if iso.elTorito != nil {
		objects = append(objects, iso.elTorito.GetObjects()...)
	}

	objects = append(objects, iso.plannedObjects...)

	return objects
}

// Pack prepares the ISO for writing by calculating file locations and preparing data structures
// Pack lays out every directory and file the façade's been told about:
// it assigns each volume descriptor its sector, builds the in-memory
// directory tree from filesystemEntries/pendingFiles, runs the planner to
// assign directory/file extents and build the path tables, and updates the
// primary (and, if enabled, Joliet) volume descriptors to match.
func (iso *ISO9660) Pack() error {
	if iso.isPacked {
		return nil
	}

	lba := uint32(consts.ISO9660_SYSTEM_AREA_SECTORS)
	iso.volumeDescriptorSet.Primary.LBA = lba
	lba++

	for _, svd := range iso.volumeDescriptorSet.Supplementary {
		svd.LBA = lba
		lba++
	}

	for _, dup := range iso.duplicatePVDs {
		dup.LBA = lba
		lba++
	}

	if len(iso.pendingBoot) > 0 && iso.volumeDescriptorSet.Boot == nil {
		iso.volumeDescriptorSet.Boot = &descriptor.BootRecordDescriptor{
			VolumeDescriptorHeader: descriptor.VolumeDescriptorHeader{
				VolumeDescriptorType:    descriptor.TYPE_BOOT_RECORD,
				StandardIdentifier:      consts.ISO9660_STD_IDENTIFIER,
				VolumeDescriptorVersion: consts.ISO9660_VOLUME_DESC_VERSION,
			},
			BootRecordBody: descriptor.BootRecordBody{
				BootSystemIdentifier: consts.EL_TORITO_BOOT_SYSTEM_ID,
				BootIdentifier:       iso.pendingBoot[0].BootCatalog,
			},
		}
	}

	if iso.volumeDescriptorSet.Boot != nil {
		iso.volumeDescriptorSet.Boot.LBA = lba
		lba++
	}

	iso.volumeDescriptorSet.Terminator.LBA = lba
	lba++

	root, table, err := buildTree(iso)
	if err != nil {
		return fmt.Errorf("failed to build directory tree: %w", err)
	}
	iso.payloads = table
	iso.packedRoot = root

	result, err := planner.Plan(root, lba, func(n *directory.Node) (*inode.Inode, error) {
		in, ok := table.Get(n.InodeID)
		if !ok {
			return nil, fmt.Errorf("no inode for %q", n.Name)
		}
		return in, nil
	})
	if err != nil {
		return fmt.Errorf("failed to plan layout: %w", err)
	}

	// Path tables follow the directory/file extents the planner just laid
	// out (ECMA-119 doesn't mandate a position, only that PVD's location
	// fields point at wherever they end up).
	freeLBA := result.NextFreeLBA
	for _, pt := range []*pathtable.PathTable{result.PathTableL, result.PathTableM} {
		data, err := pt.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal path table: %w", err)
		}
		pt.ObjectLocation = int64(freeLBA)
		pt.ObjectSize = uint32(len(data))
		freeLBA += sectorsForBytes(uint32(len(data)))
	}

	iso.volumeDescriptorSet.Primary.RootDirectoryRecord = root.Record
	iso.volumeDescriptorSet.Primary.VolumeSpaceSize = freeLBA
	iso.volumeDescriptorSet.Primary.PathTableSize = result.PathTableL.ObjectSize
	iso.volumeDescriptorSet.Primary.LocationOfTypeLPathTable = uint32(result.PathTableL.ObjectLocation)
	iso.volumeDescriptorSet.Primary.LocationOfTypeMPathTable = uint32(result.PathTableM.ObjectLocation)

	iso.pathTables = []*pathtable.PathTable{result.PathTableL, result.PathTableM}
	iso.plannedObjects = result.Objects

	if iso.createOptions != nil && iso.createOptions.EnableJoliet && len(iso.volumeDescriptorSet.Supplementary) > 0 {
		jroot := buildJolietTree(root, table)

		jresult, err := planner.PlanOverlay(jroot, freeLBA, func(n *directory.Node) (*inode.Inode, error) {
			in, ok := table.Get(n.InodeID)
			if !ok {
				return nil, fmt.Errorf("no inode for joliet name %q", n.Name)
			}
			return in, nil
		})
		if err != nil {
			return fmt.Errorf("failed to plan joliet layout: %w", err)
		}
		iso.plannedObjects = append(iso.plannedObjects, jresult.Objects...)

		freeLBA = jresult.NextFreeLBA
		for _, pt := range []*pathtable.PathTable{jresult.PathTableL, jresult.PathTableM} {
			data, err := pt.Marshal()
			if err != nil {
				return fmt.Errorf("failed to marshal joliet path table: %w", err)
			}
			pt.ObjectLocation = int64(freeLBA)
			pt.ObjectSize = uint32(len(data))
			freeLBA += sectorsForBytes(uint32(len(data)))
		}
		iso.pathTables = append(iso.pathTables, jresult.PathTableL, jresult.PathTableM)

		for _, svd := range iso.volumeDescriptorSet.Supplementary {
			svd.RootDirectoryRecord = jroot.Record
			svd.PathTableSize = jresult.PathTableL.ObjectSize
			svd.LocationOfTypeLPathTable = uint32(jresult.PathTableL.ObjectLocation)
			svd.LocationOfTypeMPathTable = uint32(jresult.PathTableM.ObjectLocation)
		}

		iso.volumeDescriptorSet.Primary.VolumeSpaceSize = freeLBA
	}

	spaceSize := encoding.MarshalBothByteOrders32(freeLBA)
	for _, svd := range iso.volumeDescriptorSet.Supplementary {
		svd.VolumeSpaceSize = spaceSize
	}

	if iso.createOptions != nil && iso.createOptions.EnableUDF {
		udfResult, err := udf.Build(root, freeLBA, iso.volumeDescriptorSet.Primary.VolumeIdentifier(), iso.createOptions.Clock)
		if err != nil {
			return fmt.Errorf("failed to build UDF bridge: %w", err)
		}
		iso.plannedObjects = append(iso.plannedObjects, udfResult.Objects...)
		freeLBA = udfResult.NextFreeLBA
		iso.volumeDescriptorSet.Primary.VolumeSpaceSize = freeLBA
		spaceSize = encoding.MarshalBothByteOrders32(freeLBA)
		for _, svd := range iso.volumeDescriptorSet.Supplementary {
			svd.VolumeSpaceSize = spaceSize
		}
	}

	if len(iso.pendingBoot) > 0 {
		et, err := iso.buildBootCatalog(root)
		if err != nil {
			return fmt.Errorf("failed to build el torito boot catalog: %w", err)
		}
		catalogLBA := freeLBA
		et.ObjectLocation = int64(catalogLBA) * consts.ISO9660_SECTOR_SIZE
		et.ObjectSize = consts.ISO9660_SECTOR_SIZE
		freeLBA++
		iso.elTorito = et

		iso.volumeDescriptorSet.Primary.VolumeSpaceSize = freeLBA
		spaceSize = encoding.MarshalBothByteOrders32(freeLBA)
		for _, svd := range iso.volumeDescriptorSet.Supplementary {
			svd.VolumeSpaceSize = spaceSize
		}

		var catalogLBABytes [4]byte
		binary.LittleEndian.PutUint32(catalogLBABytes[:], catalogLBA)
		copy(iso.volumeDescriptorSet.Boot.BootSystemUse[:4], catalogLBABytes[:])
	}

	if iso.createOptions != nil && iso.createOptions.EnableIsohybrid {
		if err := iso.patchIsohybrid(freeLBA); err != nil {
			return fmt.Errorf("failed to patch isohybrid MBR: %w", err)
		}
	}

	// Duplicate PVDs mirror the final primary descriptor, each keeping its
	// own sector.
	for _, dup := range iso.duplicatePVDs {
		dupLBA := dup.LBA
		*dup = *iso.volumeDescriptorSet.Primary
		dup.LBA = dupLBA
	}

	iso.isPacked = true
	return nil
}

// patchIsohybrid builds the isohybrid MBR (BIOS-only; this façade doesn't
// yet carry an El Torito EFI boot image to size a GPT partition against)
// covering an image of imageSectors 2048-byte sectors and writes it into the
// system area, which Save already writes at offset 0 unconditionally.
func (iso *ISO9660) patchIsohybrid(imageSectors uint32) error {
	img, err := isohybrid.Build(imageSectors, isohybrid.Options{})
	if err != nil {
		return err
	}
	data, err := img.Marshal()
	if err != nil {
		return err
	}
	if len(data) > len(iso.systemArea.Contents) {
		return fmt.Errorf("isohybrid image (%d bytes) exceeds the %d-byte system area", len(data), len(iso.systemArea.Contents))
	}
	copy(iso.systemArea.Contents[:], data)
	return nil
}

// sectorsForBytes rounds a byte length up to whole 2048-byte sectors.
func sectorsForBytes(length uint32) uint32 {
	if length == 0 {
		return 1
	}
	return (length + consts.ISO9660_SECTOR_SIZE - 1) / consts.ISO9660_SECTOR_SIZE
}

func (iso *ISO9660) Save(writer io.WriterAt) error {
	// Ensure the ISO is packed and all objects have been assigned locations
	if !iso.isPacked {
		err := iso.Pack()
		if err != nil {
			return fmt.Errorf("failed to pack ISO: %w", err)
		}
	}

	// Get all objects
	objects := iso.GetObjects()

	// Sort objects by offset before writing
	slices.SortFunc(objects, func(a, b info.ImageObject) int {
		return int(a.Offset() - b.Offset())
	})

	// Write each object at its assigned offset
	for _, obj := range objects {
		// Get raw data for the object
		data, err := obj.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal object %s: %w", obj.Name(), err)
		}

		// Write data at the correct offset
		_, err = writer.WriteAt(data, obj.Offset())
		if err != nil {
			return fmt.Errorf("failed to write object %s at offset %d: %w", obj.Name(), obj.Offset(), err)
		}
	}

	return nil
}

// Write packs and saves the ISO9660 filesystem to a new file at path.
func (iso *ISO9660) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := iso.Save(f); err != nil {
		return fmt.Errorf("failed to write ISO to %s: %w", path, err)
	}

	return nil
}

// Close closes the ISO9660 filesystem.
func (iso *ISO9660) Close() error {
	if f, ok := iso.isoReader.(*os.File); ok {
		return f.Close()
	}
	return nil
}

