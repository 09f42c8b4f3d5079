package planner

import (
	"fmt"

	"github.com/bgrewell/iso-forge/pkg/consts"
	"github.com/bgrewell/iso-forge/pkg/iso9660/directory"
)

// marshalDirectory encodes n's directory extent: the self ("\x00") record,
// the parent ("\x01") record, then one record per child in tree order
// (already kept sorted by directory.Node.AddChild), sector-padded at the
// end. A record is never split across a sector boundary (ECMA-119 6.8.1.1);
// when one doesn't fit in what's left of the current sector, the remainder
// of the sector is zero-padded before the record starts.
func marshalDirectory(n *directory.Node) ([]byte, error) {
	self := directory.DirectoryRecord{
		FileIdentifier:       "\x00",
		FileFlags:            directory.FileFlags{Directory: true},
		LocationOfExtent:     n.Record.LocationOfExtent,
		DataLength:           n.Record.DataLength,
		RecordingDateAndTime: n.Record.RecordingDateAndTime,
	}

	parentNode := n.Parent
	if parentNode == nil {
		parentNode = n
	}
	parent := directory.DirectoryRecord{
		FileIdentifier:       "\x01",
		FileFlags:            directory.FileFlags{Directory: true},
		LocationOfExtent:     parentNode.Record.LocationOfExtent,
		DataLength:           parentNode.Record.DataLength,
		RecordingDateAndTime: parentNode.Record.RecordingDateAndTime,
	}

	records := make([]*directory.DirectoryRecord, 0, 2+len(n.Children))
	records = append(records, &self, &parent)
	for _, c := range n.Children {
		records = append(records, c.Record)
	}

	var buf []byte
	for _, r := range records {
		b, err := r.Marshal()
		if err != nil {
			return nil, fmt.Errorf("planner: marshaling directory record %q: %w", r.FileIdentifier, err)
		}
		if len(b) > consts.ISO9660_SECTOR_SIZE {
			return nil, fmt.Errorf("planner: directory record %q (%d bytes) exceeds one sector", r.FileIdentifier, len(b))
		}

		used := len(buf) % consts.ISO9660_SECTOR_SIZE
		remaining := consts.ISO9660_SECTOR_SIZE - used
		if used != 0 && len(b) > remaining {
			buf = append(buf, make([]byte, remaining)...)
		}
		buf = append(buf, b...)
	}

	if pad := len(buf) % consts.ISO9660_SECTOR_SIZE; pad != 0 {
		buf = append(buf, make([]byte, consts.ISO9660_SECTOR_SIZE-pad)...)
	}
	return buf, nil
}
