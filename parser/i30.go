package parser

import (
	"fmt"
	"time"
)

func ExtractI30List(ntfs *NTFSContext, record *MFTRecord) ([]*FileInfo, error) {
	nodes, err := IndexNodes(ntfs, record, I30)
	if len(nodes) == 0 {
		return nil, err
	}

	entries := []*IndexEntry{}
	for _, node := range nodes {
		entries = append(entries, node.Entries...)
		entries = append(entries, node.ScanSlack()...)
	}

	result := []*FileInfo{}
	for _, entry := range entries {
		if entry.File == nil {
			continue
		}

		filename := entry.File
		result = append(result, &FileInfo{
			MFTId:         fmt.Sprintf("%d", entry.RecordNumber()),
			Mtime:         filename.LastWriteTime.Time,
			Atime:         filename.LastAccessTime.Time,
			Ctime:         filename.ChangeTime.Time,
			Btime:         filename.CreationTime.Time,
			Name:          filename.Name,
			NameType:      filename.NameType.String(),
			Size:          int64(filename.RealSize),
			AllocatedSize: int64(filename.AllocatedSize),
			IsSlack:       entry.IsSlack,
			SlackOffset:   entry.SlackOffset,
		})
	}

	return result, err
}

var (
	earliest_valid_time = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	latest_valid_time   = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

func isPlausibleTime(t WinFileTime) bool {
	return t.After(earliest_valid_time) && t.Before(latest_valid_time)
}

// A carved entry is only believed if all its timestamps are sane
// and the name fits in the key.
func (self *IndexEntry) IsValid() bool {
	test_filename := self.File
	if test_filename == nil || test_filename.NameLength == 0 ||
		test_filename.NameType > NAME_TYPE_DOS_WIN32 {
		return false
	}

	if int(self.KeyLength) < fileNameHeaderSize+2*int(test_filename.NameLength) {
		return false
	}

	return isPlausibleTime(test_filename.LastWriteTime) &&
		isPlausibleTime(test_filename.LastAccessTime) &&
		isPlausibleTime(test_filename.ChangeTime) &&
		isPlausibleTime(test_filename.CreationTime)
}

// Carve deleted entries from the unused space of the node. Entries
// are 8 byte aligned.
func (self *IndexNode) ScanSlack() []*IndexEntry {
	result := []*IndexEntry{}

	buffer := self.Slack
	for off := 0; off+indexEntryHeaderSize+fileNameHeaderSize <= len(buffer); off += 8 {
		test_struct, err := parseIndexEntry(buffer, off)
		if err != nil || test_struct.IsLast() {
			continue
		}

		if test_struct.IsValid() {
			test_struct.IsSlack = true
			test_struct.SlackOffset = self.SlackOffset + int64(off)
			result = append(result, test_struct)
		}
	}

	return result
}
