package parser

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	errors "github.com/pkg/errors"
)

var (
	notFoundError = errors.New("Not found")
)

// Extract the $STANDARD_INFORMATION attribute from the record.
func (self *MFTRecord) StandardInformation() (*StandardInformation, error) {
	attr, err := self.GetAttribute(ATTR_TYPE_STANDARD_INFORMATION, "")
	if err != nil {
		return nil, err
	}

	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}
	return ParseStandardInformation(data)
}

// Extract the $FILE_NAME attributes from the record. Names which do
// not decode are skipped.
func (self *MFTRecord) FileNames() []*FileName {
	result := []*FileName{}
	for _, attr := range self.GetAttributes(ATTR_TYPE_FILE_NAME) {
		data, err := attr.ResidentData()
		if err != nil {
			continue
		}

		file_name, err := ParseFileName(data)
		if err != nil {
			continue
		}
		result = append(result, file_name)
	}
	return result
}

// The preferred name of the record: the Win32 (or POSIX) name over
// the DOS short name.
func (self *MFTRecord) FileName() *FileName {
	var short_name *FileName
	for _, file_name := range self.FileNames() {
		switch file_name.NameType {
		case NAME_TYPE_WIN32, NAME_TYPE_DOS_WIN32, NAME_TYPE_POSIX:
			return file_name
		default:
			short_name = file_name
		}
	}
	return short_name
}

func (self *MFTRecord) HasIndex() bool {
	_, err := self.GetAttribute(ATTR_TYPE_INDEX_ROOT, I30)
	return err == nil
}

// The directory entries of this record.
func (self *MFTRecord) Dir(ntfs *NTFSContext) ([]*IndexEntry, error) {
	return WalkIndex(ntfs, self, I30)
}

// Open the MFT record specified by a path name. Walks all directory
// indexes in the path to find the right MFT record.
func OpenPath(ntfs *NTFSContext, filename string) (*MFTRecord, error) {
	filename = strings.Replace(filename, "\\", "/", -1)
	filename = strings.Split(filename, ":")[0] // remove ADS if any as not needed
	components := strings.Split(path.Clean("/"+filename), "/")

	get_path_in_dir := func(component string, dir *MFTRecord) (
		*MFTRecord, error) {
		entries, err := dir.Dir(ntfs)
		if err != nil && len(entries) == 0 {
			return nil, err
		}

		// NTFS is usually case insensitive.
		for _, entry := range entries {
			if CompareFileNames(entry.Name(), component) == 0 {
				return ntfs.GetMFT(int64(entry.RecordNumber()))
			}
		}

		return nil, errors.Wrapf(notFoundError, "%v", component)
	}

	directory, err := ntfs.GetMFT(MFT_RECORD_ROOT)
	if err != nil {
		return nil, err
	}

	for _, component := range components {
		if component == "" {
			continue
		}
		next, err := get_path_in_dir(component, directory)
		if err != nil {
			return nil, err
		}
		directory = next
	}

	return directory, nil
}

// A one line summary of a record for batch scans.
type MFTHighlight struct {
	EntryNumber          int64
	Inode                string
	SequenceNumber       uint16
	InUse                bool
	ParentEntryNumber    uint64
	ParentSequenceNumber uint16
	FileNames            []string
	FileNameTypes        []string
	FileSize             int64
	ReferenceCount       int64
	IsDir                bool
	HasADS               bool
	ADS                  []string `json:",omitempty"`
	SIFlags              string
	Created0x10          time.Time
	Created0x30          time.Time
	LastModified0x10     time.Time
	LastModified0x30     time.Time
	LastRecordChange0x10 time.Time
	LastRecordChange0x30 time.Time
	LastAccess0x10       time.Time
	LastAccess0x30       time.Time
	LogFileSeqNum        uint64
	Errors               []string `json:",omitempty"`
}

func permissionString(perm FilePermissions) string {
	names := []string{}
	for _, item := range permissionNames {
		if perm.IsSet(item.mask) {
			names = append(names, strings.ToUpper(item.name))
		}
	}
	return strings.Join(names, ",")
}

func highlightRecord(record *MFTRecord) (*MFTHighlight, error) {
	file_names := record.FileNames()
	if len(file_names) == 0 {
		return nil, errors.Errorf("record %d has no $FILE_NAME", record.Index)
	}

	si, err := record.StandardInformation()
	if err != nil {
		return nil, err
	}

	row := &MFTHighlight{
		EntryNumber:          record.Index,
		Inode:                fmt.Sprintf("%d", record.Index),
		SequenceNumber:       record.Header.SequenceNumber,
		InUse:                record.InUse(),
		ParentEntryNumber:    file_names[0].ParentReference.RecordNumber(),
		ParentSequenceNumber: file_names[0].ParentReference.Sequence(),
		ReferenceCount:       int64(record.Header.HardLinkCount),
		IsDir:                record.IsDirectory(),
		SIFlags:              permissionString(si.Permissions),
		Created0x10:          si.CreateTime.Time,
		Created0x30:          file_names[0].CreationTime.Time,
		LastModified0x10:     si.AlterTime.Time,
		LastModified0x30:     file_names[0].LastWriteTime.Time,
		LastRecordChange0x10: si.MFTTime.Time,
		LastRecordChange0x30: file_names[0].ChangeTime.Time,
		LastAccess0x10:       si.ReadTime.Time,
		LastAccess0x30:       file_names[0].LastAccessTime.Time,
		LogFileSeqNum:        record.Header.LogFileSequenceNumber,
		Errors:               record.Warnings,
	}

	for _, file_name := range file_names {
		row.FileNames = append(row.FileNames, file_name.Name)
		row.FileNameTypes = append(row.FileNameTypes, file_name.NameType.String())
	}

	size_found := false
	it := record.Attributes()
	for it.Next() {
		attr := it.Attribute()
		if attr.Type != ATTR_TYPE_DATA || attr.StartVCN != 0 {
			continue
		}

		if attr.Name == "" && !size_found {
			row.FileSize = attr.DataSize()
			size_found = true
		}

		// Check if the stream has ADS
		if attr.Name != "" {
			row.ADS = append(row.ADS, attr.Name)
		}
	}
	if it.Err() != nil {
		row.Errors = append(row.Errors, it.Err().Error())
	}
	row.HasADS = len(row.ADS) > 0

	return row, nil
}

// Scan the $MFT from record start_entry to the end. Records which
// fail to decode are skipped and counted in STATS, they never stop
// the scan. Records are read one at a time from a single goroutine.
func ScanMFT(
	ctx context.Context,
	ntfs *NTFSContext, start_entry int64) chan *MFTHighlight {
	output := make(chan *MFTHighlight)

	go func() {
		defer close(output)

		for id := start_entry; id < ntfs.RecordCount(); id++ {
			record, err := ntfs.GetMFT(id)
			if err != nil {
				DebugPrint("ScanMFT: %v\n", err)
				STATS.Inc_RecordsSkipped()
				continue
			}

			row, err := highlightRecord(record)
			if err != nil {
				STATS.Inc_RecordsSkipped()
				continue
			}

			// Check for cancellations.
			select {
			case <-ctx.Done():
				return

			case output <- row:
			}
		}
	}()

	return output
}
