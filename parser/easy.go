// Implement some easy APIs.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	errors "github.com/pkg/errors"
)

type FileInfo struct {
	MFTId         string    `json:"MFTId,omitempty"`
	Mtime         time.Time `json:"Mtime,omitempty"`
	Atime         time.Time `json:"Atime,omitempty"`
	Ctime         time.Time `json:"Ctime,omitempty"`
	Btime         time.Time `json:"Btime,omitempty"` // Birth time.
	FNBtime       time.Time `json:"FNBtime,omitempty"`
	Name          string    `json:"Name,omitempty"`
	NameType      string    `json:"NameType,omitempty"`
	ExtraNames    []string  `json:"ExtraNames,omitempty"`
	IsDir         bool      `json:"IsDir,omitempty"`
	Size          int64
	AllocatedSize int64

	// Is it in I30 slack?
	IsSlack     bool  `json:"IsSlack,omitempty"`
	SlackOffset int64 `json:"SlackOffset,omitempty"`
}

// Parse the inode notation: record[-type[-id]], e.g. 5-144-1.
// Missing components default to the $DATA stream.
func ParseMFTId(mft_id string) (mft_idx int64, attr int64, id int64, err error) {
	components := []int64{}
	components_str := strings.Split(mft_id, "-")
	for _, component_str := range components_str {
		x, err := strconv.ParseInt(component_str, 0, 64)
		if err != nil || x < 0 {
			return 0, 0, 0, errors.New("Incorrect format for MFTId: e.g. 5-144-1")
		}

		components = append(components, x)
	}

	switch len(components) {
	case 1:
		return components[0], int64(ATTR_TYPE_DATA), -1, nil
	case 2:
		return components[0], components[1], -1, nil
	case 3:
		return components[0], components[1], components[2], nil
	default:
		return 0, 0, 0, errors.New("Incorrect format for MFTId: e.g. 5-144-1")
	}
}

// Resolve an inode (5-128-1) or a path (/dir/file.txt:ads) to a
// record and the stream to read.
func GetRecordForSpec(ntfs *NTFSContext, spec string) (
	record *MFTRecord, attr_type AttributeType, name string, err error) {

	// Check for ADS.
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 2:
		name = parts[1]
	case 1:
	default:
		return nil, 0, "", errors.New("Path may not contain more than one ':'")
	}

	mft_idx, attr_id, id, err := ParseMFTId(parts[0])
	if err == nil {
		record, err = ntfs.GetMFT(mft_idx)
		if err != nil {
			return nil, 0, "", err
		}

		attr_type = AttributeType(attr_id)

		// A specific attribute id selects the stream name.
		if id >= 0 {
			it := record.Attributes()
			for it.Next() {
				attr := it.Attribute()
				if attr.Type == attr_type && int64(attr.Id) == id {
					return record, attr_type, attr.Name, nil
				}
			}
			return nil, 0, "", errors.Wrapf(notFoundError,
				"attribute %v-%v in record %v", attr_id, id, mft_idx)
		}
		return record, attr_type, name, nil
	}

	record, err = OpenPath(ntfs, parts[0])
	if err != nil {
		return nil, 0, "", err
	}
	return record, ATTR_TYPE_DATA, name, nil
}

// Open the stream named by an inode or path.
func GetDataForPath(ntfs *NTFSContext, spec string) (*StreamReader, error) {
	record, attr_type, name, err := GetRecordForSpec(ntfs, spec)
	if err != nil {
		return nil, err
	}
	return ntfs.OpenStream(record, attr_type, name)
}

// Describe the streams of a record: one FileInfo for the directory
// index and one per $DATA stream.
func Stat(ntfs *NTFSContext, record *MFTRecord) []*FileInfo {
	si, err := record.StandardInformation()
	if err != nil {
		return nil
	}

	win32_name := record.FileName()
	if win32_name == nil {
		return nil
	}

	other_names := []string{}
	for _, name := range record.FileNames() {
		if name.Name != win32_name.Name {
			other_names = append(other_names, name.Name)
		}
	}

	make_info := func(inode, name string) *FileInfo {
		return &FileInfo{
			MFTId:      inode,
			Mtime:      si.AlterTime.Time,
			Atime:      si.ReadTime.Time,
			Ctime:      si.MFTTime.Time,
			Btime:      si.CreateTime.Time,
			FNBtime:    win32_name.CreationTime.Time,
			Name:       name,
			NameType:   win32_name.NameType.String(),
			ExtraNames: other_names,
		}
	}

	result := []*FileInfo{}
	it := record.Attributes()
	for it.Next() {
		attr := it.Attribute()
		inode := fmt.Sprintf("%d-%d-%d", record.Index, uint32(attr.Type), attr.Id)

		switch attr.Type {
		case ATTR_TYPE_INDEX_ROOT:
			if attr.Name != I30 {
				continue
			}
			info := make_info(inode, win32_name.Name)
			info.IsDir = true
			result = append(result, info)

		case ATTR_TYPE_DATA:
			// Only show the first VCN run of
			// non-resident $DATA attributes.
			if attr.StartVCN != 0 {
				continue
			}

			name := win32_name.Name
			if attr.Name != "" {
				name += ":" + attr.Name
			}

			info := make_info(inode, name)
			info.Size = attr.DataSize()
			if attr.NonResident {
				info.AllocatedSize = int64(attr.AllocatedSize)
			} else {
				info.AllocatedSize = int64(attr.ValueLength)
			}
			result = append(result, info)
		}
	}

	return result
}

// List a directory. The index usually holds both the long and the
// short name of each child so references are de-duplicated.
func ListDir(ntfs *NTFSContext, dir *MFTRecord) ([]*FileInfo, error) {
	entries, err := dir.Dir(ntfs)

	seen := make(map[uint64]bool)
	result := []*FileInfo{}

	for _, entry := range entries {
		node_mft_id := entry.RecordNumber()
		if seen[node_mft_id] {
			continue
		}
		seen[node_mft_id] = true

		node, err := ntfs.GetMFT(int64(node_mft_id))
		if err != nil {
			DebugPrint("ListDir: %v\n", err)
			continue
		}
		result = append(result, Stat(ntfs, node)...)
	}
	return result, err
}
