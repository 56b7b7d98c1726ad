package parser

import (
	"path"

	errors "github.com/pkg/errors"
)

// Prefer the long name: DOS 8.3 names are only used when nothing
// else is available.
func get_longest_name(file_names []*FileName) *FileName {
	var result *FileName
	for _, fn := range file_names {
		if result == nil || len(result.Name) < len(fn.Name) {
			result = fn
		}
	}

	return result
}

// Traverse the parent references of the record until the root. We
// return the full path of the MFT record. Parents are resolved by
// number only, so a reused parent record yields a stale path.
func GetFullPath(ntfs *NTFSContext, record *MFTRecord) (string, error) {
	result := []string{}
	seen := make(map[int64]bool)
	max_depth := ntfs.GetOptions().MaxDirectoryDepth

	for {
		id := record.Index
		if id == MFT_RECORD_ROOT {
			break
		}
		seen[id] = true

		file_names := record.FileNames()
		if len(file_names) == 0 {
			return path.Join(result...), errors.Errorf(
				"Entry %v has no filename", id)
		}

		name := get_longest_name(file_names)
		result = append([]string{name.Name}, result...)

		parent_id := int64(name.ParentReference.RecordNumber())
		if seen[parent_id] || len(result) > max_depth {
			break
		}

		parent, err := ntfs.GetMFT(parent_id)
		if err != nil {
			return path.Join(result...), errors.Wrapf(err,
				"Entry %v has invalid parent", id)
		}
		record = parent
	}

	return "/" + path.Join(result...), nil
}

func CapInt64(v int64, max int64) int64 {
	if v > max {
		return max
	}
	return v
}
