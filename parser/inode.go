package parser

import "fmt"

// Builds the "record-type-id" inode notation accepted by
// ParseMFTId().
type InodeFormatter struct {
	attr_ids []uint32
}

// Format an inode unambiguously: the stream name is only appended
// when another stream with the same type and id was already seen.
func (self *InodeFormatter) Inode(mft_id uint32,
	attr_type_id uint64, attr_id uint16, name string) string {
	inode := fmt.Sprintf("%d-%d-%d", mft_id, attr_type_id, attr_id)
	needle := uint32(attr_id)<<16 + uint32(attr_type_id)

	for _, seen := range self.attr_ids {
		if seen == needle {
			if name != "" {
				inode += ":" + name
			}
			return inode
		}
	}

	self.attr_ids = append(self.attr_ids, needle)
	return inode
}
