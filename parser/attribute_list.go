package parser

import (
	"encoding/binary"
	"fmt"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
)

const attributeListEntryMinSize = 26

// One entry of an $ATTRIBUTE_LIST: locates an attribute (or one VCN
// range of it) which may live in an extension record.
type AttributeListEntry struct {
	Type        AttributeType
	Length      uint16
	NameLength  uint8
	NameOffset  uint8
	StartVCN    uint64
	Reference   FileReference
	AttributeId uint16
	Name        string
}

func (self *AttributeListEntry) String() string {
	return fmt.Sprintf("%v:%v @ %v (VCN %d, id %d)",
		self.Type, self.Name, self.Reference, self.StartVCN, self.AttributeId)
}

// Decode the entries of an $ATTRIBUTE_LIST value. Entries decoded
// before a malformed one are returned with the error.
func ParseAttributeList(buffer []byte) ([]*AttributeListEntry, error) {
	result := []*AttributeListEntry{}

	for offset := 0; offset < len(buffer); {
		if offset+attributeListEntryMinSize > len(buffer) {
			// Trailing padding.
			break
		}

		data := buffer[offset:]
		entry := &AttributeListEntry{
			Type:        AttributeType(binary.LittleEndian.Uint32(data[0:])),
			Length:      binary.LittleEndian.Uint16(data[4:]),
			NameLength:  data[6],
			NameOffset:  data[7],
			StartVCN:    binary.LittleEndian.Uint64(data[8:]),
			Reference:   FileReference(binary.LittleEndian.Uint64(data[16:])),
			AttributeId: binary.LittleEndian.Uint16(data[24:]),
		}

		if entry.Type == 0 || entry.Type == ATTR_TYPE_END {
			break
		}

		if entry.Length < attributeListEntryMinSize {
			return result, errors.Wrapf(MalformedAttributeError,
				"attribute list entry at %#x has length %#x",
				offset, entry.Length)
		}

		record, err := getSlice(buffer, int64(offset), int64(entry.Length))
		if err != nil {
			return result, errors.Wrapf(err, "attribute list entry at %#x", offset)
		}

		if entry.NameLength > 0 {
			name, err := getSlice(record, int64(entry.NameOffset),
				int64(entry.NameLength)*2)
			if err != nil {
				return result, errors.Wrapf(err,
					"name of attribute list entry at %#x", offset)
			}
			entry.Name = ParseUTF16String(name)
		}

		result = append(result, entry)
		offset += int(entry.Length)
	}

	return result, nil
}

type AttributeList struct {
	Entries []*AttributeListEntry
}

func (self *AttributeList) Overview() *ordereddict.Dict {
	entries := make([]*ordereddict.Dict, 0, len(self.Entries))
	for _, entry := range self.Entries {
		entries = append(entries, ordereddict.NewDict().
			Set("Type", entry.Type.String()).
			Set("Name", entry.Name).
			Set("Record", entry.Reference.RecordNumber()).
			Set("Sequence", entry.Reference.Sequence()).
			Set("StartVCN", entry.StartVCN).
			Set("AttributeId", entry.AttributeId))
	}

	return ordereddict.NewDict().
		Set("Entries", entries)
}
