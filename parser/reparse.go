package parser

import (
	"encoding/binary"
	"fmt"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
)

const (
	IO_REPARSE_TAG_MOUNT_POINT = 0xA0000003
	IO_REPARSE_TAG_HSM         = 0xC0000004
	IO_REPARSE_TAG_HSM2        = 0x80000006
	IO_REPARSE_TAG_SIS         = 0x80000007
	IO_REPARSE_TAG_WIM         = 0x80000008
	IO_REPARSE_TAG_CSV         = 0x80000009
	IO_REPARSE_TAG_DFS         = 0x8000000A
	IO_REPARSE_TAG_SYMLINK     = 0xA000000C
	IO_REPARSE_TAG_DFSR        = 0x80000012
	IO_REPARSE_TAG_DEDUP       = 0x80000013
	IO_REPARSE_TAG_NFS         = 0x80000014
	IO_REPARSE_TAG_WOF         = 0x80000017
	IO_REPARSE_TAG_WCI         = 0x80000018
	IO_REPARSE_TAG_CLOUD       = 0x9000001A
	IO_REPARSE_TAG_APPEXECLINK = 0x8000001B
	IO_REPARSE_TAG_LX_SYMLINK  = 0xA000001D
	IO_REPARSE_TAG_AF_UNIX     = 0x80000023

	// Tag, data length, reserved and the four name offset/length
	// fields.
	reparseMountPointHeaderSize = 16
)

var reparseTagNames = map[uint32]string{
	IO_REPARSE_TAG_MOUNT_POINT: "Mount Point",
	IO_REPARSE_TAG_HSM:         "Hierarchical Storage Management",
	IO_REPARSE_TAG_HSM2:        "Hierarchical Storage Management 2",
	IO_REPARSE_TAG_SIS:         "Single Instance Storage",
	IO_REPARSE_TAG_WIM:         "WIM Image",
	IO_REPARSE_TAG_CSV:         "Cluster Shared Volume",
	IO_REPARSE_TAG_DFS:         "Distributed File System",
	IO_REPARSE_TAG_SYMLINK:     "Symbolic Link",
	IO_REPARSE_TAG_DFSR:        "DFS Replication",
	IO_REPARSE_TAG_DEDUP:       "Deduplication",
	IO_REPARSE_TAG_NFS:         "NFS Symbolic Link",
	IO_REPARSE_TAG_WOF:         "Windows Overlay Filter",
	IO_REPARSE_TAG_WCI:         "Windows Container Isolation",
	IO_REPARSE_TAG_CLOUD:       "Cloud Files",
	IO_REPARSE_TAG_APPEXECLINK: "Application Execution Link",
	IO_REPARSE_TAG_LX_SYMLINK:  "WSL Symbolic Link",
	IO_REPARSE_TAG_AF_UNIX:     "Unix Domain Socket",
}

func ReparseTagName(tag uint32) string {
	name, pres := reparseTagNames[tag]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown (%#08x)", tag)
}

type ReparsePoint struct {
	Tag        uint32
	DataLength uint16

	// Only decoded for IO_REPARSE_TAG_SYMLINK.
	Decoded        bool
	SubstituteName string
	DisplayName    string
}

// Decode a reparse point. Only the IO_REPARSE_TAG_SYMLINK tag is
// decoded further, using the mount point layout: four uint16 name
// offset/length pairs followed by the path buffer at offset 16. The
// offsets are relative to the path buffer.
//
// On disk a symbolic link has a 4 byte Flags field before its path
// buffer, which starts at offset 20. Names of real symlinks decoded
// here are therefore shifted by 4 bytes and may not match what
// Windows reports.
func ParseReparsePoint(buffer []byte) (*ReparsePoint, error) {
	err := needBytes(buffer, 8, "$REPARSE_POINT")
	if err != nil {
		return nil, err
	}

	result := &ReparsePoint{
		Tag:        binary.LittleEndian.Uint32(buffer[0:]),
		DataLength: binary.LittleEndian.Uint16(buffer[4:]),
	}

	if result.Tag != IO_REPARSE_TAG_SYMLINK {
		return result, nil
	}

	err = needBytes(buffer, reparseMountPointHeaderSize, "$REPARSE_POINT names")
	if err != nil {
		return nil, err
	}

	path_buffer := buffer[reparseMountPointHeaderSize:]
	substitute_offset := binary.LittleEndian.Uint16(buffer[8:])
	substitute_length := binary.LittleEndian.Uint16(buffer[10:])
	print_offset := binary.LittleEndian.Uint16(buffer[12:])
	print_length := binary.LittleEndian.Uint16(buffer[14:])

	substitute, err := getSlice(path_buffer,
		int64(substitute_offset), int64(substitute_length))
	if err != nil {
		return nil, errors.Wrap(err, "$REPARSE_POINT substitute name")
	}

	display, err := getSlice(path_buffer,
		int64(print_offset), int64(print_length))
	if err != nil {
		return nil, errors.Wrap(err, "$REPARSE_POINT display name")
	}

	result.Decoded = true
	result.SubstituteName = ParseUTF16String(substitute)
	result.DisplayName = ParseUTF16String(display)

	return result, nil
}

func (self *ReparsePoint) Overview() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("Type", ReparseTagName(self.Tag))

	if !self.Decoded {
		return result.Set("Details", "Unknown Reparse Point Type")
	}

	return result.
		Set("Substitute Name", self.SubstituteName).
		Set("Display Name", self.DisplayName)
}

func decodeReparsePoint(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.Data(ntfs)
	if err != nil {
		return nil, err
	}
	return ParseReparsePoint(data)
}
