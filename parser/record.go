package parser

import (
	"encoding/binary"
	"fmt"
	"strings"

	errors "github.com/pkg/errors"
)

const (
	MFT_RECORD_MAGIC       = "FILE"
	MFT_RECORD_HEADER_SIZE = 48
	MAX_MFT_ENTRY_SIZE     = 0x10000
)

// A reference to an MFT record: 48 bits of record number and 16
// bits of sequence number. References are only resolved on demand
// through NTFSContext.GetMFT().
type FileReference uint64

func (self FileReference) RecordNumber() uint64 {
	return uint64(self) & 0xffffffffffff
}

func (self FileReference) Sequence() uint16 {
	return uint16(uint64(self) >> 48)
}

func (self FileReference) String() string {
	return fmt.Sprintf("%d-%d", self.RecordNumber(), self.Sequence())
}

type RecordFlags uint16

const (
	RECORD_IN_USE        RecordFlags = 0x0001
	RECORD_IS_DIRECTORY  RecordFlags = 0x0002
	RECORD_IN_EXTEND     RecordFlags = 0x0004
	RECORD_IS_VIEW_INDEX RecordFlags = 0x0008
)

var recordFlagNames = []struct {
	flag RecordFlags
	name string
}{
	{RECORD_IN_USE, "IN_USE"},
	{RECORD_IS_DIRECTORY, "DIRECTORY"},
	{RECORD_IN_EXTEND, "IN_EXTEND"},
	{RECORD_IS_VIEW_INDEX, "VIEW_INDEX"},
}

func (self RecordFlags) String() string {
	names := []string{}
	for _, item := range recordFlagNames {
		if self&item.flag != 0 {
			names = append(names, item.name)
		}
	}
	if len(names) == 0 {
		return "UNUSED"
	}
	return strings.Join(names, " | ")
}

// The fixed header at the start of every MFT record.
type RecordHeader struct {
	Signature             string
	UpdateOffset          uint16
	UpdateNumber          uint16
	LogFileSequenceNumber uint64
	SequenceNumber        uint16
	HardLinkCount         uint16
	AttributeOffset       uint16
	Flags                 RecordFlags
	UsedSize              uint32
	AllocatedSize         uint32
	BaseRecord            FileReference
	NextAttributeId       uint16
	RecordIndex           uint32
	UpdateSequenceNumber  uint16
	UpdateSequenceArray   []uint16
}

func ParseRecordHeader(buffer []byte) (*RecordHeader, error) {
	err := needBytes(buffer, MFT_RECORD_HEADER_SIZE, "MFT record header")
	if err != nil {
		return nil, err
	}

	result := &RecordHeader{
		Signature:             string(buffer[0:4]),
		UpdateOffset:          binary.LittleEndian.Uint16(buffer[4:]),
		UpdateNumber:          binary.LittleEndian.Uint16(buffer[6:]),
		LogFileSequenceNumber: binary.LittleEndian.Uint64(buffer[8:]),
		SequenceNumber:        binary.LittleEndian.Uint16(buffer[16:]),
		HardLinkCount:         binary.LittleEndian.Uint16(buffer[18:]),
		AttributeOffset:       binary.LittleEndian.Uint16(buffer[20:]),
		Flags:                 RecordFlags(binary.LittleEndian.Uint16(buffer[22:])),
		UsedSize:              binary.LittleEndian.Uint32(buffer[24:]),
		AllocatedSize:         binary.LittleEndian.Uint32(buffer[28:]),
		BaseRecord:            FileReference(binary.LittleEndian.Uint64(buffer[32:])),
		NextAttributeId:       binary.LittleEndian.Uint16(buffer[40:]),
		RecordIndex:           binary.LittleEndian.Uint32(buffer[44:]),
	}

	// The update sequence array is reported as stored on disk. It
	// is not part of the fixed header so it may be missing in a
	// damaged record.
	if result.UpdateNumber > 0 {
		usa, err := getSlice(buffer, int64(result.UpdateOffset),
			int64(result.UpdateNumber)*2)
		if err == nil {
			result.UpdateSequenceNumber = binary.LittleEndian.Uint16(usa)
			for i := 2; i < len(usa); i += 2 {
				result.UpdateSequenceArray = append(result.UpdateSequenceArray,
					binary.LittleEndian.Uint16(usa[i:]))
			}
		}
	}

	return result, nil
}

// An MFT record materialized from the device. Records are immutable
// once constructed and never cached.
type MFTRecord struct {
	// The record index used to locate this record.
	Index int64

	Header *RecordHeader

	// The fixed up record.
	Buffer []byte

	// Problems encountered while loading the record which did not
	// prevent decoding (e.g. fixup mismatches).
	Warnings []string
}

// Build a record from a raw (not yet fixed up) buffer. The buffer is
// fixed up in place.
func NewMFTRecord(buffer []byte, index int64, options Options) (*MFTRecord, error) {
	err := needBytes(buffer, MFT_RECORD_HEADER_SIZE, "MFT record")
	if err != nil {
		return nil, err
	}

	signature := string(buffer[0:4])
	if signature != MFT_RECORD_MAGIC {
		STATS.Inc_RecordsCorrupt()
		return nil, errors.Wrapf(CorruptStructureError,
			"MFT record %d has signature %q", index, signature)
	}

	result := &MFTRecord{
		Index:  index,
		Buffer: buffer,
	}

	// Fixups must be applied before any other field is read.
	err = ApplyFixups(buffer, FIXUP_SECTOR_SIZE)
	if err != nil {
		if options.StrictFixups {
			return nil, errors.Wrapf(err, "MFT record %d", index)
		}
		DebugPrint("MFT record %d: %v\n", index, err)
		result.Warnings = append(result.Warnings, err.Error())
	}

	result.Header, err = ParseRecordHeader(buffer)
	if err != nil {
		return nil, err
	}

	STATS.Inc_RecordsRead()
	return result, nil
}

func (self *MFTRecord) InUse() bool {
	return self.Header.Flags&RECORD_IN_USE != 0
}

func (self *MFTRecord) IsDirectory() bool {
	return self.Header.Flags&RECORD_IS_DIRECTORY != 0
}

// Extension records point back at their base record. A base record
// has a zero reference.
func (self *MFTRecord) IsBaseRecord() bool {
	return self.Header.BaseRecord == 0
}

// The record number as stored in the header if present (NTFS 3.1),
// otherwise the index it was located at.
func (self *MFTRecord) RecordNumber() int64 {
	if self.Header.AttributeOffset >= MFT_RECORD_HEADER_SIZE {
		return int64(self.Header.RecordIndex)
	}
	return self.Index
}

// The end of the attribute stream: the used size, capped at the
// buffer.
func (self *MFTRecord) usedSize() int {
	used := int(self.Header.UsedSize)
	if used <= 0 || used > len(self.Buffer) {
		return len(self.Buffer)
	}
	return used
}

func (self *MFTRecord) DebugString() string {
	result := fmt.Sprintf("struct MFTRecord @ %d:\n", self.Index)
	result += fmt.Sprintf("  Signature: %v\n", self.Header.Signature)
	result += fmt.Sprintf("  UpdateOffset: %#0x\n", self.Header.UpdateOffset)
	result += fmt.Sprintf("  UpdateNumber: %#0x\n", self.Header.UpdateNumber)
	result += fmt.Sprintf("  LogFileSequenceNumber: %#0x\n", self.Header.LogFileSequenceNumber)
	result += fmt.Sprintf("  SequenceNumber: %#0x\n", self.Header.SequenceNumber)
	result += fmt.Sprintf("  HardLinkCount: %#0x\n", self.Header.HardLinkCount)
	result += fmt.Sprintf("  AttributeOffset: %#0x\n", self.Header.AttributeOffset)
	result += fmt.Sprintf("  Flags: %v\n", self.Header.Flags)
	result += fmt.Sprintf("  UsedSize: %#0x\n", self.Header.UsedSize)
	result += fmt.Sprintf("  AllocatedSize: %#0x\n", self.Header.AllocatedSize)
	result += fmt.Sprintf("  BaseRecord: %v\n", self.Header.BaseRecord)
	result += fmt.Sprintf("  NextAttributeId: %#0x\n", self.Header.NextAttributeId)
	result += fmt.Sprintf("  RecordIndex: %#0x\n", self.Header.RecordIndex)
	return result
}
