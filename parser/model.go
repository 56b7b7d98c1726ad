package parser

import (
	"github.com/Velocidex/ordereddict"
)

// This file defines a model for an MFT record: everything the
// decoder knows about a record without formatting opinions.

type HeaderInfo struct {
	Signature             string
	UpdateOffset          uint16
	UpdateNumber          uint16
	LogFileSequenceNumber uint64
	SequenceNumber        uint16
	HardLinkCount         uint16
	AttributeOffset       uint16
	Flags                 string
	UsedSize              uint32
	AllocatedSize         uint32
	BaseRecord            uint64
	NextAttributeId       uint16
	RecordIndex           uint32
	UpdateSequenceNumber  uint16
	UpdateSequenceArray   []uint16
}

type AttributeInfo struct {
	// Position in the attribute stream, starting at 1.
	Index       int
	Id          uint16
	Type        string
	TypeId      uint32
	NonResident bool
	Length      int64
	Name        string `json:",omitempty"`
	Inode       string

	Overview *ordereddict.Dict `json:",omitempty"`
	Error    string            `json:",omitempty"`
}

type IndexEntryInfo struct {
	RecordNumber uint64
	Sequence     uint16
	Name         string
	IsSlack      bool  `json:",omitempty"`
	SlackOffset  int64 `json:",omitempty"`
}

// Describe a single MFT record.
type RecordInfo struct {
	MFTID      int64
	FullPath   string `json:",omitempty"`
	InUse      bool
	IsDir      bool
	Header     HeaderInfo
	Attributes []*AttributeInfo

	IndexEntries []*IndexEntryInfo `json:",omitempty"`

	// Problems which did not stop decoding.
	Errors []string `json:",omitempty"`
}

// Decode every attribute of the record. A failing attribute is
// reported in its own AttributeInfo and the walk carries on.
func ModelMFTRecord(ntfs *NTFSContext, record *MFTRecord) *RecordInfo {
	header := record.Header
	result := &RecordInfo{
		MFTID: record.Index,
		InUse: record.InUse(),
		IsDir: record.IsDirectory(),
		Header: HeaderInfo{
			Signature:             header.Signature,
			UpdateOffset:          header.UpdateOffset,
			UpdateNumber:          header.UpdateNumber,
			LogFileSequenceNumber: header.LogFileSequenceNumber,
			SequenceNumber:        header.SequenceNumber,
			HardLinkCount:         header.HardLinkCount,
			AttributeOffset:       header.AttributeOffset,
			Flags:                 header.Flags.String(),
			UsedSize:              header.UsedSize,
			AllocatedSize:         header.AllocatedSize,
			BaseRecord:            uint64(header.BaseRecord),
			NextAttributeId:       header.NextAttributeId,
			RecordIndex:           header.RecordIndex,
			UpdateSequenceNumber:  header.UpdateSequenceNumber,
			UpdateSequenceArray:   header.UpdateSequenceArray,
		},
		Errors: append([]string{}, record.Warnings...),
	}

	full_path, err := GetFullPath(ntfs, record)
	if err == nil {
		result.FullPath = full_path
	}

	inode_formatter := InodeFormatter{}
	has_index := false

	idx := 0
	it := record.Attributes()
	for it.Next() {
		attr := it.Attribute()
		idx++

		info := &AttributeInfo{
			Index:       idx,
			Id:          attr.Id,
			Type:        attr.Type.String(),
			TypeId:      uint32(attr.Type),
			NonResident: attr.NonResident,
			Length:      attr.ValidDataLength(),
			Name:        attr.Name,
			Inode: inode_formatter.Inode(uint32(record.Index),
				uint64(attr.Type), attr.Id, attr.Name),
		}

		if attr.Type == ATTR_TYPE_INDEX_ROOT && attr.Name == I30 {
			has_index = true
		}

		value, err := DecodeAttribute(ntfs, record, attr)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Overview = value.Overview()
		}

		result.Attributes = append(result.Attributes, info)
	}

	if it.Err() != nil {
		result.Errors = append(result.Errors, it.Err().Error())
	}

	if has_index {
		entries, err := WalkIndex(ntfs, record, I30)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}

		if ntfs.GetOptions().IncludeSlack {
			entries = append(entries, slackEntries(ntfs, record)...)
		}

		for _, entry := range entries {
			result.IndexEntries = append(result.IndexEntries, &IndexEntryInfo{
				RecordNumber: entry.RecordNumber(),
				Sequence:     entry.Reference.Sequence(),
				Name:         entry.Name(),
				IsSlack:      entry.IsSlack,
				SlackOffset:  entry.SlackOffset,
			})
		}
	}

	return result
}

func slackEntries(ntfs *NTFSContext, record *MFTRecord) []*IndexEntry {
	result := []*IndexEntry{}
	nodes, _ := IndexNodes(ntfs, record, I30)
	for _, node := range nodes {
		result = append(result, node.ScanSlack()...)
	}
	return result
}
