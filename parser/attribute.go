package parser

import (
	"encoding/binary"
	"fmt"

	errors "github.com/pkg/errors"
)

type AttributeType uint32

const (
	ATTR_TYPE_STANDARD_INFORMATION  AttributeType = 0x10
	ATTR_TYPE_ATTRIBUTE_LIST        AttributeType = 0x20
	ATTR_TYPE_FILE_NAME             AttributeType = 0x30
	ATTR_TYPE_OBJECT_ID             AttributeType = 0x40
	ATTR_TYPE_SECURITY_DESCRIPTOR   AttributeType = 0x50
	ATTR_TYPE_VOLUME_NAME           AttributeType = 0x60
	ATTR_TYPE_VOLUME_INFORMATION    AttributeType = 0x70
	ATTR_TYPE_DATA                  AttributeType = 0x80
	ATTR_TYPE_INDEX_ROOT            AttributeType = 0x90
	ATTR_TYPE_INDEX_ALLOCATION      AttributeType = 0xA0
	ATTR_TYPE_BITMAP                AttributeType = 0xB0
	ATTR_TYPE_REPARSE_POINT         AttributeType = 0xC0
	ATTR_TYPE_EA_INFORMATION        AttributeType = 0xD0
	ATTR_TYPE_EA                    AttributeType = 0xE0
	ATTR_TYPE_PROPERTY_SET          AttributeType = 0xF0
	ATTR_TYPE_LOGGED_UTILITY_STREAM AttributeType = 0x100
	ATTR_TYPE_END                   AttributeType = 0xFFFFFFFF
)

var attributeTypeNames = map[AttributeType]string{
	ATTR_TYPE_STANDARD_INFORMATION:  "$STANDARD_INFORMATION",
	ATTR_TYPE_ATTRIBUTE_LIST:        "$ATTRIBUTE_LIST",
	ATTR_TYPE_FILE_NAME:             "$FILE_NAME",
	ATTR_TYPE_OBJECT_ID:             "$OBJECT_ID",
	ATTR_TYPE_SECURITY_DESCRIPTOR:   "$SECURITY_DESCRIPTOR",
	ATTR_TYPE_VOLUME_NAME:           "$VOLUME_NAME",
	ATTR_TYPE_VOLUME_INFORMATION:    "$VOLUME_INFORMATION",
	ATTR_TYPE_DATA:                  "$DATA",
	ATTR_TYPE_INDEX_ROOT:            "$INDEX_ROOT",
	ATTR_TYPE_INDEX_ALLOCATION:      "$INDEX_ALLOCATION",
	ATTR_TYPE_BITMAP:                "$BITMAP",
	ATTR_TYPE_REPARSE_POINT:         "$REPARSE_POINT",
	ATTR_TYPE_EA_INFORMATION:        "$EA_INFORMATION",
	ATTR_TYPE_EA:                    "$EA",
	ATTR_TYPE_PROPERTY_SET:          "$PROPERTY_SET",
	ATTR_TYPE_LOGGED_UTILITY_STREAM: "$LOGGED_UTILITY_STREAM",
	ATTR_TYPE_END:                   "$END",
}

func (self AttributeType) String() string {
	name, pres := attributeTypeNames[self]
	if pres {
		return name
	}
	return fmt.Sprintf("Unknown (%#x)", uint32(self))
}

const (
	ATTR_FLAG_COMPRESSED = 0x0001
	ATTR_FLAG_ENCRYPTED  = 0x4000
	ATTR_FLAG_SPARSE     = 0x8000

	RESIDENT_FORM     = 0
	NON_RESIDENT_FORM = 1

	attributeCommonHeaderSize      = 16
	attributeResidentHeaderSize    = 24
	attributeNonResidentHeaderSize = 64
)

// One attribute of an MFT record. The header is decoded eagerly, the
// value is only materialized on request.
type Attribute struct {
	Type        AttributeType
	Length      uint32
	NonResident bool
	NameLength  uint8
	NameOffset  uint16
	Flags       uint16
	Id          uint16
	Name        string

	// Resident form.
	ValueLength uint32
	ValueOffset uint16
	Indexed     uint8

	// Non-resident form.
	StartVCN        uint64
	LastVCN         uint64
	RunListOffset   uint16
	CompressionUnit uint16
	AllocatedSize   uint64
	RealSize        uint64
	InitializedSize uint64
	CompressedSize  uint64

	// Offset of the attribute inside the record.
	Offset int

	// The attribute's own bytes (Length bytes from Offset).
	raw []byte
}

// Decode an attribute header from its bytes. raw must be exactly the
// attribute record (Length bytes).
func ParseAttribute(raw []byte, offset int) (*Attribute, error) {
	err := needBytes(raw, attributeCommonHeaderSize, "attribute header")
	if err != nil {
		return nil, err
	}

	result := &Attribute{
		Type:       AttributeType(binary.LittleEndian.Uint32(raw[0:])),
		Length:     binary.LittleEndian.Uint32(raw[4:]),
		NameLength: raw[9],
		NameOffset: binary.LittleEndian.Uint16(raw[10:]),
		Flags:      binary.LittleEndian.Uint16(raw[12:]),
		Id:         binary.LittleEndian.Uint16(raw[14:]),
		Offset:     offset,
		raw:        raw,
	}

	switch raw[8] {
	case RESIDENT_FORM:
		err := needBytes(raw, attributeResidentHeaderSize,
			"resident attribute header")
		if err != nil {
			return nil, err
		}
		result.ValueLength = binary.LittleEndian.Uint32(raw[16:])
		result.ValueOffset = binary.LittleEndian.Uint16(raw[20:])
		result.Indexed = raw[22]

	case NON_RESIDENT_FORM:
		result.NonResident = true
		err := needBytes(raw, attributeNonResidentHeaderSize,
			"non-resident attribute header")
		if err != nil {
			return nil, err
		}
		result.StartVCN = binary.LittleEndian.Uint64(raw[16:])
		result.LastVCN = binary.LittleEndian.Uint64(raw[24:])
		result.RunListOffset = binary.LittleEndian.Uint16(raw[32:])
		result.CompressionUnit = binary.LittleEndian.Uint16(raw[34:])
		result.AllocatedSize = binary.LittleEndian.Uint64(raw[40:])
		result.RealSize = binary.LittleEndian.Uint64(raw[48:])
		result.InitializedSize = binary.LittleEndian.Uint64(raw[56:])
		if result.CompressionUnit > 0 && len(raw) >= 72 {
			result.CompressedSize = binary.LittleEndian.Uint64(raw[64:])
		}

	default:
		return nil, errors.Wrapf(MalformedAttributeError,
			"attribute at %#x has invalid form code %d", offset, raw[8])
	}

	if result.NameLength > 0 {
		name, err := getSlice(raw, int64(result.NameOffset),
			int64(result.NameLength)*2)
		if err != nil {
			return nil, errors.Wrapf(err, "name of attribute at %#x", offset)
		}
		result.Name = ParseUTF16String(name)
	}

	return result, nil
}

func (self *Attribute) IsResident() bool {
	return !self.NonResident
}

func (self *Attribute) IsCompressed() bool {
	return self.Flags&ATTR_FLAG_COMPRESSED != 0
}

func (self *Attribute) IsEncrypted() bool {
	return self.Flags&ATTR_FLAG_ENCRYPTED != 0
}

func (self *Attribute) IsSparse() bool {
	return self.Flags&ATTR_FLAG_SPARSE != 0
}

func (self *Attribute) FormName() string {
	if self.NonResident {
		return "NON-RESIDENT"
	}
	return "RESIDENT"
}

// The logical size of the attribute's value.
func (self *Attribute) DataSize() int64 {
	if self.NonResident {
		return int64(self.RealSize)
	}
	return int64(self.ValueLength)
}

// The number of bytes the resolver returns: the value length for
// resident attributes, the valid data (initialized) length
// otherwise.
func (self *Attribute) ValidDataLength() int64 {
	if self.NonResident {
		return int64(self.InitializedSize)
	}
	return int64(self.ValueLength)
}

// The value of a resident attribute as a slice into the record.
func (self *Attribute) ResidentData() ([]byte, error) {
	if self.NonResident {
		return nil, errors.Wrapf(UnsupportedError,
			"%v is non-resident", self.Type)
	}

	result, err := getSlice(self.raw, int64(self.ValueOffset),
		int64(self.ValueLength))
	if err != nil {
		return nil, errors.Wrapf(err, "value of %v", self.Type)
	}
	return result, nil
}

func (self *Attribute) DebugString() string {
	result := fmt.Sprintf("struct Attribute @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  Type: %v\n", self.Type)
	result += fmt.Sprintf("  Length: %#0x\n", self.Length)
	result += fmt.Sprintf("  Form: %v\n", self.FormName())
	result += fmt.Sprintf("  Name: %q\n", self.Name)
	result += fmt.Sprintf("  Flags: %#0x\n", self.Flags)
	result += fmt.Sprintf("  Id: %#0x\n", self.Id)
	if self.NonResident {
		result += fmt.Sprintf("  StartVCN: %#0x\n", self.StartVCN)
		result += fmt.Sprintf("  LastVCN: %#0x\n", self.LastVCN)
		result += fmt.Sprintf("  RunListOffset: %#0x\n", self.RunListOffset)
		result += fmt.Sprintf("  CompressionUnit: %#0x\n", self.CompressionUnit)
		result += fmt.Sprintf("  AllocatedSize: %#0x\n", self.AllocatedSize)
		result += fmt.Sprintf("  RealSize: %#0x\n", self.RealSize)
		result += fmt.Sprintf("  InitializedSize: %#0x\n", self.InitializedSize)
	} else {
		result += fmt.Sprintf("  ValueLength: %#0x\n", self.ValueLength)
		result += fmt.Sprintf("  ValueOffset: %#0x\n", self.ValueOffset)
	}
	return result
}

// Walks the attribute stream of a record. Each call to
// MFTRecord.Attributes() returns a fresh iterator so walks are
// restartable and do not share state.
type AttributeIterator struct {
	record  *MFTRecord
	offset  int
	end     int
	current *Attribute
	err     error
	done    bool
}

func (self *MFTRecord) Attributes() *AttributeIterator {
	return &AttributeIterator{
		record: self,
		offset: int(self.Header.AttributeOffset),
		end:    self.usedSize(),
	}
}

func (self *AttributeIterator) fail(err error) bool {
	self.err = err
	self.done = true
	self.current = nil
	return false
}

// Advance to the next attribute. Returns false at the $END marker,
// at the end of the used region, or on error (see Err()).
func (self *AttributeIterator) Next() bool {
	if self.done {
		return false
	}

	buffer := self.record.Buffer[:self.end]
	offset := self.offset

	if offset >= len(buffer) {
		self.done = true
		return false
	}

	if offset+4 > len(buffer) {
		return self.fail(errors.Wrapf(TruncatedRecordError,
			"attribute type at %#x past used size %#x", offset, len(buffer)))
	}

	if AttributeType(binary.LittleEndian.Uint32(buffer[offset:])) == ATTR_TYPE_END {
		self.done = true
		return false
	}

	if offset+8 > len(buffer) {
		return self.fail(errors.Wrapf(TruncatedRecordError,
			"attribute length at %#x past used size %#x", offset, len(buffer)))
	}

	// The record length is the only way to advance so it must be
	// sane or we stop here.
	length := int64(binary.LittleEndian.Uint32(buffer[offset+4:]))
	if length == 0 {
		return self.fail(errors.Wrapf(MalformedAttributeError,
			"attribute at %#x has zero length", offset))
	}

	if length < attributeCommonHeaderSize {
		return self.fail(errors.Wrapf(MalformedAttributeError,
			"attribute at %#x has length %#x", offset, length))
	}

	if int64(offset)+length > int64(len(buffer)) {
		return self.fail(errors.Wrapf(TruncatedRecordError,
			"attribute at %#x of length %#x exceeds used size %#x",
			offset, length, len(buffer)))
	}

	attr, err := ParseAttribute(buffer[offset:offset+int(length)], offset)
	if err != nil {
		return self.fail(err)
	}

	STATS.Inc_AttributesWalked()
	self.current = attr
	self.offset += int(length)
	return true
}

func (self *AttributeIterator) Attribute() *Attribute {
	return self.current
}

func (self *AttributeIterator) Err() error {
	return self.err
}

// Collect all attributes in the record. On a walk error, the
// attributes decoded before the error are returned with the error.
func (self *MFTRecord) EnumerateAttributes() ([]*Attribute, error) {
	result := make([]*Attribute, 0, 16)

	it := self.Attributes()
	for it.Next() {
		result = append(result, it.Attribute())
	}

	return result, it.Err()
}

// Find the first attribute of a type with the given name ("" for
// the unnamed stream). Non-resident attributes split into several
// VCN ranges are found through their first piece.
func (self *MFTRecord) GetAttribute(
	attr_type AttributeType, name string) (*Attribute, error) {
	it := self.Attributes()
	for it.Next() {
		attr := it.Attribute()
		if attr.Type == attr_type && attr.Name == name &&
			attr.StartVCN == 0 {
			return attr, nil
		}
	}

	if it.Err() != nil {
		return nil, it.Err()
	}

	return nil, errors.Errorf("Attribute %v:%v not found in record %d",
		attr_type, name, self.Index)
}

// All attributes of a type, in stream order.
func (self *MFTRecord) GetAttributes(attr_type AttributeType) []*Attribute {
	result := []*Attribute{}
	it := self.Attributes()
	for it.Next() {
		if it.Attribute().Type == attr_type {
			result = append(result, it.Attribute())
		}
	}
	return result
}
