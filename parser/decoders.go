package parser

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
)

// The decoded value of an attribute. Each attribute type decodes to
// its own variant.
type AttributeValue interface {
	Overview() *ordereddict.Dict
}

type decoderFunc func(ntfs *NTFSContext, record *MFTRecord,
	attr *Attribute) (AttributeValue, error)

// Types which must be resident. A non-resident copy of one of these
// is reported as Unsupported.
var residentOnly = map[AttributeType]bool{
	ATTR_TYPE_STANDARD_INFORMATION: true,
	ATTR_TYPE_FILE_NAME:            true,
	ATTR_TYPE_OBJECT_ID:            true,
	ATTR_TYPE_INDEX_ROOT:           true,
	ATTR_TYPE_VOLUME_NAME:          true,
	ATTR_TYPE_VOLUME_INFORMATION:   true,
}

var decoders = map[AttributeType]decoderFunc{
	ATTR_TYPE_STANDARD_INFORMATION: decodeStandardInformation,
	ATTR_TYPE_ATTRIBUTE_LIST:       decodeAttributeList,
	ATTR_TYPE_FILE_NAME:            decodeFileName,
	ATTR_TYPE_OBJECT_ID:            decodeObjectId,
	ATTR_TYPE_SECURITY_DESCRIPTOR:  decodeSecurityDescriptor,
	ATTR_TYPE_VOLUME_NAME:          decodeVolumeName,
	ATTR_TYPE_VOLUME_INFORMATION:   decodeVolumeInformation,
	ATTR_TYPE_DATA:                 decodeDataStream,
	ATTR_TYPE_INDEX_ROOT:           decodeIndexRoot,
	ATTR_TYPE_INDEX_ALLOCATION:     decodeIndexAllocation,
	ATTR_TYPE_BITMAP:               decodeBitmap,
	ATTR_TYPE_REPARSE_POINT:        decodeReparsePoint,
}

// Marks a recognized attribute form which is not decoded.
type Unsupported struct {
	Type   AttributeType
	Reason string
}

func (self *Unsupported) Overview() *ordereddict.Dict {
	return ordereddict.NewDict().Set("Unsupported", self.Reason)
}

// Decode the attribute's value into its typed view. Errors are
// scoped to this attribute: callers record them and carry on with
// the next attribute.
func DecodeAttribute(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	decoder, pres := decoders[attr.Type]
	if !pres {
		return &Unsupported{Type: attr.Type, Reason: "NYI attribute type"}, nil
	}

	if attr.NonResident && residentOnly[attr.Type] {
		return &Unsupported{
			Type:   attr.Type,
			Reason: fmt.Sprintf("Non-resident %v is not supported", attr.Type),
		}, nil
	}

	result, err := decoder(ntfs, record, attr)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %v", attr.Type)
	}

	STATS.Inc_AttributesDecoded()
	return result, nil
}

// Permission bits of $STANDARD_INFORMATION and $FILE_NAME.
const (
	FILE_ATTRIBUTE_READONLY            = 0x0001
	FILE_ATTRIBUTE_HIDDEN              = 0x0002
	FILE_ATTRIBUTE_SYSTEM              = 0x0004
	FILE_ATTRIBUTE_ARCHIVE             = 0x0020
	FILE_ATTRIBUTE_DEVICE              = 0x0040
	FILE_ATTRIBUTE_NORMAL              = 0x0080
	FILE_ATTRIBUTE_TEMPORARY           = 0x0100
	FILE_ATTRIBUTE_SPARSE_FILE         = 0x0200
	FILE_ATTRIBUTE_REPARSE_POINT       = 0x0400
	FILE_ATTRIBUTE_COMPRESSED          = 0x0800
	FILE_ATTRIBUTE_OFFLINE             = 0x1000
	FILE_ATTRIBUTE_NOT_CONTENT_INDEXED = 0x2000
	FILE_ATTRIBUTE_ENCRYPTED           = 0x4000
	FILE_ATTRIBUTE_DIRECTORY           = 0x10000000
)

var permissionNames = []struct {
	name string
	mask uint32
}{
	{"read_only", FILE_ATTRIBUTE_READONLY},
	{"hidden", FILE_ATTRIBUTE_HIDDEN},
	{"system", FILE_ATTRIBUTE_SYSTEM},
	{"device", FILE_ATTRIBUTE_DEVICE},
	{"normal", FILE_ATTRIBUTE_NORMAL},
	{"temporary", FILE_ATTRIBUTE_TEMPORARY},
	{"sparse", FILE_ATTRIBUTE_SPARSE_FILE},
	{"reparse_point", FILE_ATTRIBUTE_REPARSE_POINT},
	{"compressed", FILE_ATTRIBUTE_COMPRESSED},
	{"offline", FILE_ATTRIBUTE_OFFLINE},
	{"not_indexed", FILE_ATTRIBUTE_NOT_CONTENT_INDEXED},
	{"encrypted", FILE_ATTRIBUTE_ENCRYPTED},
}

type FilePermissions uint32

func (self FilePermissions) IsSet(mask uint32) bool {
	return uint32(self)&mask != 0
}

// Each permission as 0 or 1.
func (self FilePermissions) Dict() *ordereddict.Dict {
	result := ordereddict.NewDict()
	for _, item := range permissionNames {
		value := 0
		if self.IsSet(item.mask) {
			value = 1
		}
		result.Set(item.name, value)
	}
	return result
}

const (
	standardInformationSize   = 48
	standardInformationV3Size = 72
)

type StandardInformation struct {
	CreateTime   WinFileTime
	AlterTime    WinFileTime
	MFTTime      WinFileTime
	ReadTime     WinFileTime
	Permissions  FilePermissions
	MaxVersionNo uint32
	VersionNo    uint32

	// NTFS 3.x extension.
	HasExtension bool
	ClassId      uint32
	OwnerId      uint32
	SecurityId   uint32
	QuotaCharged uint64
	USN          uint64
}

func ParseStandardInformation(buffer []byte) (*StandardInformation, error) {
	err := needBytes(buffer, standardInformationSize, "$STANDARD_INFORMATION")
	if err != nil {
		return nil, err
	}

	result := &StandardInformation{
		CreateTime:   parseFileTime(buffer, 0),
		AlterTime:    parseFileTime(buffer, 8),
		MFTTime:      parseFileTime(buffer, 16),
		ReadTime:     parseFileTime(buffer, 24),
		Permissions:  FilePermissions(binary.LittleEndian.Uint32(buffer[32:])),
		MaxVersionNo: binary.LittleEndian.Uint32(buffer[36:]),
		VersionNo:    binary.LittleEndian.Uint32(buffer[40:]),
		ClassId:      binary.LittleEndian.Uint32(buffer[44:]),
	}

	if len(buffer) >= standardInformationV3Size {
		result.HasExtension = true
		result.OwnerId = binary.LittleEndian.Uint32(buffer[48:])
		result.SecurityId = binary.LittleEndian.Uint32(buffer[52:])
		result.QuotaCharged = binary.LittleEndian.Uint64(buffer[56:])
		result.USN = binary.LittleEndian.Uint64(buffer[64:])
	}

	return result, nil
}

func (self *StandardInformation) Overview() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("File Created Time", self.CreateTime.String()).
		Set("Last File Write Time", self.AlterTime.String()).
		Set("FileRecord Changed Time", self.MFTTime.String()).
		Set("Last Access Time", self.ReadTime.String()).
		Set("Permissions", self.Permissions.Dict()).
		Set("Max Number of Versions", self.MaxVersionNo).
		Set("Version Number", self.VersionNo)

	if self.HasExtension {
		result.Set("Owner Id", self.OwnerId).
			Set("Security Id", self.SecurityId).
			Set("Quota Charged", self.QuotaCharged).
			Set("Update Sequence Number", self.USN)
	}
	return result
}

func decodeStandardInformation(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}
	return ParseStandardInformation(data)
}

type NameType uint8

const (
	NAME_TYPE_POSIX     NameType = 0
	NAME_TYPE_WIN32     NameType = 1
	NAME_TYPE_DOS       NameType = 2
	NAME_TYPE_DOS_WIN32 NameType = 3
)

func (self NameType) String() string {
	switch self {
	case NAME_TYPE_POSIX:
		return "POSIX"
	case NAME_TYPE_WIN32:
		return "Win32"
	case NAME_TYPE_DOS:
		return "DOS"
	case NAME_TYPE_DOS_WIN32:
		return "DOS+Win32"
	}
	return fmt.Sprintf("Unknown (%d)", uint8(self))
}

const fileNameHeaderSize = 66

type FileName struct {
	ParentReference FileReference
	CreationTime    WinFileTime
	LastWriteTime   WinFileTime
	ChangeTime      WinFileTime
	LastAccessTime  WinFileTime
	AllocatedSize   uint64
	RealSize        uint64
	Flags           FilePermissions
	NameLength      uint8
	NameType        NameType
	Name            string
}

// Decode a $FILE_NAME structure. The same layout is embedded as the
// key of directory index entries.
func ParseFileName(buffer []byte) (*FileName, error) {
	err := needBytes(buffer, fileNameHeaderSize, "$FILE_NAME")
	if err != nil {
		return nil, err
	}

	result := &FileName{
		ParentReference: FileReference(binary.LittleEndian.Uint64(buffer[0:])),
		CreationTime:    parseFileTime(buffer, 8),
		LastWriteTime:   parseFileTime(buffer, 16),
		ChangeTime:      parseFileTime(buffer, 24),
		LastAccessTime:  parseFileTime(buffer, 32),
		AllocatedSize:   binary.LittleEndian.Uint64(buffer[40:]),
		RealSize:        binary.LittleEndian.Uint64(buffer[48:]),
		Flags:           FilePermissions(binary.LittleEndian.Uint32(buffer[56:])),
		NameLength:      buffer[64],
		NameType:        NameType(buffer[65]),
	}

	name, err := getSlice(buffer, fileNameHeaderSize, int64(result.NameLength)*2)
	if err != nil {
		return nil, errors.Wrap(err, "$FILE_NAME name")
	}
	result.Name = ParseUTF16String(name)

	return result, nil
}

func (self *FileName) Overview() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Parent Dir Record Index", self.ParentReference.RecordNumber()).
		Set("Parent Dir Sequence Num", self.ParentReference.Sequence()).
		Set("File Created Time", self.CreationTime.String()).
		Set("Last File Write Time", self.LastWriteTime.String()).
		Set("FileRecord Changed Time", self.ChangeTime.String()).
		Set("Last Access Time", self.LastAccessTime.String()).
		Set("Allocated Size", self.AllocatedSize).
		Set("Real Size", self.RealSize).
		Set("Name Type", self.NameType.String()).
		Set("Name", self.Name)
}

func decodeFileName(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}
	return ParseFileName(data)
}

type ObjectId struct {
	ObjectId GUID

	// Only present in the 64 byte form.
	BirthVolumeId GUID
	BirthObjectId GUID
	DomainId      GUID
}

func ParseObjectId(buffer []byte) (*ObjectId, error) {
	err := needBytes(buffer, 16, "$OBJECT_ID")
	if err != nil {
		return nil, err
	}

	result := &ObjectId{}
	copy(result.ObjectId[:], buffer[0:16])
	if len(buffer) >= 64 {
		copy(result.BirthVolumeId[:], buffer[16:32])
		copy(result.BirthObjectId[:], buffer[32:48])
		copy(result.DomainId[:], buffer[48:64])
	}
	return result, nil
}

func (self *ObjectId) Overview() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("Object Unique ID", self.ObjectId.String())

	if !self.BirthVolumeId.IsZero() {
		result.Set("Birth Volume ID", self.BirthVolumeId.String())
	}
	if !self.BirthObjectId.IsZero() {
		result.Set("Birth Object ID", self.BirthObjectId.String())
	}
	if !self.DomainId.IsZero() {
		result.Set("Domain ID", self.DomainId.String())
	}
	return result
}

func decodeObjectId(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}
	return ParseObjectId(data)
}

// Counts the set bits of a $BITMAP: each bit marks an index block
// (or MFT record) in use.
type Bitmap struct {
	Length    int
	BitsInUse int
}

func ParseBitmap(buffer []byte) *Bitmap {
	result := &Bitmap{Length: len(buffer)}
	for _, b := range buffer {
		result.BitsInUse += bits.OnesCount8(b)
	}
	return result
}

func (self *Bitmap) Overview() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Index Node Used", self.BitsInUse)
}

func decodeBitmap(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.Data(ntfs)
	if err != nil {
		return nil, err
	}
	return ParseBitmap(data), nil
}

// A $DATA stream. The content is not read: only the name and the
// size of the stream are reported.
type DataStream struct {
	Name     string
	DataSize int64
}

func (self *DataStream) Overview() *ordereddict.Dict {
	result := ordereddict.NewDict()
	if self.Name != "" {
		result.Set("Name", self.Name)
	}
	return result.Set("Data Size", fmt.Sprintf("%d (%s)",
		self.DataSize, FormatSize(self.DataSize)))
}

// The size of a stream is stored in its first piece, so later VCN
// ranges look it up by name.
func decodeDataStream(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	result := &DataStream{
		Name:     attr.Name,
		DataSize: attr.DataSize(),
	}

	if attr.NonResident && attr.StartVCN != 0 {
		first, err := record.GetAttribute(ATTR_TYPE_DATA, attr.Name)
		if err == nil {
			result.DataSize = first.DataSize()
		}
	}
	return result, nil
}

func decodeAttributeList(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.Data(ntfs)
	if err != nil {
		return nil, err
	}

	entries, err := ParseAttributeList(data)
	if err != nil {
		return nil, err
	}
	return &AttributeList{Entries: entries}, nil
}

type VolumeName struct {
	Name string
}

func (self *VolumeName) Overview() *ordereddict.Dict {
	return ordereddict.NewDict().Set("Volume Name", self.Name)
}

func decodeVolumeName(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}
	return &VolumeName{Name: ParseUTF16String(data)}, nil
}

type VolumeInformation struct {
	MajorVersion uint8
	MinorVersion uint8
	Flags        uint16
}

var volumeFlagNames = []struct {
	name string
	mask uint16
}{
	{"DIRTY", 0x0001},
	{"RESIZE_LOG_FILE", 0x0002},
	{"UPGRADE_ON_MOUNT", 0x0004},
	{"MOUNTED_ON_NT4", 0x0008},
	{"DELETE_USN_UNDERWAY", 0x0010},
	{"REPAIR_OBJECT_ID", 0x0020},
	{"CHKDSK_UNDERWAY", 0x4000},
	{"MODIFIED_BY_CHKDSK", 0x8000},
}

func (self *VolumeInformation) FlagNames() []string {
	result := []string{}
	for _, item := range volumeFlagNames {
		if self.Flags&item.mask != 0 {
			result = append(result, item.name)
		}
	}
	return result
}

func (self *VolumeInformation) Overview() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Version", fmt.Sprintf("%d.%d", self.MajorVersion, self.MinorVersion)).
		Set("Flags", self.FlagNames())
}

func decodeVolumeInformation(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}

	err = needBytes(data, 12, "$VOLUME_INFORMATION")
	if err != nil {
		return nil, err
	}

	return &VolumeInformation{
		MajorVersion: data[8],
		MinorVersion: data[9],
		Flags:        binary.LittleEndian.Uint16(data[10:]),
	}, nil
}

// Human readable size, eg. "1.50 KiB".
func FormatSize(size int64) string {
	units := []string{"bytes", "KiB", "MiB", "GiB", "TiB", "PiB"}
	if size < 1024 {
		return fmt.Sprintf("%d %s", size, units[0])
	}

	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, units[unit])
}
