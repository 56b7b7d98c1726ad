package parser

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
)

// Security descriptor control bits.
const (
	SE_OWNER_DEFAULTED       = 0x0001
	SE_GROUP_DEFAULTED       = 0x0002
	SE_DACL_PRESENT          = 0x0004
	SE_DACL_DEFAULTED        = 0x0008
	SE_SACL_PRESENT          = 0x0010
	SE_SACL_DEFAULTED        = 0x0020
	SE_DACL_AUTO_INHERIT_REQ = 0x0100
	SE_SACL_AUTO_INHERIT_REQ = 0x0200
	SE_DACL_AUTO_INHERITED   = 0x0400
	SE_SACL_AUTO_INHERITED   = 0x0800
	SE_DACL_PROTECTED        = 0x1000
	SE_SACL_PROTECTED        = 0x2000
	SE_RM_CONTROL_VALID      = 0x4000
	SE_SELF_RELATIVE         = 0x8000

	securityDescriptorHeaderSize = 20
	aclHeaderSize                = 8
)

var controlFlagNames = []struct {
	name string
	mask uint16
}{
	{"owner defaulted", SE_OWNER_DEFAULTED},
	{"group defaulted", SE_GROUP_DEFAULTED},
	{"DACL present", SE_DACL_PRESENT},
	{"DACL defaulted", SE_DACL_DEFAULTED},
	{"SACL present", SE_SACL_PRESENT},
	{"SACL defaulted", SE_SACL_DEFAULTED},
	{"DACL auto inherit req", SE_DACL_AUTO_INHERIT_REQ},
	{"SACL auto inherit req", SE_SACL_AUTO_INHERIT_REQ},
	{"DACL auto inherit", SE_DACL_AUTO_INHERITED},
	{"SACL auto inherit", SE_SACL_AUTO_INHERITED},
	{"DACL protected", SE_DACL_PROTECTED},
	{"SACL protected", SE_SACL_PROTECTED},
	{"RM control valid", SE_RM_CONTROL_VALID},
	{"self relative", SE_SELF_RELATIVE},
}

// SDDL aliases for well known SIDs.
var sidAliases = map[string]string{
	"S-1-1-0":      "WD",
	"S-1-3-0":      "CO",
	"S-1-3-1":      "CG",
	"S-1-5-2":      "NU",
	"S-1-5-4":      "IU",
	"S-1-5-6":      "SU",
	"S-1-5-7":      "AN",
	"S-1-5-9":      "ED",
	"S-1-5-10":     "PS",
	"S-1-5-11":     "AU",
	"S-1-5-12":     "RC",
	"S-1-5-18":     "SY",
	"S-1-5-19":     "LS",
	"S-1-5-20":     "NS",
	"S-1-5-32-544": "BA",
	"S-1-5-32-545": "BU",
	"S-1-5-32-546": "BG",
	"S-1-5-32-547": "PU",
	"S-1-5-32-548": "AO",
	"S-1-5-32-549": "SO",
	"S-1-5-32-550": "PO",
	"S-1-5-32-551": "BO",
	"S-1-5-32-552": "RE",
	"S-1-5-32-554": "RU",
	"S-1-5-32-555": "RD",
	"S-1-5-32-556": "NO",
	"S-1-15-2-1":   "AC",
	"S-1-16-4096":  "LW",
	"S-1-16-8192":  "ME",
	"S-1-16-12288": "HI",
	"S-1-16-16384": "SI",
}

var aceTypeNames = map[uint8]string{
	0x00: "A",
	0x01: "D",
	0x02: "AU",
	0x03: "AL",
	0x05: "OA",
	0x06: "OD",
	0x07: "OU",
	0x08: "OL",
	0x11: "ML",
}

var aceFlagNames = []struct {
	name string
	mask uint8
}{
	{"OI", 0x01},
	{"CI", 0x02},
	{"NP", 0x04},
	{"IO", 0x08},
	{"ID", 0x10},
	{"SA", 0x40},
	{"FA", 0x80},
}

// Access masks which have a single SDDL alias.
var accessMaskAliases = map[uint32]string{
	0x001F01FF: "FA",
	0x00120089: "FR",
	0x00120116: "FW",
	0x001200A0: "FX",
	0x000F003F: "KA",
	0x00020019: "KR",
	0x00020006: "KW",
}

var accessBitNames = []struct {
	name string
	mask uint32
}{
	{"GA", 0x10000000},
	{"GR", 0x80000000},
	{"GW", 0x40000000},
	{"GX", 0x20000000},
	{"RC", 0x00020000},
	{"SD", 0x00010000},
	{"WD", 0x00040000},
	{"WO", 0x00080000},
	{"RP", 0x00000010},
	{"WP", 0x00000020},
	{"CC", 0x00000001},
	{"DC", 0x00000002},
	{"LC", 0x00000004},
	{"SW", 0x00000008},
	{"LO", 0x00000080},
	{"DT", 0x00000040},
	{"CR", 0x00000100},
}

// Decode a SID into its S-1-... form.
func ParseSID(buffer []byte) (string, int, error) {
	err := needBytes(buffer, 8, "SID")
	if err != nil {
		return "", 0, err
	}

	revision := buffer[0]
	count := int(buffer[1])
	size := 8 + 4*count

	err = needBytes(buffer, size, "SID sub authorities")
	if err != nil {
		return "", 0, err
	}

	var authority uint64
	for _, b := range buffer[2:8] {
		authority = authority<<8 | uint64(b)
	}

	result := fmt.Sprintf("S-%d-%d", revision, authority)
	if authority >= 1<<32 {
		result = fmt.Sprintf("S-%d-%#012x", revision, authority)
	}

	for i := 0; i < count; i++ {
		result += fmt.Sprintf("-%d", binary.LittleEndian.Uint32(buffer[8+4*i:]))
	}

	return result, size, nil
}

func sddlSID(sid string) string {
	alias, pres := sidAliases[sid]
	if pres {
		return alias
	}
	return sid
}

func sddlAccessMask(mask uint32) string {
	alias, pres := accessMaskAliases[mask]
	if pres {
		return alias
	}

	result := ""
	remaining := mask
	for _, item := range accessBitNames {
		if remaining&item.mask != 0 {
			result += item.name
			remaining &^= item.mask
		}
	}

	// Some bits have no alias.
	if remaining != 0 || result == "" {
		return fmt.Sprintf("0x%x", mask)
	}
	return result
}

func guidAt(buffer []byte, offset int) string {
	var guid GUID
	copy(guid[:], buffer[offset:offset+16])
	return strings.Trim(strings.ToLower(guid.String()), "{}")
}

// Render one ACE in SDDL form.
func parseACE(buffer []byte) (string, error) {
	ace_type := buffer[0]
	ace_flags := buffer[1]

	type_name, pres := aceTypeNames[ace_type]
	if !pres {
		return "", errors.Wrapf(UnsupportedError, "ACE type %#x", ace_type)
	}

	flags := ""
	for _, item := range aceFlagNames {
		if ace_flags&item.mask != 0 {
			flags += item.name
		}
	}

	err := needBytes(buffer, 8, "ACE")
	if err != nil {
		return "", err
	}
	mask := binary.LittleEndian.Uint32(buffer[4:])

	object_type := ""
	inherited_type := ""
	sid_offset := 8

	switch ace_type {
	case 0x05, 0x06, 0x07, 0x08:
		err := needBytes(buffer, 12, "object ACE")
		if err != nil {
			return "", err
		}
		object_flags := binary.LittleEndian.Uint32(buffer[8:])
		sid_offset = 12

		if object_flags&1 != 0 {
			err := needBytes(buffer, sid_offset+16, "object ACE type")
			if err != nil {
				return "", err
			}
			object_type = guidAt(buffer, sid_offset)
			sid_offset += 16
		}

		if object_flags&2 != 0 {
			err := needBytes(buffer, sid_offset+16, "object ACE inherited type")
			if err != nil {
				return "", err
			}
			inherited_type = guidAt(buffer, sid_offset)
			sid_offset += 16
		}
	}

	sid, _, err := ParseSID(buffer[sid_offset:])
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("(%s;%s;%s;%s;%s;%s)", type_name, flags,
		sddlAccessMask(mask), object_type, inherited_type, sddlSID(sid)), nil
}

// Render an ACL in SDDL form, e.g. "D:PAI(A;OICI;FA;;;SY)".
func ParseACL(buffer []byte, prefix string, control uint16) (string, error) {
	err := needBytes(buffer, aclHeaderSize, "ACL")
	if err != nil {
		return "", err
	}

	acl_size := int64(binary.LittleEndian.Uint16(buffer[2:]))
	ace_count := int(binary.LittleEndian.Uint16(buffer[4:]))

	acl, err := getSlice(buffer, 0, acl_size)
	if err != nil {
		return "", errors.Wrap(err, "ACL")
	}

	result := prefix + ":"
	switch prefix {
	case "D":
		if control&SE_DACL_PROTECTED != 0 {
			result += "P"
		}
		if control&SE_DACL_AUTO_INHERIT_REQ != 0 {
			result += "AR"
		}
		if control&SE_DACL_AUTO_INHERITED != 0 {
			result += "AI"
		}
	case "S":
		if control&SE_SACL_PROTECTED != 0 {
			result += "P"
		}
		if control&SE_SACL_AUTO_INHERIT_REQ != 0 {
			result += "AR"
		}
		if control&SE_SACL_AUTO_INHERITED != 0 {
			result += "AI"
		}
	}

	offset := int64(aclHeaderSize)
	for i := 0; i < ace_count; i++ {
		header, err := getSlice(acl, offset, 4)
		if err != nil {
			return result, errors.Wrapf(err, "ACE %d", i)
		}

		ace_size := int64(binary.LittleEndian.Uint16(header[2:]))
		if ace_size < 4 {
			return result, errors.Wrapf(MalformedAttributeError,
				"ACE %d has size %d", i, ace_size)
		}

		ace, err := getSlice(acl, offset, ace_size)
		if err != nil {
			return result, errors.Wrapf(err, "ACE %d", i)
		}

		text, err := parseACE(ace)
		if err != nil {
			return result, errors.Wrapf(err, "ACE %d", i)
		}
		result += text
		offset += ace_size
	}

	return result, nil
}

type SecurityDescriptor struct {
	Revision uint8
	Control  uint16

	OwnerSID string
	GroupSID string

	// SDDL strings, empty when not present.
	SACL string
	DACL string
}

func (self *SecurityDescriptor) ControlFlags() *ordereddict.Dict {
	result := ordereddict.NewDict()
	for _, item := range controlFlagNames {
		value := 0
		if self.Control&item.mask != 0 {
			value = 1
		}
		result.Set(item.name, value)
	}
	return result
}

func notPresent(value string) string {
	if value == "" {
		return "not present"
	}
	return value
}

func (self *SecurityDescriptor) Overview() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Revision", self.Revision).
		Set("Control Flags", self.ControlFlags()).
		Set("User SID", notPresent(self.OwnerSID)).
		Set("Group SID", notPresent(self.GroupSID)).
		Set("SACL", notPresent(self.SACL)).
		Set("DACL", notPresent(self.DACL))
}

// Decode a self-relative security descriptor. An ACL is rendered
// only when its present bit is set and its offset is not zero.
func ParseSecurityDescriptor(buffer []byte) (*SecurityDescriptor, error) {
	err := needBytes(buffer, securityDescriptorHeaderSize, "$SECURITY_DESCRIPTOR")
	if err != nil {
		return nil, err
	}

	result := &SecurityDescriptor{
		Revision: buffer[0],
		Control:  binary.LittleEndian.Uint16(buffer[2:]),
	}

	owner_offset := int(binary.LittleEndian.Uint32(buffer[4:]))
	group_offset := int(binary.LittleEndian.Uint32(buffer[8:]))
	sacl_offset := int(binary.LittleEndian.Uint32(buffer[12:]))
	dacl_offset := int(binary.LittleEndian.Uint32(buffer[16:]))

	sidAt := func(offset int, what string) (string, error) {
		if offset == 0 {
			return "", nil
		}
		if offset >= len(buffer) {
			return "", errors.Wrapf(TruncatedRecordError,
				"%s offset %#x past descriptor of %#x bytes",
				what, offset, len(buffer))
		}
		sid, _, err := ParseSID(buffer[offset:])
		return sid, err
	}

	result.OwnerSID, err = sidAt(owner_offset, "owner SID")
	if err != nil {
		return nil, err
	}

	result.GroupSID, err = sidAt(group_offset, "group SID")
	if err != nil {
		return nil, err
	}

	aclAt := func(offset int, prefix string) (string, error) {
		if offset >= len(buffer) {
			return "", errors.Wrapf(TruncatedRecordError,
				"%sACL offset %#x past descriptor of %#x bytes",
				prefix, offset, len(buffer))
		}
		return ParseACL(buffer[offset:], prefix, result.Control)
	}

	if result.Control&SE_SACL_PRESENT != 0 && sacl_offset != 0 {
		result.SACL, err = aclAt(sacl_offset, "S")
		if err != nil {
			return nil, err
		}
	}

	if result.Control&SE_DACL_PRESENT != 0 && dacl_offset != 0 {
		result.DACL, err = aclAt(dacl_offset, "D")
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func decodeSecurityDescriptor(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.Data(ntfs)
	if err != nil {
		return nil, err
	}
	return ParseSecurityDescriptor(data)
}
