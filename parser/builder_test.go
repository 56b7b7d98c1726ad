package parser

import (
	"bytes"
	"encoding/binary"
)

// Builds small synthetic NTFS volumes for the tests. Structures are
// written the way Windows lays them out on disk, including the update
// sequence protection, so reading them back goes through the full
// decoding path.

const (
	testSectorSize  = 512
	testClusterSize = 1024
	testRecordSize  = 1024
	testIndexSize   = 4096
	testMFTCluster  = 16
	testMFTRecords  = 32
	testClusters    = 256

	// 2020-01-01 00:00:00 UTC
	testFileTime = 132223104000000000
)

func align8(x int) int {
	return (x + 7) &^ 7
}

func testRef(record uint64) FileReference {
	return FileReference(record | 1<<48)
}

// Protect a multi-sector structure: the last two bytes of each
// sector move into the update sequence array and are replaced by the
// sequence number.
func protectTestStructure(buf []byte, usn uint16) {
	usa_offset := int(binary.LittleEndian.Uint16(buf[4:]))
	count := int(binary.LittleEndian.Uint16(buf[6:]))

	binary.LittleEndian.PutUint16(buf[usa_offset:], usn)
	for i := 1; i < count; i++ {
		end := i*FIXUP_SECTOR_SIZE - 2
		copy(buf[usa_offset+2*i:], buf[end:end+2])
		binary.LittleEndian.PutUint16(buf[end:], usn)
	}
}

func minimalUnsigned(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	n := 8
	for n > 1 && buf[n-1] == 0 {
		n--
	}
	return buf[:n]
}

// The shortest little endian encoding which still sign extends to v.
func minimalSigned(v int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	n := 8
	for n > 1 {
		top, next := buf[n-1], buf[n-2]
		if (top == 0 && next&0x80 == 0) || (top == 0xff && next&0x80 != 0) {
			n--
			continue
		}
		break
	}
	return buf[:n]
}

func encodeRunList(runs []Run) []byte {
	result := []byte{}
	for _, run := range runs {
		length := minimalUnsigned(run.Length)
		offset := []byte{}
		if !run.Sparse {
			offset = minimalSigned(run.RelativeUrnOffset)
		}
		result = append(result, byte(len(offset)<<4|len(length)))
		result = append(result, length...)
		result = append(result, offset...)
	}
	return append(result, 0)
}

type testAttribute struct {
	attr_type AttributeType
	name      string
	flags     uint16

	// Resident value. Used when runs is nil.
	value []byte

	runs             []Run
	start_vcn        uint64
	last_vcn         uint64
	allocated_size   uint64
	real_size        uint64
	initialized_size uint64
	compression_unit uint16
}

func residentAttribute(attr_type AttributeType, name string, value []byte) *testAttribute {
	return &testAttribute{attr_type: attr_type, name: name, value: value}
}

// A non-resident attribute whose runs cover its allocated size.
func nonResidentAttribute(attr_type AttributeType, name string,
	runs []Run, real_size uint64) *testAttribute {
	clusters := uint64(0)
	for _, run := range runs {
		clusters += uint64(run.Length)
	}

	return &testAttribute{
		attr_type:        attr_type,
		name:             name,
		runs:             runs,
		last_vcn:         clusters - 1,
		allocated_size:   clusters * testClusterSize,
		real_size:        real_size,
		initialized_size: real_size,
	}
}

func (self *testAttribute) encode(id uint16) []byte {
	name := EncodeUTF16String(self.name)

	if self.runs == nil {
		value_offset := align8(attributeResidentHeaderSize + len(name))
		length := align8(value_offset + len(self.value))

		buf := make([]byte, length)
		binary.LittleEndian.PutUint32(buf[0:], uint32(self.attr_type))
		binary.LittleEndian.PutUint32(buf[4:], uint32(length))
		buf[8] = RESIDENT_FORM
		buf[9] = byte(len(name) / 2)
		binary.LittleEndian.PutUint16(buf[10:], attributeResidentHeaderSize)
		binary.LittleEndian.PutUint16(buf[12:], self.flags)
		binary.LittleEndian.PutUint16(buf[14:], id)
		binary.LittleEndian.PutUint32(buf[16:], uint32(len(self.value)))
		binary.LittleEndian.PutUint16(buf[20:], uint16(value_offset))
		copy(buf[attributeResidentHeaderSize:], name)
		copy(buf[value_offset:], self.value)
		return buf
	}

	header_size := attributeNonResidentHeaderSize
	if self.compression_unit > 0 {
		header_size += 8
	}

	run_list := encodeRunList(self.runs)
	run_list_offset := align8(header_size + len(name))
	length := align8(run_list_offset + len(run_list))

	buf := make([]byte, length)
	binary.LittleEndian.PutUint32(buf[0:], uint32(self.attr_type))
	binary.LittleEndian.PutUint32(buf[4:], uint32(length))
	buf[8] = NON_RESIDENT_FORM
	buf[9] = byte(len(name) / 2)
	binary.LittleEndian.PutUint16(buf[10:], uint16(header_size))
	binary.LittleEndian.PutUint16(buf[12:], self.flags)
	binary.LittleEndian.PutUint16(buf[14:], id)
	binary.LittleEndian.PutUint64(buf[16:], self.start_vcn)
	binary.LittleEndian.PutUint64(buf[24:], self.last_vcn)
	binary.LittleEndian.PutUint16(buf[32:], uint16(run_list_offset))
	binary.LittleEndian.PutUint16(buf[34:], self.compression_unit)
	binary.LittleEndian.PutUint64(buf[40:], self.allocated_size)
	binary.LittleEndian.PutUint64(buf[48:], self.real_size)
	binary.LittleEndian.PutUint64(buf[56:], self.initialized_size)
	if self.compression_unit > 0 {
		binary.LittleEndian.PutUint64(buf[64:], self.allocated_size)
	}
	copy(buf[header_size:], name)
	copy(buf[run_list_offset:], run_list)
	return buf
}

type testRecord struct {
	flags      RecordFlags
	base       FileReference
	attributes []*testAttribute
}

// The record as stored on disk. Attribute ids follow the attribute
// order.
func (self *testRecord) encode(index uint32) []byte {
	buf := make([]byte, testRecordSize)
	copy(buf, MFT_RECORD_MAGIC)

	usa_count := testRecordSize/FIXUP_SECTOR_SIZE + 1
	attribute_offset := align8(MFT_RECORD_HEADER_SIZE + 2*usa_count)

	binary.LittleEndian.PutUint16(buf[4:], MFT_RECORD_HEADER_SIZE)
	binary.LittleEndian.PutUint16(buf[6:], uint16(usa_count))
	binary.LittleEndian.PutUint64(buf[8:], 0x1000+uint64(index))
	binary.LittleEndian.PutUint16(buf[16:], 1)
	binary.LittleEndian.PutUint16(buf[18:], 1)
	binary.LittleEndian.PutUint16(buf[20:], uint16(attribute_offset))
	binary.LittleEndian.PutUint16(buf[22:], uint16(self.flags))

	offset := attribute_offset
	for i, attr := range self.attributes {
		data := attr.encode(uint16(i))
		if offset+len(data)+8 > len(buf) {
			panic("test record overflow")
		}
		copy(buf[offset:], data)
		offset += len(data)
	}
	binary.LittleEndian.PutUint32(buf[offset:], uint32(ATTR_TYPE_END))
	offset += 8

	binary.LittleEndian.PutUint32(buf[24:], uint32(offset))
	binary.LittleEndian.PutUint32(buf[28:], testRecordSize)
	binary.LittleEndian.PutUint64(buf[32:], uint64(self.base))
	binary.LittleEndian.PutUint16(buf[40:], uint16(len(self.attributes)))
	binary.LittleEndian.PutUint32(buf[44:], index)

	protectTestStructure(buf, 0x0001)
	return buf
}

func buildStandardInformation(create_time uint64, permissions uint32) []byte {
	buf := make([]byte, standardInformationV3Size)
	binary.LittleEndian.PutUint64(buf[0:], create_time)
	binary.LittleEndian.PutUint64(buf[8:], testFileTime)
	binary.LittleEndian.PutUint64(buf[16:], testFileTime)
	binary.LittleEndian.PutUint64(buf[24:], testFileTime)
	binary.LittleEndian.PutUint32(buf[32:], permissions)
	binary.LittleEndian.PutUint32(buf[52:], 0x100)
	return buf
}

func buildFileName(parent FileReference, name string, size uint64) []byte {
	encoded := EncodeUTF16String(name)
	buf := make([]byte, fileNameHeaderSize+len(encoded))
	binary.LittleEndian.PutUint64(buf[0:], uint64(parent))
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(buf[8+8*i:], testFileTime)
	}
	allocated := (size + testClusterSize - 1) / testClusterSize * testClusterSize
	binary.LittleEndian.PutUint64(buf[40:], allocated)
	binary.LittleEndian.PutUint64(buf[48:], size)
	buf[64] = byte(len(encoded) / 2)
	buf[65] = byte(NAME_TYPE_WIN32)
	copy(buf[fileNameHeaderSize:], encoded)
	return buf
}

func buildIndexEntry(ref FileReference, key []byte, flags uint16, sub_vcn int64) []byte {
	length := align8(indexEntryHeaderSize + len(key))
	if flags&INDEX_ENTRY_SUBNODE != 0 {
		length += 8
	}

	buf := make([]byte, length)
	binary.LittleEndian.PutUint64(buf[0:], uint64(ref))
	binary.LittleEndian.PutUint16(buf[8:], uint16(length))
	binary.LittleEndian.PutUint16(buf[10:], uint16(len(key)))
	binary.LittleEndian.PutUint16(buf[12:], flags)
	copy(buf[indexEntryHeaderSize:], key)
	if flags&INDEX_ENTRY_SUBNODE != 0 {
		binary.LittleEndian.PutUint64(buf[length-8:], uint64(sub_vcn))
	}
	return buf
}

// A directory entry pointing at record. The key repeats the child's
// $FILE_NAME.
func buildDirEntry(record uint64, parent uint64, name string) []byte {
	return buildIndexEntry(testRef(record),
		buildFileName(testRef(parent), name, 1), 0, 0)
}

func buildIndexRoot(collation uint32, flags uint8, entries ...[]byte) []byte {
	body := bytes.Join(entries, nil)

	buf := make([]byte, indexRootHeaderSize+indexNodeHeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:], uint32(ATTR_TYPE_FILE_NAME))
	binary.LittleEndian.PutUint32(buf[4:], collation)
	binary.LittleEndian.PutUint32(buf[8:], testIndexSize)
	buf[12] = testIndexSize / testClusterSize

	node := buf[indexRootHeaderSize:]
	size := uint32(indexNodeHeaderSize + len(body))
	binary.LittleEndian.PutUint32(node[0:], indexNodeHeaderSize)
	binary.LittleEndian.PutUint32(node[4:], size)
	binary.LittleEndian.PutUint32(node[8:], size)
	node[12] = flags
	copy(node[indexNodeHeaderSize:], body)
	return buf
}

// An INDX block as stored on disk. slack is written after the used
// entries.
func buildIndexBlock(vcn int64, slack []byte, entries ...[]byte) []byte {
	buf := make([]byte, testIndexSize)
	copy(buf, INDEX_BLOCK_MAGIC)

	usa_offset := 0x28
	usa_count := testIndexSize/FIXUP_SECTOR_SIZE + 1
	entries_start := align8(usa_offset + 2*usa_count)

	binary.LittleEndian.PutUint16(buf[4:], uint16(usa_offset))
	binary.LittleEndian.PutUint16(buf[6:], uint16(usa_count))
	binary.LittleEndian.PutUint64(buf[8:], 0x2000)
	binary.LittleEndian.PutUint64(buf[16:], uint64(vcn))

	offset := entries_start
	for _, entry := range entries {
		copy(buf[offset:], entry)
		offset += len(entry)
	}
	copy(buf[offset:], slack)

	node := buf[indexBlockHeaderSize:]
	binary.LittleEndian.PutUint32(node[0:], uint32(entries_start-indexBlockHeaderSize))
	binary.LittleEndian.PutUint32(node[4:], uint32(offset-indexBlockHeaderSize))
	binary.LittleEndian.PutUint32(node[8:], uint32(testIndexSize-indexBlockHeaderSize))

	protectTestStructure(buf, 0x0002)
	return buf
}

func buildAttributeListEntry(attr_type AttributeType, start_vcn uint64,
	ref FileReference, id uint16) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[0:], uint32(attr_type))
	binary.LittleEndian.PutUint16(buf[4:], 32)
	buf[7] = attributeListEntryMinSize
	binary.LittleEndian.PutUint64(buf[8:], start_vcn)
	binary.LittleEndian.PutUint64(buf[16:], uint64(ref))
	binary.LittleEndian.PutUint16(buf[24:], id)
	return buf
}

// A symbolic link reparse point using the mount point name layout.
func buildReparsePoint(tag uint32, substitute, display string) []byte {
	sub := EncodeUTF16String(substitute)
	display_name := EncodeUTF16String(display)

	buf := make([]byte, reparseMountPointHeaderSize+len(sub)+len(display_name))
	binary.LittleEndian.PutUint32(buf[0:], tag)
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(buf)-8))
	binary.LittleEndian.PutUint16(buf[8:], 0)
	binary.LittleEndian.PutUint16(buf[10:], uint16(len(sub)))
	binary.LittleEndian.PutUint16(buf[12:], uint16(len(sub)))
	binary.LittleEndian.PutUint16(buf[14:], uint16(len(display_name)))
	copy(buf[reparseMountPointHeaderSize:], sub)
	copy(buf[reparseMountPointHeaderSize+len(sub):], display_name)
	return buf
}

// S-1-<authority>-<sub authorities...>
func buildSID(authority byte, sub_authorities ...uint32) []byte {
	buf := make([]byte, 8+4*len(sub_authorities))
	buf[0] = 1
	buf[1] = byte(len(sub_authorities))
	buf[7] = authority
	for i, sub := range sub_authorities {
		binary.LittleEndian.PutUint32(buf[8+4*i:], sub)
	}
	return buf
}

func buildACE(ace_type, flags uint8, mask uint32, sid []byte) []byte {
	buf := make([]byte, 8+len(sid))
	buf[0] = ace_type
	buf[1] = flags
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(buf)))
	binary.LittleEndian.PutUint32(buf[4:], mask)
	copy(buf[8:], sid)
	return buf
}

func buildACL(aces ...[]byte) []byte {
	body := bytes.Join(aces, nil)
	buf := make([]byte, aclHeaderSize+len(body))
	buf[0] = 2
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(buf)))
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(aces)))
	copy(buf[aclHeaderSize:], body)
	return buf
}

// Owner BA, group SY and a DACL of two ACEs:
// D:AI(A;OICI;FA;;;SY)(A;ID;FR;;;BU)
func buildSecurityDescriptor() []byte {
	owner := buildSID(5, 32, 544)
	group := buildSID(5, 18)
	dacl := buildACL(
		buildACE(0x00, 0x03, 0x001F01FF, buildSID(5, 18)),
		buildACE(0x00, 0x10, 0x00120089, buildSID(5, 32, 545)),
	)

	buf := make([]byte, securityDescriptorHeaderSize)
	buf[0] = 1
	binary.LittleEndian.PutUint16(buf[2:],
		SE_DACL_PRESENT|SE_DACL_AUTO_INHERITED|SE_SELF_RELATIVE)

	owner_offset := len(buf)
	group_offset := owner_offset + len(owner)
	dacl_offset := group_offset + len(group)
	binary.LittleEndian.PutUint32(buf[4:], uint32(owner_offset))
	binary.LittleEndian.PutUint32(buf[8:], uint32(group_offset))
	binary.LittleEndian.PutUint32(buf[16:], uint32(dacl_offset))

	buf = append(buf, owner...)
	buf = append(buf, group...)
	return append(buf, dacl...)
}

type testImage struct {
	data []byte
}

func newTestImage() *testImage {
	self := &testImage{data: make([]byte, testClusters*testClusterSize)}

	boot := self.data[:BOOT_SECTOR_SIZE]
	boot[0], boot[1], boot[2] = 0xEB, 0x52, 0x90
	copy(boot[3:], NTFS_OEM_NAME)
	binary.LittleEndian.PutUint16(boot[11:], testSectorSize)
	boot[13] = testClusterSize / testSectorSize
	binary.LittleEndian.PutUint64(boot[40:], testClusters*testClusterSize/testSectorSize)
	binary.LittleEndian.PutUint64(boot[48:], testMFTCluster)
	binary.LittleEndian.PutUint64(boot[56:], 2)

	// -10: records of 1 << 10 bytes.
	boot[64] = 0xF6
	boot[68] = testIndexSize / testClusterSize
	binary.LittleEndian.PutUint64(boot[72:], 0x1234567890ABCDEF)
	binary.LittleEndian.PutUint16(boot[510:], 0xaa55)

	return self
}

func (self *testImage) writeRecord(index uint32, record *testRecord) {
	offset := testMFTCluster*testClusterSize + int(index)*testRecordSize
	copy(self.data[offset:], record.encode(index))
}

func (self *testImage) writeClusters(lcn int, data []byte) {
	copy(self.data[lcn*testClusterSize:], data)
}

func (self *testImage) Reader() *bytes.Reader {
	return bytes.NewReader(self.data)
}

// A small volume with a directory tree covering the interesting
// cases:
//
//	0   $MFT
//	5   .            small $I30 index
//	20  split.bin    $DATA split over records 20 and 21
//	24  Folder       large $I30 index with two INDX blocks
//	25  hello.txt    resident $DATA and an ADS
//	26  sparse.bin   sparse $DATA with a short valid data length
//	27  link         symlink, object id and security descriptor
//	28-31            a.txt, b.txt, m.txt and z.txt in Folder
//
// Folder's index keeps m.txt in the root with a.txt and b.txt in
// the sub-node before it and z.txt in the sub-node after it. The
// first INDX block also holds a deleted entry in its slack.
func buildTestImage() *testImage {
	image := newTestImage()

	si := func() *testAttribute {
		return residentAttribute(ATTR_TYPE_STANDARD_INFORMATION, "",
			buildStandardInformation(testFileTime, FILE_ATTRIBUTE_ARCHIVE))
	}
	fn := func(parent uint64, name string, size uint64) *testAttribute {
		return residentAttribute(ATTR_TYPE_FILE_NAME, "",
			buildFileName(testRef(parent), name, size))
	}

	image.writeRecord(0, &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			si(),
			fn(5, "$MFT", testMFTRecords*testRecordSize),
			nonResidentAttribute(ATTR_TYPE_DATA, "",
				[]Run{{RelativeUrnOffset: testMFTCluster, Length: testMFTRecords}},
				testMFTRecords*testRecordSize),
		},
	})

	image.writeRecord(5, &testRecord{
		flags: RECORD_IN_USE | RECORD_IS_DIRECTORY,
		attributes: []*testAttribute{
			si(),
			fn(5, ".", 0),
			residentAttribute(ATTR_TYPE_INDEX_ROOT, I30,
				buildIndexRoot(COLLATION_FILE_NAME, 0,
					buildDirEntry(24, 5, "Folder"),
					buildDirEntry(25, 5, "hello.txt"),
					buildDirEntry(27, 5, "link"),
					buildDirEntry(26, 5, "sparse.bin"),
					buildDirEntry(20, 5, "split.bin"),
					buildIndexEntry(0, nil, INDEX_ENTRY_LAST, 0))),
		},
	})

	// split.bin: clusters 140-143 hold '0', '1', '2' and '3'.
	for i := 0; i < 4; i++ {
		image.writeClusters(140+i,
			bytes.Repeat([]byte{byte('0' + i)}, testClusterSize))
	}

	first_piece := nonResidentAttribute(ATTR_TYPE_DATA, "",
		[]Run{{RelativeUrnOffset: 140, Length: 2}}, 4*testClusterSize)
	first_piece.allocated_size = 4 * testClusterSize
	first_piece.last_vcn = 1

	second_piece := nonResidentAttribute(ATTR_TYPE_DATA, "",
		[]Run{{RelativeUrnOffset: 142, Length: 2}}, 0)
	second_piece.start_vcn = 2
	second_piece.last_vcn = 3
	second_piece.allocated_size = 0

	image.writeRecord(20, &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			si(),
			fn(5, "split.bin", 4*testClusterSize),
			residentAttribute(ATTR_TYPE_ATTRIBUTE_LIST, "", bytes.Join([][]byte{
				buildAttributeListEntry(ATTR_TYPE_STANDARD_INFORMATION, 0, testRef(20), 0),
				buildAttributeListEntry(ATTR_TYPE_FILE_NAME, 0, testRef(20), 1),
				buildAttributeListEntry(ATTR_TYPE_DATA, 0, testRef(20), 3),
				buildAttributeListEntry(ATTR_TYPE_DATA, 2, testRef(21), 0),
			}, nil)),
			first_piece,
		},
	})

	image.writeRecord(21, &testRecord{
		flags:      RECORD_IN_USE,
		base:       testRef(20),
		attributes: []*testAttribute{second_piece},
	})

	// Folder: two INDX blocks at clusters 100-107.
	image.writeRecord(24, &testRecord{
		flags: RECORD_IN_USE | RECORD_IS_DIRECTORY,
		attributes: []*testAttribute{
			si(),
			fn(5, "Folder", 0),
			residentAttribute(ATTR_TYPE_INDEX_ROOT, I30,
				buildIndexRoot(COLLATION_FILE_NAME, INDEX_ROOT_LARGE,
					buildIndexEntry(testRef(30),
						buildFileName(testRef(24), "m.txt", 1),
						INDEX_ENTRY_SUBNODE, 0),
					buildIndexEntry(0, nil,
						INDEX_ENTRY_LAST|INDEX_ENTRY_SUBNODE, 4))),
			nonResidentAttribute(ATTR_TYPE_INDEX_ALLOCATION, I30,
				[]Run{{RelativeUrnOffset: 100, Length: 8}}, 2*testIndexSize),
			residentAttribute(ATTR_TYPE_BITMAP, I30, []byte{0x03, 0, 0, 0, 0, 0, 0, 0}),
		},
	})

	image.writeClusters(100, buildIndexBlock(0,
		buildDirEntry(22, 24, "deleted.txt"),
		buildDirEntry(28, 24, "a.txt"),
		buildDirEntry(29, 24, "b.txt"),
		buildIndexEntry(0, nil, INDEX_ENTRY_LAST, 0)))

	image.writeClusters(104, buildIndexBlock(4, nil,
		buildDirEntry(31, 24, "z.txt"),
		buildIndexEntry(0, nil, INDEX_ENTRY_LAST, 0)))

	for i, name := range []string{"a.txt", "b.txt", "m.txt", "z.txt"} {
		image.writeRecord(uint32(28+i), &testRecord{
			flags: RECORD_IN_USE,
			attributes: []*testAttribute{
				si(),
				fn(24, name, 1),
				residentAttribute(ATTR_TYPE_DATA, "", []byte(name[:1])),
			},
		})
	}

	image.writeRecord(25, &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			residentAttribute(ATTR_TYPE_STANDARD_INFORMATION, "",
				buildStandardInformation(0,
					FILE_ATTRIBUTE_READONLY|FILE_ATTRIBUTE_ARCHIVE)),
			fn(5, "hello.txt", 11),
			residentAttribute(ATTR_TYPE_DATA, "", []byte("Hello world")),
			residentAttribute(ATTR_TYPE_DATA, "goodbye.txt", []byte("Goodbye")),
		},
	})

	// sparse.bin: 4 clusters with the middle two sparse. Only
	// 4000 bytes are valid.
	image.writeClusters(120, bytes.Repeat([]byte("A"), testClusterSize))
	image.writeClusters(121, bytes.Repeat([]byte("B"), testClusterSize))

	sparse := nonResidentAttribute(ATTR_TYPE_DATA, "", []Run{
		{RelativeUrnOffset: 120, Length: 1},
		{Length: 2, Sparse: true},
		{RelativeUrnOffset: 1, Length: 1},
	}, 4*testClusterSize)
	sparse.flags = ATTR_FLAG_SPARSE
	sparse.initialized_size = 4000

	image.writeRecord(26, &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			residentAttribute(ATTR_TYPE_STANDARD_INFORMATION, "",
				buildStandardInformation(testFileTime, FILE_ATTRIBUTE_SPARSE_FILE)),
			fn(5, "sparse.bin", 4*testClusterSize),
			sparse,
		},
	})

	image.writeRecord(27, &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			residentAttribute(ATTR_TYPE_STANDARD_INFORMATION, "",
				buildStandardInformation(testFileTime, FILE_ATTRIBUTE_REPARSE_POINT)),
			fn(5, "link", 0),
			residentAttribute(ATTR_TYPE_OBJECT_ID, "", []byte{
				0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x78, 0x56,
				0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}),
			residentAttribute(ATTR_TYPE_SECURITY_DESCRIPTOR, "",
				buildSecurityDescriptor()),
			residentAttribute(ATTR_TYPE_REPARSE_POINT, "",
				buildReparsePoint(IO_REPARSE_TAG_SYMLINK,
					`\??\C:\target`, `C:\target`)),
		},
	})

	return image
}

// The content of a compression unit holding four LZNT1 chunks. Each
// chunk is three literals repeated to 4kb by a single back
// reference.
func compressedTestUnit() (compressed []byte, expanded []byte) {
	for k := byte(0); k < 4; k++ {
		literals := []byte{'a' + k, 'b' + k, 'c' + k}
		compressed = append(compressed, 0x05, 0xB0, 0x08)
		compressed = append(compressed, literals...)

		// Offset 3, length 4093.
		compressed = append(compressed, 0xFA, 0x2F)
		expanded = append(expanded,
			bytes.Repeat(literals, LZNT1_CHUNK_SIZE/3+1)[:LZNT1_CHUNK_SIZE]...)
	}
	return compressed, expanded
}

// Write packed.bin as record 3: a compressed $DATA with 16 cluster
// compression units. The first unit is compressed into cluster 150,
// the second is stored as is in clusters 160-175.
func writeCompressedFile(image *testImage, real_size uint64) []byte {
	compressed, expanded := compressedTestUnit()
	image.writeClusters(150, compressed)

	stored := bytes.Repeat([]byte("x"), 16*testClusterSize)
	image.writeClusters(160, stored)

	data := nonResidentAttribute(ATTR_TYPE_DATA, "", []Run{
		{RelativeUrnOffset: 150, Length: 1},
		{Length: 15, Sparse: true},
		{RelativeUrnOffset: 10, Length: 16},
	}, real_size)
	data.flags = ATTR_FLAG_COMPRESSED
	data.compression_unit = 4

	image.writeRecord(3, &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			residentAttribute(ATTR_TYPE_STANDARD_INFORMATION, "",
				buildStandardInformation(testFileTime, FILE_ATTRIBUTE_ARCHIVE)),
			residentAttribute(ATTR_TYPE_FILE_NAME, "",
				buildFileName(testRef(5), "packed.bin", real_size)),
			data,
		},
	})

	return append(expanded, stored...)[:real_size]
}

// The synthetic volume for the external tests.
func NewTestVolume() *bytes.Reader {
	return buildTestImage().Reader()
}
