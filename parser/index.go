package parser

import (
	"encoding/binary"
	"fmt"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
)

const (
	INDEX_BLOCK_MAGIC = "INDX"

	INDEX_ENTRY_SUBNODE = 0x01
	INDEX_ENTRY_LAST    = 0x02

	// $INDEX_ROOT node flags.
	INDEX_ROOT_LARGE = 0x01

	COLLATION_BINARY        = 0x00
	COLLATION_FILE_NAME     = 0x01
	COLLATION_UNICODE       = 0x02
	COLLATION_ULONG         = 0x10
	COLLATION_SID           = 0x11
	COLLATION_SECURITY_HASH = 0x12
	COLLATION_ULONGS        = 0x13

	indexEntryHeaderSize = 16
	indexNodeHeaderSize  = 16
	indexRootHeaderSize  = 16
	indexBlockHeaderSize = 24

	// The name of the directory index.
	I30 = "$I30"
)

// The header common to $INDEX_ROOT and INDX blocks. Offsets are
// relative to the start of this header.
type IndexNodeHeader struct {
	EntriesOffset uint32
	TotalSize     uint32
	AllocatedSize uint32
	Flags         uint8
}

func parseIndexNodeHeader(buffer []byte, offset int) (*IndexNodeHeader, error) {
	header, err := getSlice(buffer, int64(offset), indexNodeHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "index node header")
	}

	return &IndexNodeHeader{
		EntriesOffset: binary.LittleEndian.Uint32(header[0:]),
		TotalSize:     binary.LittleEndian.Uint32(header[4:]),
		AllocatedSize: binary.LittleEndian.Uint32(header[8:]),
		Flags:         header[12],
	}, nil
}

type IndexEntry struct {
	Reference FileReference
	Length    uint16
	KeyLength uint16
	Flags     uint16

	// Set when the key is a $FILE_NAME (directory indexes).
	File *FileName

	SubNodeVCN int64

	// Set for entries carved from slack space.
	IsSlack     bool
	SlackOffset int64
}

func (self *IndexEntry) HasSubNode() bool {
	return self.Flags&INDEX_ENTRY_SUBNODE != 0
}

func (self *IndexEntry) IsLast() bool {
	return self.Flags&INDEX_ENTRY_LAST != 0
}

func (self *IndexEntry) RecordNumber() uint64 {
	return self.Reference.RecordNumber()
}

func (self *IndexEntry) Name() string {
	if self.File == nil {
		return ""
	}
	return self.File.Name
}

func (self *IndexEntry) String() string {
	return fmt.Sprintf("%#x : %s", self.RecordNumber(), self.Name())
}

func parseIndexEntry(buffer []byte, offset int) (*IndexEntry, error) {
	header, err := getSlice(buffer, int64(offset), indexEntryHeaderSize)
	if err != nil {
		return nil, errors.Wrapf(err, "index entry at %#x", offset)
	}

	result := &IndexEntry{
		Reference: FileReference(binary.LittleEndian.Uint64(header[0:])),
		Length:    binary.LittleEndian.Uint16(header[8:]),
		KeyLength: binary.LittleEndian.Uint16(header[10:]),
		Flags:     binary.LittleEndian.Uint16(header[12:]),
	}

	if result.Length < indexEntryHeaderSize {
		return nil, errors.Wrapf(MalformedAttributeError,
			"index entry at %#x has length %#x", offset, result.Length)
	}

	entry, err := getSlice(buffer, int64(offset), int64(result.Length))
	if err != nil {
		return nil, errors.Wrapf(err, "index entry at %#x", offset)
	}

	if result.HasSubNode() {
		if result.Length < indexEntryHeaderSize+8 {
			return nil, errors.Wrapf(MalformedAttributeError,
				"index entry at %#x too short for a sub-node", offset)
		}
		result.SubNodeVCN = int64(binary.LittleEndian.Uint64(
			entry[result.Length-8:]))
	}

	// The terminator carries no key.
	if !result.IsLast() && result.KeyLength >= fileNameHeaderSize {
		key, err := getSlice(entry, indexEntryHeaderSize, int64(result.KeyLength))
		if err != nil {
			return nil, errors.Wrapf(err, "index entry key at %#x", offset)
		}

		result.File, err = ParseFileName(key)
		if err != nil {
			return nil, errors.Wrapf(err, "index entry key at %#x", offset)
		}
	}

	return result, nil
}

// One node of an index B-tree: the $INDEX_ROOT or one INDX block.
type IndexNode struct {
	// -1 for the root node.
	VCN int64

	Header *IndexNodeHeader

	// The entries in node order, without the terminator.
	Entries []*IndexEntry

	// The terminator may point at the right-most child.
	Last *IndexEntry

	// The unused space after the terminator.
	Slack       []byte
	SlackOffset int64

	Warnings []string
}

// Decode the node whose header is at header_offset in buffer.
func parseIndexNode(buffer []byte, header_offset int) (*IndexNode, error) {
	header, err := parseIndexNodeHeader(buffer, header_offset)
	if err != nil {
		return nil, err
	}

	start := int64(header_offset) + int64(header.EntriesOffset)
	end := int64(header_offset) + int64(header.TotalSize)
	if end < start {
		return nil, errors.Wrapf(CorruptStructureError,
			"index node entries end %#x before start %#x", end, start)
	}

	region, err := getSlice(buffer, start, end-start)
	if err != nil {
		return nil, errors.Wrap(err, "index node entries")
	}

	result := &IndexNode{VCN: -1, Header: header}
	result.Entries, result.Last, err = parseIndexEntries(region)
	if err != nil {
		return result, err
	}

	allocated := int64(header_offset) + int64(header.AllocatedSize)
	if allocated > int64(len(buffer)) {
		allocated = int64(len(buffer))
	}
	if allocated > end {
		result.Slack = buffer[end:allocated]
		result.SlackOffset = end
	}

	return result, nil
}

func parseIndexEntries(region []byte) ([]*IndexEntry, *IndexEntry, error) {
	result := []*IndexEntry{}

	for offset := 0; offset < len(region); {
		entry, err := parseIndexEntry(region, offset)
		if err != nil {
			return result, nil, err
		}

		if entry.IsLast() {
			return result, entry, nil
		}

		result = append(result, entry)
		offset += int(entry.Length)
	}

	DebugPrint("Index node ended without a terminator after %d entries\n",
		len(result))
	return result, nil, nil
}

// Decode the entries of a single index node region (the bytes
// between the first entry and the end of the used entries).
// Sub-nodes are not followed. An index holding only the terminator
// yields an empty list.
func ParseIndexEntries(region []byte) ([]*IndexEntry, error) {
	entries, _, err := parseIndexEntries(region)
	return entries, err
}

type IndexRoot struct {
	AttributeType AttributeType
	CollationRule uint32
	BlockSize     uint32
	ClustersPerIB uint8

	Node *IndexNode
}

func (self *IndexRoot) IsLarge() bool {
	return self.Node.Header.Flags&INDEX_ROOT_LARGE != 0
}

func (self *IndexRoot) FlagString() string {
	if self.IsLarge() {
		return "Large Index"
	}
	return "Small Index"
}

func ParseIndexRoot(buffer []byte) (*IndexRoot, error) {
	err := needBytes(buffer, indexRootHeaderSize+indexNodeHeaderSize, "$INDEX_ROOT")
	if err != nil {
		return nil, err
	}

	result := &IndexRoot{
		AttributeType: AttributeType(binary.LittleEndian.Uint32(buffer[0:])),
		CollationRule: binary.LittleEndian.Uint32(buffer[4:]),
		BlockSize:     binary.LittleEndian.Uint32(buffer[8:]),
		ClustersPerIB: buffer[12],
	}

	result.Node, err = parseIndexNode(buffer, indexRootHeaderSize)
	if result.Node == nil {
		return nil, errors.Wrap(err, "$INDEX_ROOT")
	}

	return result, err
}

func entryList(entries []*IndexEntry) []string {
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.String())
	}
	return result
}

func (self *IndexRoot) Overview() *ordereddict.Dict {
	header := self.Node.Header
	result := ordereddict.NewDict().
		Set("Attribute Type", fmt.Sprintf("%#x", uint32(self.AttributeType))).
		Set("Collation Rule", self.CollationRule).
		Set("Index Alloc Entry Size", self.BlockSize).
		Set("Cluster/Index Record", self.ClustersPerIB).
		Set("First Entry Offset", header.EntriesOffset).
		Set("Index Entries Size", header.TotalSize).
		Set("Index Entries Allocated", header.AllocatedSize).
		Set("Flags", self.FlagString())

	if !self.IsLarge() {
		result.Set("Index", entryList(self.Node.Entries))
	}
	return result
}

func decodeIndexRoot(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	data, err := attr.ResidentData()
	if err != nil {
		return nil, err
	}
	return ParseIndexRoot(data)
}

// An INDX block from $INDEX_ALLOCATION.
type IndexBlock struct {
	VCN  int64
	Node *IndexNode
}

// Decode an INDX block. The buffer is fixed up in place. A fixup
// mismatch is recorded as a warning on the node.
func DecodeIndexBlock(buffer []byte) (*IndexBlock, error) {
	err := needBytes(buffer, indexBlockHeaderSize, "INDX block")
	if err != nil {
		return nil, err
	}

	if string(buffer[0:4]) != INDEX_BLOCK_MAGIC {
		return nil, errors.Wrapf(CorruptStructureError,
			"INDX block has signature %q", buffer[0:4])
	}

	var warnings []string
	err = ApplyFixups(buffer, FIXUP_SECTOR_SIZE)
	if err != nil {
		DebugPrint("INDX block: %v\n", err)
		warnings = append(warnings, err.Error())
	}

	STATS.Inc_IndexBlocks()

	result := &IndexBlock{
		VCN: int64(binary.LittleEndian.Uint64(buffer[16:])),
	}

	result.Node, err = parseIndexNode(buffer, indexBlockHeaderSize)
	if result.Node == nil {
		return nil, err
	}
	result.Node.VCN = result.VCN
	result.Node.Warnings = append(warnings, result.Node.Warnings...)

	return result, err
}

// Reads INDX blocks out of the $INDEX_ALLOCATION stream.
type indexBlockReader struct {
	stream     *StreamReader
	block_size int64
	vcn_unit   int64
}

func newIndexBlockReader(
	ntfs *NTFSContext, record *MFTRecord,
	name string, root *IndexRoot) (*indexBlockReader, error) {
	stream, err := ntfs.OpenStream(record, ATTR_TYPE_INDEX_ALLOCATION, name)
	if err != nil {
		return nil, err
	}

	block_size := int64(root.BlockSize)
	if block_size <= 0 {
		return nil, errors.Wrapf(CorruptStructureError,
			"index block size %#x", block_size)
	}

	// Sub-node VCNs count clusters unless the blocks are smaller
	// than a cluster.
	vcn_unit := ntfs.ClusterSize
	if block_size < ntfs.ClusterSize {
		vcn_unit = FIXUP_SECTOR_SIZE
	}

	return &indexBlockReader{
		stream:     stream,
		block_size: block_size,
		vcn_unit:   vcn_unit,
	}, nil
}

func (self *indexBlockReader) readAt(offset int64) (*IndexBlock, error) {
	if offset < 0 || offset+self.block_size > self.stream.Size() {
		return nil, errors.Wrapf(TruncatedRecordError,
			"index block at %#x past $INDEX_ALLOCATION of %#x bytes",
			offset, self.stream.Size())
	}

	buffer, err := ReadBytes(self.stream, offset, self.block_size)
	if err != nil {
		return nil, err
	}
	return DecodeIndexBlock(buffer)
}

func (self *indexBlockReader) GetBlock(vcn int64) (*IndexBlock, error) {
	return self.readAt(vcn * self.vcn_unit)
}

// All blocks in stream order. Blocks which fail to decode (e.g.
// unused blocks never written) are skipped.
func (self *indexBlockReader) Blocks() []*IndexBlock {
	result := []*IndexBlock{}
	for offset := int64(0); offset+self.block_size <= self.stream.Size(); offset += self.block_size {
		block, err := self.readAt(offset)
		if err != nil {
			Printf("Index block at %#x: %v\n", offset, err)
			continue
		}
		result = append(result, block)
	}
	return result
}

// Compare two names the way NTFS collates directory entries: code
// point order after upper casing.
func CompareFileNames(a, b string) int {
	for len(a) > 0 && len(b) > 0 {
		ra, size_a := utf8.DecodeRuneInString(a)
		rb, size_b := utf8.DecodeRuneInString(b)
		ra = unicode.ToUpper(ra)
		rb = unicode.ToUpper(rb)
		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		a = a[size_a:]
		b = b[size_b:]
	}

	switch {
	case len(a) == len(b):
		return 0
	case len(a) == 0:
		return -1
	}
	return 1
}

type indexWalker struct {
	blocks    *indexBlockReader
	max_depth int
	seen      map[int64]bool
	result    []*IndexEntry
	errors    []error
}

func (self *indexWalker) walkSubNode(vcn int64, depth int) {
	if depth > self.max_depth {
		self.errors = append(self.errors, errors.Wrapf(CorruptStructureError,
			"index deeper than %d at VCN %d", self.max_depth, vcn))
		return
	}

	if self.seen[vcn] {
		self.errors = append(self.errors, errors.Wrapf(CorruptStructureError,
			"index loop at VCN %d", vcn))
		return
	}
	self.seen[vcn] = true

	if self.blocks == nil {
		self.errors = append(self.errors, errors.Wrapf(UnresolvableRunError,
			"sub-node VCN %d without $INDEX_ALLOCATION", vcn))
		return
	}

	block, err := self.blocks.GetBlock(vcn)
	if err != nil {
		self.errors = append(self.errors, err)
		if block == nil {
			return
		}
	}

	self.walkNode(block.Node, depth)
}

// In order traversal: a sub-node holds the entries which sort before
// its parent entry.
func (self *indexWalker) walkNode(node *IndexNode, depth int) {
	for _, entry := range node.Entries {
		if entry.HasSubNode() {
			self.walkSubNode(entry.SubNodeVCN, depth+1)
		}
		self.result = append(self.result, entry)
	}

	if node.Last != nil && node.Last.HasSubNode() {
		self.walkSubNode(node.Last.SubNodeVCN, depth+1)
	}
}

// Enumerate the named index of a record ($I30 for directories) in
// collation order. Entries reached before an error are returned
// together with the first error.
func WalkIndex(ntfs *NTFSContext, record *MFTRecord, name string) ([]*IndexEntry, error) {
	root_attr, err := record.GetAttribute(ATTR_TYPE_INDEX_ROOT, name)
	if err != nil {
		return nil, err
	}

	data, err := root_attr.ResidentData()
	if err != nil {
		return nil, err
	}

	root, err := ParseIndexRoot(data)
	if root == nil {
		return nil, err
	}

	walker := &indexWalker{
		max_depth: ntfs.GetOptions().MaxIndexDepth,
		seen:      make(map[int64]bool),
	}
	if err != nil {
		walker.errors = append(walker.errors, err)
	}

	if root.IsLarge() {
		walker.blocks, err = newIndexBlockReader(ntfs, record, name, root)
		if err != nil {
			walker.errors = append(walker.errors, err)
		}
	}

	walker.walkNode(root.Node, 0)

	if root.CollationRule == COLLATION_FILE_NAME {
		sort.SliceStable(walker.result, func(i, j int) bool {
			return CompareFileNames(
				walker.result[i].Name(), walker.result[j].Name()) < 0
		})
	}

	if len(walker.errors) > 0 {
		for _, err := range walker.errors {
			DebugPrint("WalkIndex %d: %v\n", record.Index, err)
		}
		return walker.result, walker.errors[0]
	}

	return walker.result, nil
}

// All nodes of an index: the root and every INDX block.
func IndexNodes(ntfs *NTFSContext, record *MFTRecord, name string) ([]*IndexNode, error) {
	root_attr, err := record.GetAttribute(ATTR_TYPE_INDEX_ROOT, name)
	if err != nil {
		return nil, err
	}

	data, err := root_attr.ResidentData()
	if err != nil {
		return nil, err
	}

	root, err := ParseIndexRoot(data)
	if root == nil {
		return nil, err
	}

	result := []*IndexNode{root.Node}
	if !root.IsLarge() {
		return result, nil
	}

	blocks, err := newIndexBlockReader(ntfs, record, name, root)
	if err != nil {
		return result, err
	}

	for _, block := range blocks.Blocks() {
		result = append(result, block.Node)
	}

	return result, nil
}

type IndexAllocation struct {
	Entries []*IndexEntry

	// Set when the walk stopped early.
	Error string
}

func (self *IndexAllocation) Overview() *ordereddict.Dict {
	result := ordereddict.NewDict().
		Set("Index", entryList(self.Entries))
	if self.Error != "" {
		result.Set("Error", self.Error)
	}
	return result
}

func decodeIndexAllocation(
	ntfs *NTFSContext, record *MFTRecord, attr *Attribute) (AttributeValue, error) {
	entries, err := WalkIndex(ntfs, record, attr.Name)
	if err != nil && len(entries) == 0 {
		return nil, err
	}

	result := &IndexAllocation{Entries: entries}
	if err != nil {
		result.Error = err.Error()
	}
	return result, nil
}
