package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryNames(entries []*IndexEntry) []string {
	result := []string{}
	for _, entry := range entries {
		result = append(result, entry.Name())
	}
	return result
}

func TestEmptyIndex(t *testing.T) {
	// Only the terminator.
	entries, err := ParseIndexEntries(
		buildIndexEntry(0, nil, INDEX_ENTRY_LAST, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, len(entries))

	root, err := ParseIndexRoot(buildIndexRoot(COLLATION_FILE_NAME, 0,
		buildIndexEntry(0, nil, INDEX_ENTRY_LAST, 0)))
	require.NoError(t, err)
	assert.Equal(t, 0, len(root.Node.Entries))
	assert.Equal(t, "Small Index", root.FlagString())
}

func TestSmallIndex(t *testing.T) {
	ntfs := openTestContext(t)

	root, err := ntfs.GetMFT(MFT_RECORD_ROOT)
	require.NoError(t, err)

	entries, err := WalkIndex(ntfs, root, I30)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Folder", "hello.txt", "link", "sparse.bin", "split.bin",
	}, entryNames(entries))

	value, err := DecodeAttribute(ntfs, root, mustAttribute(t, root,
		ATTR_TYPE_INDEX_ROOT, I30))
	require.NoError(t, err)

	index, _ := value.Overview().Get("Index")
	assert.Equal(t, []string{
		"0x18 : Folder",
		"0x19 : hello.txt",
		"0x1b : link",
		"0x1a : sparse.bin",
		"0x14 : split.bin",
	}, index)
}

func mustAttribute(t *testing.T, record *MFTRecord,
	attr_type AttributeType, name string) *Attribute {
	attr, err := record.GetAttribute(attr_type, name)
	require.NoError(t, err)
	return attr
}

func TestLargeIndex(t *testing.T) {
	ntfs := openTestContext(t)

	folder, err := ntfs.GetMFT(24)
	require.NoError(t, err)

	// a.txt and b.txt sit in the sub-node before m.txt, z.txt in
	// the sub-node of the terminator.
	entries, err := folder.Dir(ntfs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "m.txt", "z.txt"},
		entryNames(entries))

	value, err := DecodeAttribute(ntfs, folder, mustAttribute(t, folder,
		ATTR_TYPE_INDEX_ROOT, I30))
	require.NoError(t, err)
	flags, _ := value.Overview().Get("Flags")
	assert.Equal(t, "Large Index", flags)

	// The allocation decodes to the same walk.
	value, err = DecodeAttribute(ntfs, folder, mustAttribute(t, folder,
		ATTR_TYPE_INDEX_ALLOCATION, I30))
	require.NoError(t, err)
	index, _ := value.Overview().Get("Index")
	assert.Equal(t, []string{
		"0x1c : a.txt", "0x1d : b.txt", "0x1e : m.txt", "0x1f : z.txt",
	}, index)
}

func TestIndexNodes(t *testing.T) {
	ntfs := openTestContext(t)

	folder, err := ntfs.GetMFT(24)
	require.NoError(t, err)

	nodes, err := IndexNodes(ntfs, folder, I30)
	require.NoError(t, err)
	require.Equal(t, 3, len(nodes))

	assert.Equal(t, int64(-1), nodes[0].VCN)
	assert.Equal(t, int64(0), nodes[1].VCN)
	assert.Equal(t, int64(4), nodes[2].VCN)
	assert.Equal(t, []string{"a.txt", "b.txt"}, entryNames(nodes[1].Entries))

	// The deleted entry is in the slack of the first block.
	slack := nodes[1].ScanSlack()
	require.Equal(t, 1, len(slack))
	assert.Equal(t, "deleted.txt", slack[0].Name())
	assert.True(t, slack[0].IsSlack)
	assert.Equal(t, int64(272), slack[0].SlackOffset)
	assert.Equal(t, uint64(22), slack[0].RecordNumber())
}

func TestIndexLoop(t *testing.T) {
	ntfs := openTestContext(t)

	folder, err := ntfs.GetMFT(24)
	require.NoError(t, err)

	// Point the terminator back at the first block.
	attr := mustAttribute(t, folder, ATTR_TYPE_INDEX_ROOT, I30)
	data, err := attr.ResidentData()
	require.NoError(t, err)
	data[len(data)-8] = 0

	entries, err := folder.Dir(ntfs)
	assert.ErrorIs(t, err, CorruptStructureError)
	assert.Equal(t, []string{"a.txt", "b.txt", "m.txt"}, entryNames(entries))
}

func TestIndexDepthLimit(t *testing.T) {
	ntfs := openTestContext(t)

	options := ntfs.GetOptions()
	options.MaxIndexDepth = 0
	ntfs.SetOptions(options)

	folder, err := ntfs.GetMFT(24)
	require.NoError(t, err)

	entries, err := folder.Dir(ntfs)
	assert.ErrorIs(t, err, CorruptStructureError)
	assert.Equal(t, []string{"m.txt"}, entryNames(entries))
}

func TestIndexBlockFixupWarning(t *testing.T) {
	block := buildIndexBlock(0, nil,
		buildDirEntry(28, 24, "a.txt"),
		buildIndexEntry(0, nil, INDEX_ENTRY_LAST, 0))
	block[1022] = 0x55

	decoded, err := DecodeIndexBlock(block)
	require.NoError(t, err)
	assert.Equal(t, 1, len(decoded.Node.Warnings))
	assert.Equal(t, []string{"a.txt"}, entryNames(decoded.Node.Entries))

	copy(block, "BAAD")
	_, err = DecodeIndexBlock(block)
	assert.ErrorIs(t, err, CorruptStructureError)
}

func TestCompareFileNames(t *testing.T) {
	assert.Equal(t, 0, CompareFileNames("hello.TXT", "HELLO.txt"))
	assert.Equal(t, -1, CompareFileNames("a", "B"))
	assert.Equal(t, 1, CompareFileNames("b", "A"))
	assert.Equal(t, -1, CompareFileNames("abc", "abcd"))

	// Upper casing is per code point.
	assert.Equal(t, 0, CompareFileNames("éa", "ÉA"))
}
