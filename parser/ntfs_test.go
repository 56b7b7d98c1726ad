package parser_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"www.velocidex.com/golang/go-mft/parser"
)

// Summarize a buffer as runs of identical bytes.
func describe(buf []byte) string {
	result := []string{}
	for i := 0; i < len(buf); {
		j := i
		for j < len(buf) && buf[j] == buf[i] {
			j++
		}
		result = append(result, fmt.Sprintf("%d x %02x", j-i, buf[i]))
		i = j
	}
	return strings.Join(result, ", ")
}

func listing(infos []*parser.FileInfo) []string {
	result := []string{}
	for _, info := range infos {
		result = append(result, fmt.Sprintf("%s %s %d",
			info.MFTId, info.Name, info.Size))
	}
	return result
}

func TestNTFS(t *testing.T) {
	result := make(map[string]interface{})
	assert := assert.New(t)

	ntfs_ctx, err := parser.GetNTFSContext(parser.NewTestVolume(), 0)
	assert.NoError(err, "Unable to open volume")

	root, err := ntfs_ctx.GetMFT(5)
	assert.NoError(err, "Unable to open root")

	files, err := parser.ListDir(ntfs_ctx, root)
	assert.NoError(err, "ListDir")
	result["01 List root"] = listing(files)

	// Open directory by path.
	dir, err := parser.OpenPath(ntfs_ctx, "/folder")
	assert.NoError(err, "Open by path")

	files, err = parser.ListDir(ntfs_ctx, dir)
	assert.NoError(err, "ListDir")
	result["02 List Folder"] = listing(files)

	i30, err := parser.ExtractI30List(ntfs_ctx, dir)
	assert.NoError(err, "ExtractI30List")

	i30_list := []string{}
	for _, info := range i30 {
		line := fmt.Sprintf("%s %s", info.MFTId, info.Name)
		if info.IsSlack {
			line += fmt.Sprintf(" (slack at %d)", info.SlackOffset)
		}
		i30_list = append(i30_list, line)
	}
	result["03 I30"] = i30_list

	// Open by mft id
	mft_idx, attr, id, err := parser.ParseMFTId("25-128-3")
	assert.NoError(err, "ParseMFTId")
	assert.Equal(mft_idx, int64(25))
	assert.Equal(attr, int64(128))
	assert.Equal(id, int64(3))

	// Test resident file.
	buf := make([]byte, 100000)
	reader, err := parser.GetDataForPath(ntfs_ctx, "hello.txt")
	assert.NoError(err, "GetDataForPath")

	n, _ := reader.ReadAt(buf, 0)
	result["04 hello.txt"] = fmt.Sprintf("%v: %s", n, string(buf[:n]))

	// Test ADS
	reader, err = parser.GetDataForPath(ntfs_ctx, "HELLO.TXT:goodbye.txt")
	assert.NoError(err, "GetDataForPath ADS")

	n, _ = reader.ReadAt(buf, 0)
	result["05 hello.txt:goodbye.txt"] = fmt.Sprintf(
		"%v: %s", n, string(buf[:n]))

	reader, err = parser.GetDataForPath(ntfs_ctx, "25-128-3")
	assert.NoError(err, "GetDataForPath inode")

	n, _ = reader.ReadAt(buf, 0)
	result["06 Inode 25-128-3"] = fmt.Sprintf("%v: %s", n, string(buf[:n]))

	// A sparse file with a short valid data length.
	reader, err = parser.GetDataForPath(ntfs_ctx, "sparse.bin")
	assert.NoError(err, "Open sparse.bin")

	n, _ = reader.ReadAt(buf, 0)
	result["07 sparse.bin"] = fmt.Sprintf("%v: %s", n, describe(buf[:n]))

	runs := []string{}
	for _, run := range parser.DebugRuns(reader.Runs()) {
		runs = append(runs, run.String())
	}
	result["08 sparse.bin runs"] = runs

	// A stream split over two records by the attribute list.
	reader, err = parser.GetDataForPath(ntfs_ctx, "split.bin")
	assert.NoError(err, "Open split.bin")

	n, _ = reader.ReadAt(buf, 0)
	result["09 split.bin"] = fmt.Sprintf("%v: %s", n, describe(buf[:n]))

	full_paths := []string{}
	for _, id := range []int64{0, 5, 26, 28} {
		record, err := ntfs_ctx.GetMFT(id)
		assert.NoError(err, "GetMFT")

		full_path, err := parser.GetFullPath(ntfs_ctx, record)
		assert.NoError(err, "GetFullPath")
		full_paths = append(full_paths, fmt.Sprintf("%d: %s", id, full_path))
	}
	result["10 Full paths"] = full_paths

	rows := []string{}
	for row := range parser.ScanMFT(context.Background(), ntfs_ctx, 0) {
		rows = append(rows, fmt.Sprintf("%d %s size=%d dir=%v ads=%v flags=%v",
			row.EntryNumber, strings.Join(row.FileNames, ","), row.FileSize,
			row.IsDir, row.ADS, row.SIFlags))
	}
	result["11 ScanMFT"] = rows

	// Slack entries are only modelled on request.
	options := ntfs_ctx.GetOptions()
	options.IncludeSlack = true
	ntfs_ctx.SetOptions(options)

	model := parser.ModelMFTRecord(ntfs_ctx, dir)
	index := []string{}
	for _, entry := range model.IndexEntries {
		index = append(index, fmt.Sprintf("%d %s slack=%v",
			entry.RecordNumber, entry.Name, entry.IsSlack))
	}
	result["12 Folder index"] = index

	result_json, _ := json.MarshalIndent(result, "", " ")
	g := goldie.New(t)
	g.Assert(t, "TestNTFS", result_json)
}

// Test the OpenStream API.
func TestNTFSOpenStream(t *testing.T) {
	assert := assert.New(t)

	ntfs_ctx, err := parser.GetNTFSContext(parser.NewTestVolume(), 0)
	assert.NoError(err, "Unable to open volume")

	mft_entry, err := parser.OpenPath(ntfs_ctx, `\hello.txt`)
	assert.NoError(err, "OpenPath")
	assert.False(mft_entry.HasIndex())

	reader, err := ntfs_ctx.OpenStream(mft_entry, parser.ATTR_TYPE_DATA, "")
	assert.NoError(err, "OpenStream")

	data, err := reader.Data()
	assert.NoError(err, "Data")
	assert.Equal("Hello world", string(data))

	reader, err = ntfs_ctx.OpenStream(mft_entry, parser.ATTR_TYPE_DATA, "goodbye.txt")
	assert.NoError(err, "OpenStream ADS")

	data, err = reader.Data()
	assert.NoError(err, "Data")
	assert.Equal("Goodbye", string(data))

	// Missing components.
	_, err = parser.OpenPath(ntfs_ctx, "/Folder/missing.txt")
	assert.ErrorContains(err, "missing.txt")

	_, err = parser.GetDataForPath(ntfs_ctx, "a:b:c")
	assert.Error(err)

	_, _, _, err = parser.ParseMFTId("1-2-3-4")
	assert.Error(err)
}

func TestStat(t *testing.T) {
	assert := assert.New(t)

	ntfs_ctx, err := parser.GetNTFSContext(parser.NewTestVolume(), 0)
	assert.NoError(err, "Unable to open volume")

	record, err := ntfs_ctx.GetMFT(25)
	assert.NoError(err, "GetMFT")

	stat := parser.Stat(ntfs_ctx, record)
	assert.Equal(2, len(stat))
	assert.Equal("hello.txt:goodbye.txt", stat[1].Name)
	assert.Equal(int64(7), stat[1].AllocatedSize)
	assert.Equal("Win32", stat[0].NameType)

	// The zero creation time is the NTFS epoch.
	assert.Equal(1601, stat[0].Btime.Year())
	assert.Equal(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), stat[0].Mtime)
}

func init() {
	time.Local = time.UTC
	spew.Config.DisablePointerAddresses = true
	spew.Config.SortKeys = true
}
