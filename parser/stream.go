package parser

import (
	"bytes"
	"io"
	"math"
	"sort"

	errors "github.com/pkg/errors"
)

// Streams larger than this are only readable with ReadAt.
const MAX_MATERIALIZED_SIZE = 1 << 31

// A reader over the logical content of an attribute. Only the valid
// data is exposed: reads past it return io.EOF.
type StreamReader struct {
	reader io.ReaderAt
	size   int64

	// Nil for resident attributes.
	runs *RunReader
}

func (self *StreamReader) ReadAt(buf []byte, offset int64) (int, error) {
	return self.reader.ReadAt(buf, offset)
}

// The valid data length of the stream.
func (self *StreamReader) Size() int64 {
	return self.size
}

func (self *StreamReader) Runs() *RunReader {
	return self.runs
}

// Read the whole valid data of the stream.
func (self *StreamReader) Data() ([]byte, error) {
	if self.size < 0 || self.size > MAX_MATERIALIZED_SIZE {
		return nil, errors.Wrapf(UnsupportedError,
			"stream of %#x bytes is too large to read at once", self.size)
	}

	buffer := make([]byte, self.size)
	n, err := self.reader.ReadAt(buffer, 0)
	if int64(n) == self.size {
		return buffer, nil
	}

	if err == nil || errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(UnresolvableRunError,
			"stream resolved %#x of %#x bytes", n, self.size)
	}
	return nil, err
}

// Build a reader over an attribute. A large non-resident attribute
// may be split into several pieces covering consecutive VCN ranges
// (see NTFSContext.GetStreamPieces), these are stitched into a single
// stream. The first piece (VCN 0) carries the sizes.
func NewStreamReader(ntfs *NTFSContext, pieces ...*Attribute) (*StreamReader, error) {
	if len(pieces) == 0 {
		return nil, errors.New("No attribute to read")
	}

	sorted := append([]*Attribute{}, pieces...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartVCN < sorted[j].StartVCN
	})
	first := sorted[0]

	if !first.NonResident {
		data, err := first.ResidentData()
		if err != nil {
			return nil, err
		}
		return &StreamReader{
			reader: bytes.NewReader(data),
			size:   int64(len(data)),
		}, nil
	}

	if first.StartVCN != 0 {
		return nil, errors.Wrapf(UnresolvableRunError,
			"%v:%v starts at VCN %d", first.Type, first.Name, first.StartVCN)
	}

	if first.IsEncrypted() {
		return nil, errors.Wrapf(UnsupportedError,
			"%v:%v is encrypted", first.Type, first.Name)
	}

	runs := []*ReaderRun{}
	for _, piece := range sorted {
		run_list, err := piece.RunList()
		if err != nil {
			return nil, err
		}

		runs = append(runs, MakeReaderRuns(
			run_list, int64(piece.StartVCN), ntfs.DiskReader)...)
	}

	err := checkStreamSizes(first, runs, ntfs.ClusterSize)
	if err != nil {
		return nil, err
	}

	if first.IsCompressed() && first.CompressionUnit > 0 {
		runs = NormalizeCompressedRuns(runs, 1<<uint(first.CompressionUnit))
	}

	run_reader := NewRunReader(runs, ntfs.ClusterSize)

	valid := first.ValidDataLength()
	if valid > first.DataSize() {
		valid = first.DataSize()
	}

	covered := run_reader.Size()
	if covered < valid {
		return nil, errors.Wrapf(UnresolvableRunError,
			"%v:%v runs cover %#x bytes but valid data length is %#x",
			first.Type, first.Name, covered, valid)
	}

	return &StreamReader{
		reader: LimitedReader{ReaderAt: run_reader, N: valid},
		size:   valid,
		runs:   run_reader,
	}, nil
}

// All sizes must be addressable in bytes: corrupt headers routinely
// carry lengths near 2^64.
func checkStreamSizes(first *Attribute, runs []*ReaderRun, cluster_size int64) error {
	if cluster_size <= 0 {
		return errors.Wrapf(CorruptStructureError,
			"invalid cluster size %d", cluster_size)
	}

	if first.AllocatedSize > math.MaxInt64 ||
		first.RealSize > math.MaxInt64 ||
		first.InitializedSize > math.MaxInt64 {
		return errors.Wrapf(MalformedAttributeError,
			"%v:%v sizes out of range (allocated %#x real %#x initialized %#x)",
			first.Type, first.Name, first.AllocatedSize,
			first.RealSize, first.InitializedSize)
	}

	if first.InitializedSize > first.AllocatedSize {
		return errors.Wrapf(MalformedAttributeError,
			"%v:%v initialized size %#x exceeds allocated size %#x",
			first.Type, first.Name, first.InitializedSize, first.AllocatedSize)
	}

	max_clusters := math.MaxInt64 / cluster_size
	for _, run := range runs {
		if run.FileOffset < 0 || run.Length < 0 ||
			run.FileOffset > max_clusters-run.Length {
			return errors.Wrapf(MalformedAttributeError,
				"%v:%v run %v out of range", first.Type, first.Name, run)
		}

		if !run.IsSparse && (run.TargetOffset < 0 ||
			run.TargetOffset > max_clusters-run.Length) {
			return errors.Wrapf(MalformedAttributeError,
				"%v:%v run %v out of range", first.Type, first.Name, run)
		}
	}
	return nil
}

// A reader over this attribute alone.
func (self *Attribute) Reader(ntfs *NTFSContext) (*StreamReader, error) {
	return NewStreamReader(ntfs, self)
}

// Materialize the attribute's valid data.
func (self *Attribute) Data(ntfs *NTFSContext) ([]byte, error) {
	if !self.NonResident {
		return self.ResidentData()
	}

	reader, err := self.Reader(ntfs)
	if err != nil {
		return nil, err
	}
	return reader.Data()
}

// Find all the pieces of an attribute, following the record's
// $ATTRIBUTE_LIST into extension records. The attribute lists of
// extension records are never followed: references from an
// attribute list are always direct.
func (self *NTFSContext) GetStreamPieces(
	record *MFTRecord,
	attr_type AttributeType, name string) ([]*Attribute, error) {

	result := []*Attribute{}
	var attr_list *Attribute

	it := record.Attributes()
	for it.Next() {
		attr := it.Attribute()
		switch {
		case attr.Type == ATTR_TYPE_ATTRIBUTE_LIST:
			attr_list = attr
		case attr.Type == attr_type && attr.Name == name:
			result = append(result, attr)
		}
	}

	if it.Err() != nil && len(result) == 0 {
		return nil, it.Err()
	}

	if attr_list != nil && record.IsBaseRecord() {
		result = append(result,
			self.getExternalPieces(record, attr_list, attr_type, name)...)
	}

	if len(result) == 0 {
		return nil, errors.Errorf("Attribute %v:%v not found in record %d",
			attr_type, name, record.Index)
	}

	// Keep the first copy of each VCN range.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartVCN < result[j].StartVCN
	})

	deduped := []*Attribute{result[0]}
	for _, attr := range result[1:] {
		if attr.StartVCN != deduped[len(deduped)-1].StartVCN {
			deduped = append(deduped, attr)
		}
	}

	return deduped, nil
}

func (self *NTFSContext) getExternalPieces(
	record *MFTRecord, attr_list *Attribute,
	attr_type AttributeType, name string) []*Attribute {

	result := []*Attribute{}

	data, err := attr_list.Data(self)
	if err != nil {
		DebugPrint("Record %d: $ATTRIBUTE_LIST: %v\n", record.Index, err)
		return result
	}

	entries, err := ParseAttributeList(data)
	if err != nil {
		DebugPrint("Record %d: $ATTRIBUTE_LIST: %v\n", record.Index, err)
	}

	for _, entry := range entries {
		if entry.Type != attr_type || entry.Name != name {
			continue
		}

		ref := int64(entry.Reference.RecordNumber())
		if ref == record.RecordNumber() || ref == record.Index {
			continue
		}

		extension, err := self.GetMFT(ref)
		if err != nil {
			DebugPrint("Record %d: extension %v: %v\n", record.Index, entry, err)
			continue
		}

		it := extension.Attributes()
		for it.Next() {
			attr := it.Attribute()
			if attr.Type == entry.Type && attr.Id == entry.AttributeId {
				result = append(result, attr)
				break
			}
		}
	}

	return result
}

// Open the full stream of an attribute by type and name.
func (self *NTFSContext) OpenStream(
	record *MFTRecord,
	attr_type AttributeType, name string) (*StreamReader, error) {
	pieces, err := self.GetStreamPieces(record, attr_type, name)
	if err != nil {
		return nil, err
	}
	return NewStreamReader(self, pieces...)
}
