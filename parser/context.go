package parser

import (
	"io"
	"sync"

	errors "github.com/pkg/errors"
)

// The $MFT is always record 0, the root directory record 5.
const (
	MFT_RECORD_MFT  = 0
	MFT_RECORD_ROOT = 5
)

type NTFSContext struct {
	// The reader over the disk
	DiskReader VolumeReader

	// The reader over the $MFT stream.
	MFTReader *StreamReader

	Boot *BootSector

	ClusterSize int64
	RecordSize  int64

	mu sync.Mutex

	// Analysis options can be set with SetOptions()
	options Options
}

// Open an NTFS volume within an image at a byte offset (e.g. the
// start of a partition).
func GetNTFSContext(image io.ReaderAt, offset int64) (*NTFSContext, error) {
	var reader io.ReaderAt = image
	if offset != 0 {
		reader = &OffsetReader{Offset: offset, Reader: image}
	}

	volume, err := NewVolume(reader)
	if err != nil {
		return nil, err
	}

	return NewNTFSContext(volume, GetDefaultOptions())
}

// Bootstrap the $MFT: record 0 is read directly from the start
// cluster, then its $DATA stream is used to locate every other
// record.
func NewNTFSContext(volume VolumeReader, options Options) (*NTFSContext, error) {
	ntfs := &NTFSContext{
		DiskReader:  volume,
		ClusterSize: volume.ClusterSize(),
		options:     options,
	}

	v, ok := volume.(*Volume)
	if ok {
		ntfs.Boot = v.Boot
		ntfs.RecordSize = v.RecordSize()
	}

	if options.RecordSize > 0 {
		ntfs.RecordSize = options.RecordSize
	}

	if ntfs.RecordSize <= 0 || ntfs.RecordSize > MAX_MFT_ENTRY_SIZE {
		return nil, errors.Wrapf(CorruptStructureError,
			"Invalid MFT record size %#x", ntfs.RecordSize)
	}

	if ntfs.ClusterSize <= 0 {
		return nil, errors.Wrapf(CorruptStructureError,
			"Invalid cluster size %#x", ntfs.ClusterSize)
	}

	mft_offset := volume.MFTStartCluster() * ntfs.ClusterSize
	buffer, err := ReadBytes(volume, mft_offset, ntfs.RecordSize)
	if err != nil {
		return nil, errors.Wrap(err, "Reading $MFT record")
	}

	mft_record, err := NewMFTRecord(buffer, MFT_RECORD_MFT, options)
	if err != nil {
		return nil, errors.Wrap(err, "Reading $MFT record")
	}

	// First pass: only the pieces inside record 0. This is enough
	// to reach the extension records which are normally at the
	// start of the $MFT.
	pieces := mft_record.GetAttributes(ATTR_TYPE_DATA)
	local := []*Attribute{}
	for _, attr := range pieces {
		if attr.Name == "" {
			local = append(local, attr)
		}
	}

	if len(local) == 0 {
		return nil, errors.Wrap(CorruptStructureError,
			"$MFT record has no $DATA attribute")
	}

	ntfs.MFTReader, err = newPartialStreamReader(ntfs, local)
	if err != nil {
		return nil, errors.Wrap(err, "$MFT $DATA")
	}

	// Second pass: stitch in the pieces from the attribute list.
	all_pieces, err := ntfs.GetStreamPieces(mft_record, ATTR_TYPE_DATA, "")
	if err == nil && len(all_pieces) > len(local) {
		reader, err := NewStreamReader(ntfs, all_pieces...)
		if err != nil {
			return nil, errors.Wrap(err, "$MFT $DATA")
		}
		ntfs.MFTReader = reader
	}

	return ntfs, nil
}

// Like NewStreamReader but tolerates runs which do not cover the
// full valid data length.
func newPartialStreamReader(
	ntfs *NTFSContext, pieces []*Attribute) (*StreamReader, error) {
	reader, err := NewStreamReader(ntfs, pieces...)
	if err == nil || !errors.Is(err, UnresolvableRunError) {
		return reader, err
	}

	runs := []*ReaderRun{}
	for _, piece := range pieces {
		if !piece.NonResident {
			continue
		}
		run_list, err := piece.RunList()
		if err != nil {
			return nil, err
		}
		runs = append(runs, MakeReaderRuns(
			run_list, int64(piece.StartVCN), ntfs.DiskReader)...)
	}

	run_reader := NewRunReader(runs, ntfs.ClusterSize)
	covered := run_reader.Size()
	return &StreamReader{
		reader: LimitedReader{ReaderAt: run_reader, N: covered},
		size:   covered,
		runs:   run_reader,
	}, nil
}

func (self *NTFSContext) SetOptions(options Options) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.options = options
}

func (self *NTFSContext) GetOptions() Options {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.options
}

func (self *NTFSContext) GetRecordSize() int64 {
	return self.RecordSize
}

// The number of records the $MFT stream can hold.
func (self *NTFSContext) RecordCount() int64 {
	if self.MFTReader == nil || self.RecordSize == 0 {
		return 0
	}
	return self.MFTReader.Size() / self.RecordSize
}

// Read record id from the $MFT stream. Records are re-read and
// re-decoded on every call.
func (self *NTFSContext) GetMFT(id int64) (*MFTRecord, error) {
	if self.MFTReader == nil {
		return nil, errors.New("No $MFT known.")
	}

	record_size := self.GetRecordSize()
	if record_size <= 0 {
		return nil, errors.Wrapf(CorruptStructureError,
			"invalid record size %d", record_size)
	}

	if id < 0 || id >= self.MFTReader.Size()/record_size {
		return nil, errors.Wrapf(RecordNotFoundError,
			"record %d outside $MFT of %#x bytes", id, self.MFTReader.Size())
	}

	buffer := make([]byte, record_size)
	n, err := self.MFTReader.ReadAt(buffer, id*record_size)
	if int64(n) < record_size {
		if err == nil || errors.Is(err, io.EOF) {
			err = errors.Wrapf(IOError, "short read of record %d", id)
		}
		return nil, errors.Wrapf(err, "record %d", id)
	}

	return NewMFTRecord(buffer, id, self.GetOptions())
}
