package parser

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	errors "github.com/pkg/errors"
)

// A single entry of a packed run list. Offset is the signed delta
// from the previous run's starting cluster (absolute for the first
// run).
type Run struct {
	RelativeUrnOffset int64
	Length            int64
	Sparse            bool
}

// Decode a packed run list. Each run starts with a header byte: the
// low nibble is the size of the length field, the high nibble the
// size of the offset field. A zero header ends the list.
func ParseRunList(buffer []byte) ([]Run, error) {
	result := []Run{}

	for offset := 0; offset < len(buffer); {
		idx := buffer[offset]
		if idx == 0 {
			return result, nil
		}

		length_size := int(idx & 0xF)
		run_offset_size := int(idx >> 4)
		offset += 1

		if length_size == 0 || length_size > 8 || run_offset_size > 8 {
			return result, errors.Wrapf(MalformedAttributeError,
				"invalid run header %#x at %#x", idx, offset-1)
		}

		if offset+length_size+run_offset_size > len(buffer) {
			return result, errors.Wrapf(TruncatedRecordError,
				"run at %#x overruns run list of %#x bytes",
				offset-1, len(buffer))
		}

		// Pad out to 8 bytes.
		var length_buffer [8]byte
		copy(length_buffer[:], buffer[offset:offset+length_size])
		offset += length_size

		// Sign extend if the last byte is larger than 0x80.
		var offset_buffer [8]byte
		if run_offset_size > 0 &&
			buffer[offset+run_offset_size-1]&0x80 != 0 {
			for i := range offset_buffer {
				offset_buffer[i] = 0xFF
			}
		}
		copy(offset_buffer[:], buffer[offset:offset+run_offset_size])
		offset += run_offset_size

		result = append(result, Run{
			RelativeUrnOffset: int64(binary.LittleEndian.Uint64(offset_buffer[:])),
			Length:            int64(binary.LittleEndian.Uint64(length_buffer[:])),
			Sparse:            run_offset_size == 0,
		})
	}

	// Ran out of attribute without a terminator. This is common
	// enough when the run list exactly fills the attribute.
	return result, nil
}

func (self *Attribute) RunList() ([]Run, error) {
	if !self.NonResident {
		return nil, errors.Wrapf(UnsupportedError,
			"%v is resident and has no run list", self.Type)
	}

	if int(self.RunListOffset) > len(self.raw) {
		return nil, errors.Wrapf(TruncatedRecordError,
			"run list offset %#x outside attribute of %#x bytes",
			self.RunListOffset, len(self.raw))
	}

	return ParseRunList(self.raw[self.RunListOffset:])
}

// A run in absolute terms: FileOffset is the VCN, TargetOffset the
// LCN. Both are in clusters.
type ReaderRun struct {
	FileOffset       int64
	TargetOffset     int64
	Length           int64
	CompressedLength int64
	IsSparse         bool
	Reader           io.ReaderAt
}

func (self *ReaderRun) String() string {
	if self.IsSparse {
		return fmt.Sprintf("{VCN %d Sparse Length %d}",
			self.FileOffset, self.Length)
	}
	return fmt.Sprintf("{VCN %d LCN %d Length %d Compressed %d}",
		self.FileOffset, self.TargetOffset, self.Length, self.CompressedLength)
}

// Decompress a compression unit. The result is always padded to the
// full size of the unit: LZNT1 omits trailing zeros.
func (self *ReaderRun) Decompress(cluster_size int64) ([]byte, error) {
	Printf("Decompress %v\n", self)
	compressed, err := ReadBytes(self.Reader,
		self.TargetOffset*cluster_size, self.CompressedLength*cluster_size)
	if err != nil {
		return nil, errors.Wrapf(UnresolvableRunError, "%v: %v", self, err)
	}

	decompressed, err := LZNT1Decompress(compressed)
	if err != nil {
		return nil, errors.Wrapf(CorruptStructureError, "%v: %v", self, err)
	}

	unit_size := int(self.Length * cluster_size)
	if len(decompressed) > unit_size {
		return decompressed[:unit_size], nil
	}
	return append(decompressed, make([]byte, unit_size-len(decompressed))...), nil
}

// Convert the NTFS relative runlist into an absolute run list
// starting at start_vcn.
func MakeReaderRuns(runs []Run, start_vcn int64, disk_reader io.ReaderAt) []*ReaderRun {
	reader_runs := []*ReaderRun{}
	file_offset := start_vcn
	target_offset := int64(0)

	for _, run := range runs {
		// Sparse run.
		if run.Sparse {
			STATS.Inc_SparseRuns()
			reader_runs = append(reader_runs, &ReaderRun{
				FileOffset: file_offset,
				Length:     run.Length,
				IsSparse:   true,
				Reader:     disk_reader,
			})

		} else {
			target_offset += run.RelativeUrnOffset
			reader_runs = append(reader_runs, &ReaderRun{
				FileOffset:   file_offset,
				TargetOffset: target_offset,
				Length:       run.Length,
				Reader:       disk_reader,
			})
		}

		file_offset += run.Length
	}
	return reader_runs
}

// Break runs up into compression units. A compressed unit is stored
// as a data run shorter than the unit followed by a sparse run
// padding it out, eg. with a 16 cluster unit:
//
// [{0 474540 47} {47 sparse 1} {48 474588 1213} {1261 sparse 3}]
//
// Normalizes to:
//
// [{0 474540 32} {32 474572 16 compressed 15} {48 474588 1200}
//  {1248 475788 16 compressed 13}]
func NormalizeCompressedRuns(
	runs []*ReaderRun, compression_unit_size int64) []*ReaderRun {
	if compression_unit_size <= 0 {
		return runs
	}

	// Work on copies, the sparse runs are consumed as we go.
	pending := make([]ReaderRun, 0, len(runs))
	for _, r := range runs {
		pending = append(pending, *r)
	}

	result := []*ReaderRun{}
	for i := 0; i < len(pending); i++ {
		run := pending[i]
		if run.Length <= 0 {
			continue
		}

		// Whole units are stored as they are.
		if run.Length >= compression_unit_size {
			whole := run.Length - run.Length%compression_unit_size
			result = append(result, &ReaderRun{
				FileOffset:   run.FileOffset,
				TargetOffset: run.TargetOffset,
				Length:       whole,
				IsSparse:     run.IsSparse,
				Reader:       run.Reader,
			})

			run.FileOffset += whole
			if !run.IsSparse {
				run.TargetOffset += whole
			}
			run.Length -= whole
		}

		if run.Length == 0 {
			continue
		}

		if !run.IsSparse && i+1 < len(pending) &&
			pending[i+1].IsSparse &&
			pending[i+1].Length+run.Length >= compression_unit_size {

			result = append(result, &ReaderRun{
				FileOffset:   run.FileOffset,
				TargetOffset: run.TargetOffset,

				// Take up the entire compression unit
				Length:           compression_unit_size,
				CompressedLength: run.Length,
				Reader:           run.Reader,
			})

			swallowed := compression_unit_size - run.Length
			pending[i+1].Length -= swallowed
			pending[i+1].FileOffset += swallowed
			continue
		}

		tail := run
		result = append(result, &tail)
	}

	Printf("compression_unit_size: %v\nRunlist: %v\nNormalized to: %v\n",
		compression_unit_size, runs, result)

	return result
}

// An io.ReaderAt which works off runs. Reads never go past the
// runs: a short read returns io.EOF.
type RunReader struct {
	runs         []*ReaderRun
	cluster_size int64
}

func NewRunReader(runs []*ReaderRun, cluster_size int64) *RunReader {
	sorted := append([]*ReaderRun{}, runs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FileOffset < sorted[j].FileOffset
	})

	return &RunReader{
		runs:         sorted,
		cluster_size: cluster_size,
	}
}

func (self *RunReader) Runs() []*ReaderRun {
	return self.runs
}

// The number of bytes covered by the runs, starting at VCN 0. Gaps
// in the VCN space are not counted.
func (self *RunReader) Size() int64 {
	if self.cluster_size <= 0 {
		return 0
	}

	// Saturate rather than wrap on absurd run lengths.
	max_clusters := math.MaxInt64 / self.cluster_size
	end := int64(0)
	for _, run := range self.runs {
		if run.FileOffset != end || run.Length < 0 {
			break
		}
		if run.Length > max_clusters-end {
			return max_clusters * self.cluster_size
		}
		end += run.Length
	}
	return end * self.cluster_size
}

func (self *RunReader) findRun(file_offset int64) *ReaderRun {
	idx := sort.Search(len(self.runs), func(i int) bool {
		run := self.runs[i]
		return (run.FileOffset+run.Length)*self.cluster_size > file_offset
	})
	if idx >= len(self.runs) {
		return nil
	}

	run := self.runs[idx]
	if run.FileOffset*self.cluster_size > file_offset {
		return nil
	}
	return run
}

func (self *RunReader) readFromARun(
	run *ReaderRun, buf []byte, run_offset int64) (int, error) {
	to_read := run.Length*self.cluster_size - run_offset
	if int64(len(buf)) < to_read {
		to_read = int64(len(buf))
	}

	switch {
	// The run is sparse - it reads as zeros.
	case run.IsSparse:
		for i := int64(0); i < to_read; i++ {
			buf[i] = 0
		}
		return int(to_read), nil

	case run.CompressedLength > 0:
		decompressed, err := run.Decompress(self.cluster_size)
		if err != nil {
			return 0, err
		}
		return copy(buf[:to_read], decompressed[run_offset:]), nil

	default:
		STATS.Inc_RunsResolved()
		disk_offset := run.TargetOffset*self.cluster_size + run_offset
		data, err := ReadBytes(run.Reader, disk_offset, to_read)
		if err != nil {
			return 0, errors.Wrapf(UnresolvableRunError, "%v: %v", run, err)
		}
		return copy(buf, data), nil
	}
}

func (self *RunReader) ReadAt(buf []byte, file_offset int64) (int, error) {
	buf_idx := 0

	for buf_idx < len(buf) {
		// Find the run which covers the required offset.
		run := self.findRun(file_offset)
		if run == nil {
			Printf("Could not find runs for offset %d: %v. Cluster size %d\n",
				file_offset, self.runs, self.cluster_size)
			return buf_idx, io.EOF
		}

		run_offset := file_offset - run.FileOffset*self.cluster_size
		n, err := self.readFromARun(run, buf[buf_idx:], run_offset)
		if err != nil {
			Printf("Reading run %v returned error %v\n", run, err)
			return buf_idx, err
		}

		if n == 0 {
			return buf_idx, io.EOF
		}

		buf_idx += n
		file_offset += int64(n)
	}

	return buf_idx, nil
}

// Limit a reader to the valid data length.
type LimitedReader struct {
	io.ReaderAt
	N int64
}

func (self LimitedReader) ReadAt(buff []byte, off int64) (int, error) {
	if off >= self.N {
		return 0, io.EOF
	}

	to_read := int64(len(buff))
	if off+to_read > self.N {
		to_read = self.N - off
	}

	n, err := self.ReaderAt.ReadAt(buff[:to_read], off)
	if err == nil && int64(n) < int64(len(buff)) {
		err = io.EOF
	}
	return n, err
}

func (self LimitedReader) Size() int64 {
	return self.N
}

type RunInfo struct {
	Type             string
	FromOffset       int64
	ToOffset         int64
	Length           int64
	CompressedLength int64
	IsSparse         bool
	ClusterSize      int64
}

func (self RunInfo) String() string {
	properties := ""
	if self.IsSparse {
		properties += "Sparse "
	}
	if self.CompressedLength != 0 {
		properties += fmt.Sprintf("Compressed Length %v", self.CompressedLength)
	}

	return fmt.Sprintf("%v: VCN %v -> LCN %v (Length %v, %v Cluster %v)",
		self.Type, self.FromOffset, self.ToOffset, self.Length,
		properties, self.ClusterSize)
}

func DebugRuns(reader *RunReader) []*RunInfo {
	result := make([]*RunInfo, 0, len(reader.runs))
	for _, run := range reader.runs {
		run_type := "Data"
		switch {
		case run.IsSparse:
			run_type = "Sparse"
		case run.CompressedLength > 0:
			run_type = "Compressed"
		}

		result = append(result, &RunInfo{
			Type:             run_type,
			FromOffset:       run.FileOffset,
			ToOffset:         run.TargetOffset,
			Length:           run.Length,
			CompressedLength: run.CompressedLength,
			IsSparse:         run.IsSparse,
			ClusterSize:      reader.cluster_size,
		})
	}
	return result
}
