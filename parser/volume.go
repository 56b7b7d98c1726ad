package parser

import (
	"io"

	errors "github.com/pkg/errors"
)

// Raw access to an NTFS volume. Offsets are relative to the start of
// the volume (i.e. the boot sector is at offset 0).
type VolumeReader interface {
	io.ReaderAt
	ClusterSize() int64
	SectorSize() int64
	MFTStartCluster() int64
}

// Volumes may optionally know their size, in which case reads past
// the end fail early with IOError.
type Sizer interface {
	Size() int64
}

// A Volume is a VolumeReader backed by the boot sector.
type Volume struct {
	reader io.ReaderAt
	Boot   *BootSector

	// Size of the volume in bytes, 0 if unknown.
	size int64
}

func NewVolume(reader io.ReaderAt) (*Volume, error) {
	boot, err := ReadBootSector(reader, 0)
	if err != nil {
		return nil, err
	}

	err = boot.IsValid()
	if err != nil {
		return nil, err
	}

	result := &Volume{
		reader: reader,
		Boot:   boot,
		size:   int64(boot.TotalSectors) * int64(boot.SectorSize),
	}

	// The device may be smaller than what the boot sector claims
	// (e.g. a truncated image).
	sizer, ok := reader.(Sizer)
	if ok && sizer.Size() > 0 && sizer.Size() < result.size {
		result.size = sizer.Size()
	}

	return result, nil
}

func (self *Volume) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 || (self.size > 0 && offset >= self.size) {
		return 0, errors.Wrapf(IOError,
			"read at %#x outside volume of %#x bytes", offset, self.size)
	}
	return self.reader.ReadAt(buf, offset)
}

func (self *Volume) Size() int64 {
	return self.size
}

func (self *Volume) ClusterSize() int64 {
	return self.Boot.ClusterSize()
}

func (self *Volume) SectorSize() int64 {
	return int64(self.Boot.SectorSize)
}

func (self *Volume) MFTStartCluster() int64 {
	return int64(self.Boot.MFTCluster)
}

func (self *Volume) RecordSize() int64 {
	return self.Boot.RecordSize()
}

func (self *Volume) IndexBlockSize() int64 {
	return self.Boot.IndexBlockSize()
}

// Read exactly length bytes at offset. Anything short of that is an
// IOError.
func ReadBytes(reader io.ReaderAt, offset int64, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, errors.Wrapf(IOError,
			"invalid read of %#x bytes at %#x", length, offset)
	}

	buffer := make([]byte, length)
	n, err := reader.ReadAt(buffer, offset)
	STATS.Inc_PhysicalReads()

	if int64(n) == length {
		return buffer, nil
	}

	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	if errors.Is(err, IOError) {
		return nil, err
	}
	return nil, errors.Wrapf(IOError,
		"read %#x bytes at %#x (got %#x): %v", length, offset, n, err)
}
