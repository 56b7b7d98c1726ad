package parser

import (
	"errors"
	"io"
)

// This reader is needed for reading raw windows devices, such as
// \\.\c: On windows, such devices may only be read using sector
// alignment in whole sector numbers. Every read is widened to whole
// sectors and passed to the device; nothing is cached between calls.
type SectorReader struct {
	reader      io.ReaderAt
	sector_size int64
}

func NewSectorReader(reader io.ReaderAt, sector_size int64) *SectorReader {
	if sector_size <= 0 {
		sector_size = 512
	}
	return &SectorReader{reader: reader, sector_size: sector_size}
}

// ReadAt reads a buffer from an offset in the backing device.
//
// The following semantics are used:
//  1. Reading within the device fills the buffer completely with
//     n = len(buf) and err = nil
//  2. Reading a buffer that starts within the device and ends past
//     it returns the available bytes with err = EOF
//  3. Reading outside the bounds of the device returns n = 0 and
//     err = EOF
func (self *SectorReader) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, io.EOF
	}

	if len(buf) == 0 {
		return 0, nil
	}

	start := offset - offset%self.sector_size
	end := offset + int64(len(buf))
	if end%self.sector_size != 0 {
		end += self.sector_size - end%self.sector_size
	}

	aligned := make([]byte, end-start)
	n, err := self.reader.ReadAt(aligned, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	skip := int(offset - start)
	if n <= skip {
		return 0, io.EOF
	}

	copied := copy(buf, aligned[skip:n])
	if copied < len(buf) {
		return copied, io.EOF
	}
	return copied, nil
}

func (self *SectorReader) Size() int64 {
	sizer, ok := self.reader.(Sizer)
	if ok {
		return sizer.Size()
	}
	return 0
}
