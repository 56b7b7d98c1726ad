package parser

import "io"

// Presents a partition inside a disk image as a zero based volume.
type OffsetReader struct {
	Offset int64
	Reader io.ReaderAt
}

func (self *OffsetReader) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, io.EOF
	}
	return self.Reader.ReadAt(buf, offset+self.Offset)
}

func (self *OffsetReader) Size() int64 {
	sizer, ok := self.Reader.(Sizer)
	if ok && sizer.Size() > self.Offset {
		return sizer.Size() - self.Offset
	}
	return 0
}
