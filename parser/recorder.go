package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// A Recorder captures every read issued against the device into a
// directory so a decode can later be replayed without the original
// image. Previously recorded reads are served from the directory.
type Recorder struct {
	path string

	// Delegate reader, may be nil when replaying.
	reader io.ReaderAt
}

func (self *Recorder) filename(offset int64, length int) string {
	return filepath.Join(self.path, fmt.Sprintf("%#08x-%#x.bin", offset, length))
}

func (self *Recorder) ReadAt(buf []byte, offset int64) (int, error) {
	full_path := self.filename(offset, len(buf))
	data, err := os.ReadFile(full_path)
	if err == nil {
		n := copy(buf, data)
		if n < len(buf) {
			return n, io.EOF
		}
		return n, nil
	}

	if self.reader == nil {
		return 0, io.EOF
	}

	// Not recorded yet - pass the read to the delegate and keep it
	// for next time.
	n, err := self.reader.ReadAt(buf, offset)
	if err == nil || err == io.EOF {
		write_err := os.WriteFile(full_path, buf[:n], 0660)
		if write_err != nil {
			DebugPrint("Recorder: unable to write %v: %v\n",
				full_path, write_err)
		}
	}
	return n, err
}

func NewRecorder(path string, reader io.ReaderAt) *Recorder {
	return &Recorder{path: path, reader: reader}
}
