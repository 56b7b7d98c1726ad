package parser

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// Seconds between the NTFS epoch (1601-01-01) and the unix epoch.
const filetimeEpochDelta = 11644473600

// Convert NTFS ticks (100ns since 1601) to a time.Time in UTC. The
// conversion is split into seconds and nanoseconds so the whole
// uint64 range is representable.
func FiletimeToTime(ft uint64) time.Time {
	secs := int64(ft/10000000) - filetimeEpochDelta
	nsecs := int64(ft%10000000) * 100
	return time.Unix(secs, nsecs).UTC()
}

// A FileTime object is a timestamp in windows filetime format.
type WinFileTime struct {
	time.Time
}

func NewWinFileTime(ft uint64) WinFileTime {
	return WinFileTime{FiletimeToTime(ft)}
}

// Display the time in the local timezone.
func (self WinFileTime) String() string {
	return self.In(time.Local).Format("2006-01-02 15:04:05")
}

func (self WinFileTime) GoString() string {
	return fmt.Sprintf("%v", self)
}

func parseFileTime(buffer []byte, offset int) WinFileTime {
	return NewWinFileTime(binary.LittleEndian.Uint64(buffer[offset:]))
}

// Decode a little endian UTF-16 buffer. Invalid sequences are
// replaced rather than failing the decode.
func ParseUTF16String(buffer []byte) string {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	result, err := decoder.Bytes(buffer)
	if err != nil {
		return ""
	}
	return string(result)
}

// Encode a string as little endian UTF-16. Used to compare names
// and by the tests to build records.
func EncodeUTF16String(in string) []byte {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	result, err := encoder.Bytes([]byte(in))
	if err != nil {
		return nil
	}
	return result
}

// A GUID as stored on disk (mixed endian).
type GUID [16]byte

func (self GUID) String() string {
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		binary.LittleEndian.Uint32(self[0:4]),
		binary.LittleEndian.Uint16(self[4:6]),
		binary.LittleEndian.Uint16(self[6:8]),
		self[8], self[9], self[10], self[11],
		self[12], self[13], self[14], self[15])
}

func (self GUID) IsZero() bool {
	return self == GUID{}
}
