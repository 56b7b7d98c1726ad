package parser

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestRecord() []byte {
	record := &testRecord{
		flags: RECORD_IN_USE,
		attributes: []*testAttribute{
			residentAttribute(ATTR_TYPE_STANDARD_INFORMATION, "",
				buildStandardInformation(testFileTime, 0)),
			// Long enough to cross the first sector boundary.
			residentAttribute(ATTR_TYPE_DATA, "",
				bytes.Repeat([]byte{0xAA}, 600)),
		},
	}
	return record.encode(42)
}

func TestFixupRoundTrip(t *testing.T) {
	raw := buildTestRecord()

	// On disk the sector tails carry the sequence number.
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[510:]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[1022:]))

	err := ApplyFixups(raw, FIXUP_SECTOR_SIZE)
	require.NoError(t, err)

	// The data value spans offset 510 and is restored.
	assert.Equal(t, []byte{0xAA, 0xAA}, raw[510:512])
}

func TestFixupMismatch(t *testing.T) {
	raw := buildTestRecord()
	raw[1022] = 0x55

	err := ApplyFixups(raw, FIXUP_SECTOR_SIZE)
	assert.ErrorIs(t, err, CorruptStructureError)
	assert.Contains(t, err.Error(), "sector 1")

	// Both sectors are still restored from the array.
	assert.Equal(t, []byte{0xAA, 0xAA}, raw[510:512])
	assert.Equal(t, []byte{0, 0}, raw[1022:1024])
}

func TestFixupTableOutsideBuffer(t *testing.T) {
	raw := buildTestRecord()
	binary.LittleEndian.PutUint16(raw[4:], 1020)
	binary.LittleEndian.PutUint16(raw[6:], 3)

	saved := append([]byte{}, raw...)
	err := ApplyFixups(raw, FIXUP_SECTOR_SIZE)
	assert.ErrorIs(t, err, CorruptStructureError)
	assert.Equal(t, saved, raw)
}

func TestRecordFixupWarning(t *testing.T) {
	raw := buildTestRecord()
	raw[510] = 0x55

	record, err := NewMFTRecord(append([]byte{}, raw...), 42, GetDefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, len(record.Warnings))
	assert.Equal(t, int64(42), record.RecordNumber())
	assert.True(t, record.InUse())

	// The attribute stream is still usable.
	attrs, err := record.EnumerateAttributes()
	assert.NoError(t, err)
	assert.Equal(t, 2, len(attrs))

	options := GetDefaultOptions()
	options.StrictFixups = true
	_, err = NewMFTRecord(append([]byte{}, raw...), 42, options)
	assert.ErrorIs(t, err, CorruptStructureError)
}

func TestRecordBadSignature(t *testing.T) {
	raw := buildTestRecord()
	copy(raw, "BAAD")

	_, err := NewMFTRecord(raw, 42, GetDefaultOptions())
	assert.ErrorIs(t, err, CorruptStructureError)

	_, err = NewMFTRecord(raw[:20], 42, GetDefaultOptions())
	assert.ErrorIs(t, err, TruncatedRecordError)
}

func TestRecordHeader(t *testing.T) {
	record, err := NewMFTRecord(buildTestRecord(), 42, GetDefaultOptions())
	require.NoError(t, err)

	header := record.Header
	assert.Equal(t, "FILE", header.Signature)
	assert.Equal(t, uint16(MFT_RECORD_HEADER_SIZE), header.UpdateOffset)
	assert.Equal(t, uint16(3), header.UpdateNumber)
	assert.Equal(t, uint64(0x1000+42), header.LogFileSequenceNumber)
	assert.Equal(t, uint16(56), header.AttributeOffset)
	assert.Equal(t, uint32(42), header.RecordIndex)
	assert.Equal(t, uint16(1), header.UpdateSequenceNumber)
	assert.Equal(t, 2, len(header.UpdateSequenceArray))
	assert.Equal(t, "IN_USE", header.Flags.String())
	assert.True(t, record.IsBaseRecord())
	assert.False(t, record.IsDirectory())
}
