package parser

import (
	errors "github.com/pkg/errors"
)

// Error taxonomy of the decoder. All errors returned by this package
// wrap one of these so callers can use errors.Is() to decide whether
// to skip an attribute, a record or give up.
var (
	// The underlying device read failed or was out of range.
	IOError = errors.New("IoError")

	// A fixup mismatch or a bad structure magic. The data is still
	// returned on a best effort basis.
	CorruptStructureError = errors.New("CorruptStructure")

	// The attribute stream can not be safely advanced.
	MalformedAttributeError = errors.New("MalformedAttribute")

	// A claimed length or offset exceeds the buffer.
	TruncatedRecordError = errors.New("TruncatedRecord")

	// A non-resident run can not be read.
	UnresolvableRunError = errors.New("UnresolvableRun")

	// A recognized form which is not implemented.
	UnsupportedError = errors.New("Unsupported")

	// The record index is outside the $MFT.
	RecordNotFoundError = errors.New("RecordNotFound")
)

// Slice a buffer after checking the range is inside it.
func getSlice(buffer []byte, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 ||
		offset > int64(len(buffer)) ||
		length > int64(len(buffer))-offset {
		return nil, errors.Wrapf(TruncatedRecordError,
			"range %#x+%#x exceeds buffer of %#x bytes",
			offset, length, len(buffer))
	}
	return buffer[offset : offset+length], nil
}

func needBytes(buffer []byte, length int, what string) error {
	if len(buffer) < length {
		return errors.Wrapf(TruncatedRecordError,
			"%s needs %d bytes but only %d available",
			what, length, len(buffer))
	}
	return nil
}
