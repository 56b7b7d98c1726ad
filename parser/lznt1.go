/*
Decompression support for the LZNT1 compression algorithm.

Reference:
http://msdn.microsoft.com/en-us/library/jj665697.aspx
(2.5 LZNT1 Algorithm Details)
*/

package parser

import (
	"encoding/binary"

	errors "github.com/pkg/errors"
)

const (
	LZNT1_COMPRESSED_MASK = uint16(1 << 15)
	LZNT1_SIZE_MASK       = uint16(1<<12) - 1

	// Each chunk decompresses to at most 4kb.
	LZNT1_CHUNK_SIZE = 0x1000
)

// The number of bits used for the back reference offset grows with
// the position inside the chunk.
func get_displacement(offset uint16) byte {
	result := byte(0)
	for {
		if offset < 0x10 {
			return result
		}

		offset >>= 1
		result += 1
	}
}

// Decompress an LZNT1 compressed buffer: a sequence of chunks each
// with a 2 byte header (bit 15: compressed, low 12 bits: size - 3).
func LZNT1Decompress(in []byte) ([]byte, error) {
	debugLZNT1Decompress("LZNT1Decompress in:\n%s\n", debugHexDump(in))

	out := make([]byte, 0, LZNT1_CHUNK_SIZE)

	for i := 0; i+2 <= len(in); {
		chunk_header := binary.LittleEndian.Uint16(in[i:])
		if chunk_header == 0 {
			break
		}

		chunk_start := len(out)
		chunk_end := i + 2 + int(chunk_header&LZNT1_SIZE_MASK) + 1
		i += 2

		if chunk_end > len(in) {
			return out, errors.Wrapf(CorruptStructureError,
				"LZNT1 chunk at %#x ends at %#x past input of %#x bytes",
				i-2, chunk_end, len(in))
		}

		// Chunk is stored uncompressed.
		if chunk_header&LZNT1_COMPRESSED_MASK == 0 {
			out = append(out, in[i:chunk_end]...)
			i = chunk_end
			continue
		}

		for i < chunk_end {
			flags := in[i]
			i++

			for bit := 0; bit < 8 && i < chunk_end; bit++ {
				if flags&1 == 0 {
					out = append(out, in[i])
					i++

				} else {
					if i+2 > chunk_end {
						return out, errors.Wrapf(CorruptStructureError,
							"LZNT1 back reference at %#x overruns chunk", i)
					}
					pointer := binary.LittleEndian.Uint16(in[i:])
					i += 2

					displacement := get_displacement(
						uint16(len(out) - chunk_start - 1))
					symbol_offset := int(pointer>>(12-displacement)) + 1
					symbol_length := int(pointer&(0xFFF>>displacement)) + 3

					start_offset := len(out) - symbol_offset
					if start_offset < chunk_start {
						return out, errors.Wrapf(CorruptStructureError,
							"LZNT1 back reference %#x at %#x is before the chunk",
							pointer, i-2)
					}

					// The source may overlap the output so copy
					// byte by byte.
					for j := 0; j < symbol_length; j++ {
						out = append(out, out[start_offset+j])
					}
				}
				flags >>= 1
			}
		}
	}

	debugLZNT1Decompress("decompression out %v\n", len(out))
	return out, nil
}
