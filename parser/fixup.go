package parser

import (
	"encoding/binary"
	"fmt"
	"strings"

	errors "github.com/pkg/errors"
)

// NTFS protects multi-sector structures (MFT records, INDX blocks)
// with an update sequence array. The stride is always 512 bytes,
// independent of the device sector size.
const FIXUP_SECTOR_SIZE = 512

// Describes a sector whose trailing bytes did not carry the update
// sequence number.
type FixupMismatch struct {
	Sector   int
	Expected uint16
	Found    uint16
}

func (self FixupMismatch) String() string {
	return fmt.Sprintf("sector %d: expected %#04x found %#04x",
		self.Sector, self.Expected, self.Found)
}

// ApplyFixups validates and removes the update sequence protection
// of a structure in place. The fixup offset and count are read from
// the standard multi-sector header (offsets 4 and 6).
//
// Mismatched sectors are still restored from the array so the caller
// gets best effort data, but the mismatch is reported as a
// CorruptStructureError. Other errors mean the buffer was not
// touched.
func ApplyFixups(buffer []byte, sector_size int) error {
	if sector_size <= 0 {
		sector_size = FIXUP_SECTOR_SIZE
	}

	err := needBytes(buffer, 8, "multi-sector header")
	if err != nil {
		return err
	}

	fixup_offset := int64(binary.LittleEndian.Uint16(buffer[4:]))
	fixup_count := int64(binary.LittleEndian.Uint16(buffer[6:]))

	// Nothing to fix.
	if fixup_count == 0 {
		return nil
	}

	fixup_table, err := getSlice(buffer, fixup_offset, fixup_count*2)
	if err != nil {
		return errors.Wrap(CorruptStructureError,
			"update sequence array outside structure")
	}

	// One entry for the sequence number and one per sector.
	sectors := int(fixup_count - 1)
	if sectors*sector_size > len(buffer) {
		return errors.Wrapf(CorruptStructureError,
			"update sequence array covers %d sectors but structure has %d bytes",
			sectors, len(buffer))
	}

	magic := binary.LittleEndian.Uint16(fixup_table)

	// The table may itself lie at the end of a sector, so take a
	// copy before restoring anything.
	originals := make([]byte, sectors*2)
	copy(originals, fixup_table[2:])

	var mismatches []FixupMismatch
	for sector := 0; sector < sectors; sector++ {
		end := (sector+1)*sector_size - 2
		found := binary.LittleEndian.Uint16(buffer[end:])
		if found != magic {
			mismatches = append(mismatches, FixupMismatch{
				Sector: sector, Expected: magic, Found: found,
			})
		}

		buffer[end] = originals[sector*2]
		buffer[end+1] = originals[sector*2+1]
	}

	if len(mismatches) > 0 {
		STATS.Inc_FixupErrors()

		descriptions := make([]string, 0, len(mismatches))
		for _, m := range mismatches {
			descriptions = append(descriptions, m.String())
		}
		return errors.Wrapf(CorruptStructureError,
			"fixup mismatch: %s", strings.Join(descriptions, ", "))
	}

	return nil
}
