package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	errors "github.com/pkg/errors"
)

const (
	BOOT_SECTOR_SIZE = 512
	NTFS_OEM_NAME    = "NTFS    "
)

// The NTFS boot sector (the $Boot file's first sector).
type BootSector struct {
	OEMName           string
	SectorSize        uint16
	SectorsPerCluster uint8
	TotalSectors      uint64
	MFTCluster        uint64
	MirrorMFTCluster  uint64
	ClustersPerRecord int8
	ClustersPerIndex  int8
	Serial            uint64
	Magic             uint16
}

func ParseBootSector(buffer []byte) (*BootSector, error) {
	err := needBytes(buffer, BOOT_SECTOR_SIZE, "boot sector")
	if err != nil {
		return nil, err
	}

	return &BootSector{
		OEMName:           string(buffer[3:11]),
		SectorSize:        binary.LittleEndian.Uint16(buffer[11:]),
		SectorsPerCluster: buffer[13],
		TotalSectors:      binary.LittleEndian.Uint64(buffer[40:]),
		MFTCluster:        binary.LittleEndian.Uint64(buffer[48:]),
		MirrorMFTCluster:  binary.LittleEndian.Uint64(buffer[56:]),
		ClustersPerRecord: int8(buffer[64]),
		ClustersPerIndex:  int8(buffer[68]),
		Serial:            binary.LittleEndian.Uint64(buffer[72:]),
		Magic:             binary.LittleEndian.Uint16(buffer[510:]),
	}, nil
}

func ReadBootSector(reader io.ReaderAt, offset int64) (*BootSector, error) {
	buffer, err := ReadBytes(reader, offset, BOOT_SECTOR_SIZE)
	if err != nil {
		return nil, err
	}
	return ParseBootSector(buffer)
}

// Values above 0x80 encode the cluster size as a power of two
// (used for clusters larger than 64kb).
func (self *BootSector) sectorsPerCluster() int64 {
	if self.SectorsPerCluster > 0x80 {
		return 1 << uint(256-int(self.SectorsPerCluster))
	}
	return int64(self.SectorsPerCluster)
}

func (self *BootSector) ClusterSize() int64 {
	return self.sectorsPerCluster() * int64(self.SectorSize)
}

func (self *BootSector) BlockCount() int64 {
	cluster_size := self.ClusterSize()
	if cluster_size == 0 {
		return 0
	}
	return int64(self.TotalSectors) * int64(self.SectorSize) / cluster_size
}

// Positive values count clusters, negative values are a power of two
// in bytes.
func (self *BootSector) sizeFromClusters(value int8) int64 {
	if value > 0 {
		return int64(value) * self.ClusterSize()
	}
	return 1 << uint(-int(value))
}

func (self *BootSector) RecordSize() int64 {
	return self.sizeFromClusters(self.ClustersPerRecord)
}

func (self *BootSector) IndexBlockSize() int64 {
	return self.sizeFromClusters(self.ClustersPerIndex)
}

func (self *BootSector) IsValid() error {
	if self.Magic != 0xaa55 {
		return errors.Wrapf(CorruptStructureError,
			"Invalid boot sector magic %#x", self.Magic)
	}

	if self.OEMName != NTFS_OEM_NAME {
		return errors.Wrapf(CorruptStructureError,
			"Not an NTFS volume (OEM name %q)", self.OEMName)
	}

	sector_size := self.SectorSize
	if sector_size == 0 || (sector_size%512 != 0) {
		return errors.Wrapf(CorruptStructureError,
			"Invalid sector_size %d", sector_size)
	}

	switch self.ClusterSize() {
	case 0x200, 0x400, 0x800, 0x1000,
		0x2000, 0x4000, 0x8000, 0x10000,
		0x20000, 0x40000, 0x80000, 0x100000, 0x200000:
		break
	default:
		return errors.Wrapf(CorruptStructureError,
			"Invalid cluster size %#x", self.ClusterSize())
	}

	record_size := self.RecordSize()
	if record_size < 0x100 || record_size > MAX_MFT_ENTRY_SIZE {
		return errors.Wrapf(CorruptStructureError,
			"Invalid MFT record size %#x", record_size)
	}

	if self.BlockCount() == 0 {
		return errors.Wrap(CorruptStructureError, "Volume size is 0")
	}

	return nil
}

func (self *BootSector) DebugString() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "struct BootSector:\n")
	fmt.Fprintf(&b, "  OEMName: %q\n", self.OEMName)
	fmt.Fprintf(&b, "  SectorSize: %#x\n", self.SectorSize)
	fmt.Fprintf(&b, "  ClusterSize: %#x\n", self.ClusterSize())
	fmt.Fprintf(&b, "  TotalSectors: %#x\n", self.TotalSectors)
	fmt.Fprintf(&b, "  MFTCluster: %#x\n", self.MFTCluster)
	fmt.Fprintf(&b, "  MirrorMFTCluster: %#x\n", self.MirrorMFTCluster)
	fmt.Fprintf(&b, "  RecordSize: %#x\n", self.RecordSize())
	fmt.Fprintf(&b, "  IndexBlockSize: %#x\n", self.IndexBlockSize())
	fmt.Fprintf(&b, "  Serial: %#016x\n", self.Serial)
	return b.String()
}
