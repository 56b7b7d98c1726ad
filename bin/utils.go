package main

import (
	"io"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	record_directory = app.Flag(
		"record", "Path to read/write recorded data").
		Default("").String()
)

func getReader(reader io.ReaderAt) io.ReaderAt {
	if *record_directory == "" {
		return reader
	}

	// Create a recorder
	parser.Printf("Will record to dir %v\n", *record_directory)
	return parser.NewRecorder(*record_directory, reader)
}

func getOptions() parser.Options {
	if *config_flag == "" {
		return parser.GetDefaultOptions()
	}

	options, err := parser.LoadOptions(*config_flag)
	kingpin.FatalIfError(err, "Can not load config")
	return options
}

// Open the volume inside an image file. The image may be a raw file,
// a block device or an evidence container.
func getNTFSContext(fd *os.File, image_offset int64) *parser.NTFSContext {
	image, err := openImage(fd)
	kingpin.FatalIfError(err, "Can not open image")

	var reader io.ReaderAt = parser.NewSectorReader(getReader(image), 512)
	if image_offset > 0 {
		reader = &parser.OffsetReader{
			Offset: image_offset,
			Reader: reader,
		}
	}

	volume, err := parser.NewVolume(reader)
	kingpin.FatalIfError(err, "Can not open filesystem")

	ntfs_ctx, err := parser.NewNTFSContext(volume, getOptions())
	kingpin.FatalIfError(err, "Can not open filesystem")

	return ntfs_ctx
}

// Resolve an inode (1234-128-6) or a path to an MFT record.
func GetMFTRecord(ntfs_ctx *parser.NTFSContext, spec string) (*parser.MFTRecord, error) {
	record, _, _, err := parser.GetRecordForSpec(ntfs_ctx, spec)
	return record, err
}
