package main

import (
	"io"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	cat_command = app.Command(
		"cat", "Dump file stream.")

	cat_command_file_arg = cat_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	cat_command_arg = cat_command.Arg(
		"path", "The path (with optional :ads) or inode to extract.",
	).Required().String()

	cat_command_offset = cat_command.Flag(
		"offset", "The offset to start reading.",
	).Int64()

	cat_command_length = cat_command.Flag(
		"length", "Maximum number of bytes to read.",
	).Int64()

	cat_command_image_offset = cat_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	cat_command_output_file = cat_command.Flag(
		"out", "Write to this file",
	).OpenFile(os.O_RDWR|os.O_CREATE|os.O_TRUNC, os.FileMode(0666))
)

func doCAT() {
	ntfs_ctx := getNTFSContext(*cat_command_file_arg, *cat_command_image_offset)

	data, err := parser.GetDataForPath(ntfs_ctx, *cat_command_arg)
	kingpin.FatalIfError(err, "Can not open stream")

	var fd io.WriteCloser = os.Stdout
	if *cat_command_output_file != nil {
		fd = *cat_command_output_file
		defer fd.Close()
	}

	end := data.Size()
	if *cat_command_length > 0 {
		end = parser.CapInt64(*cat_command_offset+*cat_command_length, end)
	}

	buf := make([]byte, 1024*1024*10)
	offset := *cat_command_offset
	for offset < end {
		to_read := parser.CapInt64(int64(len(buf)), end-offset)
		n, err := data.ReadAt(buf[:to_read], offset)
		if n > 0 {
			_, write_err := fd.Write(buf[:n])
			kingpin.FatalIfError(write_err, "Write")
		}
		if err != nil && err != io.EOF {
			kingpin.FatalIfError(err, "Read at %#x", offset)
		}
		if n == 0 {
			return
		}
		offset += int64(n)
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "cat":
			doCAT()
		default:
			return false
		}
		return true
	})
}
