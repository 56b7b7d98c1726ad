package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"regexp"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	scan_command = app.Command(
		"scan", "Scan all MFT records, one JSON object per line.")

	scan_command_file_arg = scan_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	scan_command_image_offset = scan_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	scan_command_start = scan_command.Flag(
		"start", "The MFT entry to start with.",
	).Int64()

	scan_command_filename_filter = scan_command.Flag(
		"filename_filter", "A regex to filter on filename",
	).Default(".").String()

	scan_command_full_path = scan_command.Flag(
		"full_path", "Also resolve the full path of each record.",
	).Bool()
)

type DetailedHighlights struct {
	*parser.MFTHighlight
	FullPath string `json:",omitempty"`
}

func doScan() {
	filename_filter, err := regexp.Compile(*scan_command_filename_filter)
	kingpin.FatalIfError(err, "Invalid filename_filter")

	ntfs_ctx := getNTFSContext(*scan_command_file_arg, *scan_command_image_offset)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	for item := range parser.ScanMFT(ctx, ntfs_ctx, *scan_command_start) {
		matched := false
		for _, name := range item.FileNames {
			if filename_filter.MatchString(name) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		row := DetailedHighlights{MFTHighlight: item}
		if *scan_command_full_path {
			record, err := ntfs_ctx.GetMFT(item.EntryNumber)
			if err == nil {
				row.FullPath, _ = parser.GetFullPath(ntfs_ctx, record)
			}
		}

		serialized, err := json.Marshal(row)
		kingpin.FatalIfError(err, "Marshal")

		fmt.Println(string(serialized))
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "scan":
			doScan()
		default:
			return false
		}
		return true
	})
}
