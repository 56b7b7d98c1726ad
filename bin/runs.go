package main

import (
	"fmt"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	runs_command = app.Command(
		"runs", "Display the runs of a stream.")

	runs_command_file_arg = runs_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	runs_command_image_offset = runs_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	runs_command_raw_runs = runs_command.Flag(
		"raw_runs", "Also show raw runs.",
	).Bool()

	runs_command_arg = runs_command.Arg(
		"mft_id", "An inode in MFT notation e.g. 43-128-0.",
	).Required().String()
)

func doRuns() {
	ntfs_ctx := getNTFSContext(*runs_command_file_arg, *runs_command_image_offset)

	// Access by mft id (e.g. 1234-128-6) or filepath (e.g. C:\Folder\Hello.txt:hiddenstream)
	mft_entry, attr_type, name, err := parser.GetRecordForSpec(
		ntfs_ctx, *runs_command_arg)
	kingpin.FatalIfError(err, "Can not open path")

	pieces, err := ntfs_ctx.GetStreamPieces(mft_entry, attr_type, name)
	kingpin.FatalIfError(err, "Can not find stream")

	if *runs_command_raw_runs {
		for _, piece := range pieces {
			fmt.Println(piece.DebugString())
			if piece.IsResident() {
				continue
			}

			run_list, err := piece.RunList()
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			for _, run := range run_list {
				fmt.Printf("  %+v\n", run)
			}
		}
	}

	data, err := parser.NewStreamReader(ntfs_ctx, pieces...)
	kingpin.FatalIfError(err, "Can not open stream")

	if data.Runs() == nil {
		fmt.Println("Stream is resident")
		return
	}

	for idx, r := range parser.DebugRuns(data.Runs()) {
		fmt.Printf("%d %v\n", idx, r)
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "runs":
			doRuns()
		default:
			return false
		}
		return true
	})
}
