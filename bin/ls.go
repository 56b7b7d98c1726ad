package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	ls_command = app.Command(
		"ls", "List files.")

	ls_command_file_arg = ls_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	ls_command_arg = ls_command.Arg(
		"path", "The path to list or an MFT entry.",
	).Default("/").String()

	ls_command_image_offset = ls_command.Flag(
		"image_offset", "An offset into the file.",
	).Default("0").Int64()
)

func doLS() {
	ntfs_ctx := getNTFSContext(*ls_command_file_arg, *ls_command_image_offset)

	dir, err := GetMFTRecord(ntfs_ctx, *ls_command_arg)
	kingpin.FatalIfError(err, "Can not open path")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"MFT Id",
		"FullPath",
		"Size",
		"Mtime",
		"IsDir",
		"Filename",
	})
	table.SetCaption(true, fmt.Sprintf(
		"Directory listing for MFT %v", *ls_command_arg))
	defer table.Render()

	infos, err := parser.ListDir(ntfs_ctx, dir)
	if err != nil {
		// The listing is still usable.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	for _, info := range infos {
		child_entry, err := GetMFTRecord(ntfs_ctx, info.MFTId)
		if err != nil {
			continue
		}

		full_path, _ := parser.GetFullPath(ntfs_ctx, child_entry)

		table.Append([]string{
			info.MFTId,
			full_path,
			fmt.Sprintf("%v", info.Size),
			fmt.Sprintf("%v", info.Mtime.In(time.UTC)),
			fmt.Sprintf("%v", info.IsDir),
			info.Name,
		})
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "ls":
			doLS()
		default:
			return false
		}
		return true
	})
}
