package main

import (
	"fmt"
	"os"
	"path"

	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	fls_command = app.Command(
		"fls", "Recursively list files.")

	fls_command_file_arg = fls_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	fls_command_arg = fls_command.Arg(
		"path", "The directory to start from (5 is the root).",
	).Default("5").String()

	fls_command_image_offset = fls_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

func walkDir(ntfs_ctx *parser.NTFSContext, table *tablewriter.Table,
	dir *parser.MFTRecord, prefix string, depth int, seen map[int64]bool) {
	if depth > ntfs_ctx.GetOptions().MaxDirectoryDepth || seen[dir.Index] {
		return
	}
	seen[dir.Index] = true

	infos, err := parser.ListDir(ntfs_ctx, dir)
	if err != nil {
		parser.DebugPrint("fls: %v: %v\n", prefix, err)
	}

	for _, info := range infos {
		full_path := path.Join(prefix, info.Name)
		table.Append([]string{
			info.MFTId,
			fmt.Sprintf("%v", info.Size),
			info.Mtime.String(),
			fmt.Sprintf("%v", info.IsDir),
			full_path,
		})

		if !info.IsDir {
			continue
		}

		child, err := GetMFTRecord(ntfs_ctx, info.MFTId)
		if err != nil {
			continue
		}
		walkDir(ntfs_ctx, table, child, full_path, depth+1, seen)
	}
}

func doFLS() {
	ntfs_ctx := getNTFSContext(*fls_command_file_arg, *fls_command_image_offset)

	dir, err := GetMFTRecord(ntfs_ctx, *fls_command_arg)
	kingpin.FatalIfError(err, "Can not open path")

	prefix, _ := parser.GetFullPath(ntfs_ctx, dir)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"MFT Id",
		"Size",
		"Mtime",
		"IsDir",
		"Path",
	})
	table.SetCaption(true, fmt.Sprintf(
		"Recursive listing of %v", *fls_command_arg))
	defer table.Render()

	walkDir(ntfs_ctx, table, dir, prefix, 0, make(map[int64]bool))
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "fls":
			doFLS()
		default:
			return false
		}
		return true
	})
}
