package main

import (
	"fmt"
	"strings"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	boot_command = app.Command(
		"boot", "inspect the boot record.")

	boot_command_arg = boot_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	boot_command_image_offset = boot_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

func doBoot() {
	ntfs_ctx := getNTFSContext(*boot_command_arg, *boot_command_image_offset)
	fmt.Println(ntfs_ctx.Boot.DebugString())

	fmt.Printf("MFT records: %d\n", ntfs_ctx.RecordCount())

	root, err := ntfs_ctx.GetMFT(parser.MFT_RECORD_ROOT)
	kingpin.FatalIfError(err, "Root")

	fmt.Println(root.DebugString())

	si, err := root.StandardInformation()
	kingpin.FatalIfError(err, "STANDARD_INFORMATION")
	fmt.Println(strings.Join(formatOverview(si.Overview(), ""), "\n"))

	for _, filename := range root.FileNames() {
		fmt.Println(strings.Join(formatOverview(filename.Overview(), ""), "\n"))
	}

	fmt.Println("Nodes:")
	entries, err := root.Dir(ntfs_ctx)
	for _, node := range entries {
		fmt.Println(node.String())
	}
	kingpin.FatalIfError(err, "Root directory")
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "boot":
			doBoot()
		default:
			return false
		}
		return true
	})
}
