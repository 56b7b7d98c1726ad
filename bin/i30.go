package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	i30_command = app.Command(
		"i30", "Extract entries from a directory's $I30 index, including slack.")

	i30_command_file_arg = i30_command.Arg(
		"file", "The image file to inspect.",
	).Required().File()

	i30_command_arg = i30_command.Arg(
		"path", "The directory path or MFT entry.",
	).Default("5").String()

	i30_command_image_offset = i30_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()

	i30_command_file_csv = i30_command.Flag(
		"csv", "Output in CSV.",
	).Bool()
)

func doI30() {
	ntfs_ctx := getNTFSContext(*i30_command_file_arg, *i30_command_image_offset)

	dir, err := GetMFTRecord(ntfs_ctx, *i30_command_arg)
	kingpin.FatalIfError(err, "Can not open path")

	if !dir.HasIndex() {
		kingpin.Fatalf("MFT entry %v is not a directory", dir.Index)
	}

	data, err := parser.ExtractI30List(ntfs_ctx, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if *i30_command_file_csv {
		writer := csv.NewWriter(os.Stdout)
		defer writer.Flush()

		writer.Write([]string{"MFTId", "Name", "NameType", "Size",
			"AllocatedSize", "Mtime", "Atime", "Ctime", "Btime",
			"IsSlack", "SlackOffset"})

		for _, info := range data {
			writer.Write([]string{
				info.MFTId,
				info.Name,
				info.NameType,
				fmt.Sprintf("%v", info.Size),
				fmt.Sprintf("%v", info.AllocatedSize),
				fmt.Sprintf("%v", info.Mtime),
				fmt.Sprintf("%v", info.Atime),
				fmt.Sprintf("%v", info.Ctime),
				fmt.Sprintf("%v", info.Btime),
				fmt.Sprintf("%v", info.IsSlack),
				fmt.Sprintf("%v", info.SlackOffset),
			})
		}

	} else {
		serialized, err := json.Marshal(data)
		kingpin.FatalIfError(err, "serialized")
		fmt.Printf("%v\n", string(serialized))
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "i30":
			doI30()
		default:
			return false
		}
		return true
	})
}
