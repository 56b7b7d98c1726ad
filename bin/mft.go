package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/olekukonko/tablewriter"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

var (
	mft_command = app.Command(
		"mft", "Display an MFT record and its attributes.")

	mft_command_file_arg = mft_command.Arg(
		"file", "The image file to inspect",
	).Required().File()

	mft_command_arg = mft_command.Arg(
		"inode", "The MFT entry (or path) to display.",
	).Default("5").String()

	mft_command_image_offset = mft_command.Flag(
		"image_offset", "The offset in the image to use.",
	).Int64()
)

// Render an overview as aligned "key : value" lines. Nested dicts
// are indented and lists are printed one item per line.
func formatOverview(dict *ordereddict.Dict, indent string) []string {
	result := []string{}
	for _, key := range dict.Keys() {
		value, _ := dict.Get(key)
		label := fmt.Sprintf("%-24s", indent+key)

		switch t := value.(type) {
		case *ordereddict.Dict:
			result = append(result, label+":")
			result = append(result, formatOverview(t, indent+"  ")...)

		case []string:
			result = append(result, indent+key)
			for _, item := range t {
				result = append(result, indent+"       "+item)
			}

		default:
			result = append(result, fmt.Sprintf("%s: %v", label, value))
		}
	}
	return result
}

func printHeader(info *parser.RecordInfo) {
	header := info.Header

	usa := []string{}
	for _, item := range header.UpdateSequenceArray {
		usa = append(usa, fmt.Sprintf("%04x", item))
	}

	fmt.Printf("Signature         : %v\n", header.Signature)
	fmt.Printf("Update Offset     : %v\n", header.UpdateOffset)
	fmt.Printf("Update Number     : %v\n", header.UpdateNumber)
	fmt.Printf("$LogFile LSN      : %v\n", header.LogFileSequenceNumber)
	fmt.Printf("Sequence Number   : %v\n", header.SequenceNumber)
	fmt.Printf("Hardlink Count    : %v\n", header.HardLinkCount)
	fmt.Printf("Attribute Offset  : %v\n", header.AttributeOffset)
	fmt.Printf("Flags             : %v\n", header.Flags)
	fmt.Printf("Real Size         : %v\n", header.UsedSize)
	fmt.Printf("Allocated Size    : %v\n", header.AllocatedSize)
	fmt.Printf("Base File Record  : %v\n", header.BaseRecord)
	fmt.Printf("Next Attribute ID : %v\n", header.NextAttributeId)
	fmt.Printf("MFT Record Index  : %v\n", header.RecordIndex)
	fmt.Printf("Update Seq Number : %v\n", header.UpdateSequenceNumber)
	fmt.Printf("Update Seq Array  : %v\n", strings.Join(usa, ""))
	fmt.Println()
}

func doMFT() {
	ntfs_ctx := getNTFSContext(*mft_command_file_arg, *mft_command_image_offset)

	record, err := GetMFTRecord(ntfs_ctx, *mft_command_arg)
	kingpin.FatalIfError(err, "Can not open record")

	info := parser.ModelMFTRecord(ntfs_ctx, record)

	fmt.Printf("MFT (inode:%d) from %v\n\n", info.MFTID, (*mft_command_file_arg).Name())
	printHeader(info)

	for _, warning := range info.Errors {
		fmt.Printf("Warning: %v\n", warning)
	}

	fmt.Println("Attributes:")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"Id",
		"Type",
		"Non-resident",
		"Length",
		"Overview",
	})
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	defer table.Render()

	for _, attr := range info.Attributes {
		overview := ""
		if attr.Error != "" {
			overview = "Error: " + attr.Error
		} else if attr.Overview != nil {
			overview = strings.Join(formatOverview(attr.Overview, ""), "\n")
		}

		non_resident := "False"
		if attr.NonResident {
			non_resident = "True"
		}

		table.Append([]string{
			fmt.Sprintf("%d", attr.Index),
			attr.Type,
			non_resident,
			fmt.Sprintf("%d", attr.Length),
			overview,
		})
	}
}

func init() {
	command_handlers = append(command_handlers, func(command string) bool {
		switch command {
		case "mft":
			doMFT()
		default:
			return false
		}
		return true
	})
}
