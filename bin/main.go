package main

import (
	"encoding/json"
	"fmt"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/go-mft/parser"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("gomft",
		"A tool for inspecting NTFS MFT records.")

	config_flag = app.Flag(
		"config", "A YAML file with decoder options.").String()

	stats_flag = app.Flag(
		"stats", "Print decoder statistics when done.").Bool()

	debug_flag = app.Flag(
		"debug", "Trace decoding to stdout.").Bool()

	command_handlers []CommandHandler
)

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	parser.SetDebug(*debug_flag)

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}

	if *stats_flag {
		serialized, err := json.MarshalIndent(parser.STATS.Dict(), "", " ")
		kingpin.FatalIfError(err, "Marshal")
		fmt.Fprintln(os.Stderr, string(serialized))
	}
}
