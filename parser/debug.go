package parser

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
)

var (
	debug       = false
	LZNT1_debug = false

	NTFS_DEBUG *bool
)

// Turn on the Printf() trace and the LZNT1 hex dumps.
func SetDebug(enabled bool) {
	debug = enabled
	LZNT1_debug = enabled
}

// Dump any decoded structure.
func Debug(arg interface{}) {
	spew.Dump(arg)
}

func Printf(fmt_str string, args ...interface{}) {
	if debug {
		fmt.Printf(fmt_str, args...)
	}
}

func debugLZNT1Decompress(fmt_str string, args ...interface{}) {
	if LZNT1_debug {
		fmt.Printf(fmt_str, args...)
	}
}

func debugHexDump(in []byte) string {
	if !LZNT1_debug {
		return ""
	}
	return hex.Dump(in)
}

func DebugPrint(fmt_str string, v ...interface{}) {
	if NTFS_DEBUG == nil {
		// os.Environ() seems very expensive in Go so we cache
		// it.
		_, pres := os.LookupEnv("NTFS_DEBUG")
		NTFS_DEBUG = &pres
	}

	if *NTFS_DEBUG {
		fmt.Fprintf(os.Stderr, fmt_str, v...)
	}
}
