package parser

import (
	"os"

	errors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Options struct {
	// Maximum directory depth to analyze for paths.
	MaxDirectoryDepth int `yaml:"max_directory_depth"`

	// Maximum depth of index B-tree sub-nodes to follow.
	MaxIndexDepth int `yaml:"max_index_depth"`

	// Override the MFT record size from the boot sector.
	RecordSize int64 `yaml:"record_size"`

	// Treat fixup mismatches as fatal for the record instead of
	// returning the best effort data.
	StrictFixups bool `yaml:"strict_fixups"`

	// Carve deleted entries from index slack space.
	IncludeSlack bool `yaml:"include_slack"`

	// How many bytes of attribute content the tool displays.
	MaxResidentDump int `yaml:"max_resident_dump"`
}

func GetDefaultOptions() Options {
	return Options{
		MaxDirectoryDepth: 20,
		MaxIndexDepth:     32,
		MaxResidentDump:   100,
	}
}

// Load options from a YAML file. Fields missing from the file keep
// their default values.
func LoadOptions(filename string) (Options, error) {
	options := GetDefaultOptions()

	data, err := os.ReadFile(filename)
	if err != nil {
		return options, errors.Wrap(err, "LoadOptions")
	}

	err = yaml.Unmarshal(data, &options)
	if err != nil {
		return options, errors.Wrapf(err, "LoadOptions: parsing %v", filename)
	}

	return options, nil
}
