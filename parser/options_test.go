package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(`
max_index_depth: 4
strict_fixups: true
include_slack: true
`), 0600))

	options, err := LoadOptions(filename)
	require.NoError(t, err)

	assert.Equal(t, 4, options.MaxIndexDepth)
	assert.True(t, options.StrictFixups)
	assert.True(t, options.IncludeSlack)

	// Missing fields keep their defaults.
	assert.Equal(t, 20, options.MaxDirectoryDepth)
	assert.Equal(t, 100, options.MaxResidentDump)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRecordSizeOverride(t *testing.T) {
	volume, err := NewVolume(buildTestImage().Reader())
	require.NoError(t, err)

	options := GetDefaultOptions()
	options.RecordSize = 1 << 20

	_, err = NewNTFSContext(volume, options)
	assert.ErrorIs(t, err, CorruptStructureError)

	// The boot sector size is used without an override.
	ntfs, err := NewNTFSContext(volume, GetDefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(testRecordSize), ntfs.GetRecordSize())
}
