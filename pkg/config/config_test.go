package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPartialFileMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("scanner:\n  rpm: 1200\n  single_line: true\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1200.0, cfg.Scanner.RPM)
	assert.True(t, cfg.Scanner.SingleLine)
	// untouched fields come from the defaults
	assert.Equal(t, Default().Scanner.CrystalHz, cfg.Scanner.CrystalHz)
	assert.Equal(t, Default().Serial.Port, cfg.Serial.Port)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Scanner.Facets = 6
	cfg.Exposure.StepsPerLine = 2
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
