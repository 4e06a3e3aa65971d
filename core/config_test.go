package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig(`
[trace]
level = "debug"
components = "PMML,MODEL"

[performance]
enabled = true
sort_by = "calls"

[state]
compression = "zstd"
`)
	require.NoError(t, err)
	assert.Equal(t, "debug", config.Trace.Level)
	assert.True(t, config.Performance.Enabled)
	assert.Equal(t, "calls", config.Performance.SortBy)
	assert.Equal(t, "zstd", config.State.Compression)
	// untouched sections keep their defaults
	assert.Equal(t, ".augustus-state", config.State.Dir)
	assert.Equal(t, 256, config.Formula.CacheSize)
	assert.Equal(t, 10000, config.Input.BatchSize)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"TraceLevel", "[trace]\nlevel = \"LOUD\""},
		{"SortBy", "[performance]\nsort_by = \"fastest\""},
		{"Compression", "[state]\ncompression = \"lz77\""},
		{"CacheSize", "[formula]\ncache_size = -1"},
		{"Workers", "[input]\nworkers = -2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.text)
			assert.Error(t, err)
		})
	}

	_, err := ParseConfig("[trace\n")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)

	path := filepath.Join(t.TempDir(), "augustus.toml")
	require.NoError(t, os.WriteFile(path, []byte("[input]\nbatch_size = 50\nworkers = 4\n"), 0o644))
	config, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, config.Input.BatchSize)
	assert.Equal(t, 4, config.Input.Workers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
