package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/vidcapture/internal/config"
)

func TestWriteDefaultConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vidcapture.yaml")

	require.NoError(t, writeDefaultConfig(path, false))

	loaded, err := config.LoadWithProfile(path, "", true)
	require.NoError(t, err)
	want := config.Default()
	assert.Equal(t, want.Video, loaded.Video)
	assert.Equal(t, want.Backend, loaded.Backend)
	assert.Equal(t, want.Pipeline.SendTimeout, loaded.Pipeline.SendTimeout)
}

func TestWriteDefaultConfigKeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidcapture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: sim\n"), 0644))

	err := writeDefaultConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "backend: sim\n", string(data))

	require.NoError(t, writeDefaultConfig(path, true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bit_rate: 17000000")
}
