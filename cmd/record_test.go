package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/vidcapture/internal/config"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func newRecordFlagsCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{}
	addRecordFlags(c)
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestRecordOutputFlagIsUsedAsGiven(t *testing.T) {
	c := config.Default()
	c.Output.Directory = "/recordings"
	withConfig(t, c)

	require.NoError(t, applyRecordFlags(newRecordFlagsCmd(t, "-o", "out.h264")))
	assert.Equal(t, "out.h264", cfg.OutputPath(time.Unix(0, 0)))
}

func TestRecordWithoutOutputFlagUsesDirectory(t *testing.T) {
	c := config.Default()
	c.Output.Directory = "/recordings"
	c.Output.FilePath = "clip.h264"
	withConfig(t, c)

	require.NoError(t, applyRecordFlags(newRecordFlagsCmd(t, "--width", "1280", "--height", "720")))
	assert.Equal(t, filepath.Join("/recordings", "clip.h264"), cfg.OutputPath(time.Unix(0, 0)))
	assert.Equal(t, uint32(1280), cfg.Video.Width)
	assert.Equal(t, uint32(720), cfg.Video.Height)
}

func TestRecordFlagsAreValidated(t *testing.T) {
	withConfig(t, config.Default())

	err := applyRecordFlags(newRecordFlagsCmd(t, "--width", "641"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid recording settings")
}
