package video

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.h264")

	s, err := CreateFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("first-")))
	require.NoError(t, s.Write([]byte("second")))
	assert.Equal(t, int64(12), s.Written())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first-second", string(data))

	err = s.Write([]byte("late"))
	assert.True(t, IsKind(err, KindOutputFile))
}

func TestFileSinkRejectsEmptyPath(t *testing.T) {
	_, err := CreateFileSink("")
	assert.True(t, IsKind(err, KindOutputFile))
}

func TestFileSinkNeverOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.h264")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	_, err := CreateFileSink(path)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindOutputFile))
	assert.ErrorIs(t, err, os.ErrExist)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestFileSinkRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discard.h264")
	s, err := CreateFileSink(path)
	require.NoError(t, err)

	require.NoError(t, s.Remove())
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, s.Remove())
}

func TestFileSinkRemoveReportsCloseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discard.h264")
	s, err := CreateFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.file.Close())

	err = s.Remove()
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoFileExists(t, path)
}
