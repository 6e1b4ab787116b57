package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termweb-dev/termweb-core/internal/wire"
)

func TestBuildFileListAndReadChunk(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("hello world"), 0644))

	stateDir := t.TempDir()
	sess, err := NewSession(1, wire.DirectionDownload, 0, base, nil, stateDir)
	require.NoError(t, err)

	require.NoError(t, sess.BuildFileList())
	assert.Equal(t, StateActive, sess.State)
	require.Len(t, sess.Files, 1)
	assert.Equal(t, "a.txt", sess.Files[0].Path)

	chunk, err := sess.ReadFileChunk(0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(chunk))
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	stateDir := t.TempDir()
	sess, err := NewSession(1, wire.DirectionUpload, 0, t.TempDir(), nil, stateDir)
	require.NoError(t, err)

	original := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for compressibility")
	compressed := sess.Compress(original)
	decompressed, err := sess.Decompress(compressed, len(original))
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestSaveAndLoadState(t *testing.T) {
	stateDir := t.TempDir()
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "f.bin"), []byte("data"), 0644))

	sess, err := NewSession(99, wire.DirectionDownload, 0, base, nil, stateDir)
	require.NoError(t, err)
	require.NoError(t, sess.BuildFileList())
	sess.CursorFile = 0
	sess.CursorOffset = 2
	sess.BytesTransferred = 2

	require.NoError(t, sess.SaveState())

	loaded, err := LoadState(stateDir, 99)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), loaded.ID)
	assert.Equal(t, uint64(2), loaded.CursorOffset)
	require.Len(t, loaded.Files, 1)
	assert.Equal(t, "f.bin", loaded.Files[0].Path)
}

func TestLoadStateIDMismatchRejected(t *testing.T) {
	stateDir := t.TempDir()
	sess, err := NewSession(1, wire.DirectionDownload, 0, t.TempDir(), nil, stateDir)
	require.NoError(t, err)
	require.NoError(t, sess.SaveState())

	_, err = LoadState(stateDir, 2)
	assert.Error(t, err)
}

func TestIsSmallFile(t *testing.T) {
	assert.True(t, IsSmallFile(wire.FileEntry{Size: 100}))
	assert.False(t, IsSmallFile(wire.FileEntry{Size: batchSizeThreshold}))
	assert.False(t, IsSmallFile(wire.FileEntry{Size: 10, IsDir: true}))
}
