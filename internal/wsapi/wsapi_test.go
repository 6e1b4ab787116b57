package wsapi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/transfer"
	"github.com/termweb-dev/termweb-core/internal/wire"
)

func TestEditAllowedByRole(t *testing.T) {
	editor := &fileConn{verdict: authstore.Verdict{Role: authstore.RoleEditor}}
	assert.True(t, editor.editAllowed())

	admin := &fileConn{verdict: authstore.Verdict{Role: authstore.RoleAdmin}}
	assert.True(t, admin.editAllowed())

	viewer := &fileConn{verdict: authstore.Verdict{Role: authstore.RoleViewer}}
	assert.False(t, viewer.editAllowed())
}

func TestWriteChunkAtCreatesAndPositionsBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.bin")

	require.NoError(t, writeChunkAt(path, 0, []byte("hello")))
	require.NoError(t, writeChunkAt(path, 5, []byte("world")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(data))
}

func TestVideoSessionsGetReusesBySessionID(t *testing.T) {
	vs := NewVideoSessions()
	a := vs.get("sess-1") // control handler's reference
	b := vs.get("sess-1") // h264 handler's reference
	assert.Same(t, a, b)

	c := vs.get("sess-2")
	assert.NotSame(t, a, c)

	vs.Drop("sess-1") // control closes first; h264's reference keeps it alive
	stillShared := vs.get("sess-1")
	assert.Same(t, a, stillShared)

	vs.Drop("sess-1")
	vs.Drop("sess-1") // h264's original reference, then the one just acquired above
	d := vs.get("sess-1")
	assert.NotSame(t, a, d)
}

func TestReconcileDeleteExtraRemovesUnlistedFilesOnlyWhenFlagSet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("b"), 0644))

	sess, err := transfer.NewSession(1, wire.DirectionUpload, 0, dir, nil, t.TempDir())
	require.NoError(t, err)
	sess.Files = []wire.FileEntry{{Path: "keep.txt"}}

	h := &fileConn{}

	n, err := h.reconcileDeleteExtra(sess, false)
	require.NoError(t, err)
	assert.Zero(t, n, "delete_extra unset: no reconciliation should run")
	assert.FileExists(t, filepath.Join(dir, "extra.txt"))

	sess.Flags = wire.FlagDeleteExtra | wire.FlagDryRun
	n, err = h.reconcileDeleteExtra(sess, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, "extra.txt"), "dry run must not touch disk")

	sess.Flags = wire.FlagDeleteExtra
	n, err = h.reconcileDeleteExtra(sess, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoFileExists(t, filepath.Join(dir, "extra.txt"))
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
}

func TestMarkUploadFileCompleteTracksDryRunClassification(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("a"), 0644))

	sess, err := transfer.NewSession(2, wire.DirectionUpload, wire.FlagDryRun, dir, nil, t.TempDir())
	require.NoError(t, err)
	sess.Files = []wire.FileEntry{
		{Path: "existing.txt", Size: 1},
		{Path: "new.txt", Size: 1},
	}

	h := &fileConn{uploads: map[uint32]*uploadState{
		sess.ID: {completed: make(map[uint32]bool)},
	}}

	done := h.markUploadFileComplete(sess, 0, true)
	assert.False(t, done)
	done = h.markUploadFileComplete(sess, 1, true)
	assert.True(t, done, "all non-directory files now accounted for")

	st := h.uploads[sess.ID]
	assert.EqualValues(t, 1, st.wouldUpdate, "existing.txt already exists on disk")
	assert.EqualValues(t, 1, st.wouldAdd, "new.txt does not exist on disk")
}

func TestH264EncodeLazilyCreatesEncoderAtCurrentTierBudget(t *testing.T) {
	vs := NewVideoSessions().get("sess-h264")
	pixels := make([]byte, 32*32*4)

	nal, err := h264Encode(vs, 32, 32, frameFlagKeyframe, pixels)
	require.NoError(t, err)
	require.NotEmpty(t, nal)

	vs.mu.Lock()
	enc := vs.encoder
	vs.mu.Unlock()
	require.NotNil(t, enc)

	w, h := enc.Dimensions()
	assert.Equal(t, 32, w)
	assert.Equal(t, 32, h)
}
