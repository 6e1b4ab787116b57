package authstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")

	d := newData()
	d.AuthRequired = true
	tok, err := newToken()
	require.NoError(t, err)
	d.Sessions["s1"] = &Session{ID: "s1", Name: "alice", Role: RoleAdmin, Token: tok}

	require.NoError(t, saveState(path, d))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loadState(path)
	require.NoError(t, err)
	assert.True(t, loaded.AuthRequired)
	require.Contains(t, loaded.Sessions, "s1")
	assert.Equal(t, tok, loaded.Sessions["s1"].Token)
	assert.Equal(t, RoleAdmin, loaded.Sessions["s1"].Role)
}

func TestLoadMissingFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	d, err := loadState(path)
	require.NoError(t, err)
	assert.Empty(t, d.Sessions)
	assert.False(t, d.AuthRequired)
}

func TestLoadLegacySchemaDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	legacy := `{"auth_required":true,"editor_token":"abc123","viewer_token":"def456"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0600))

	d, err := loadState(path)
	require.NoError(t, err)
	assert.Empty(t, d.Sessions)
	assert.False(t, d.AuthRequired, "legacy file must be discarded, not partially adopted")
}
