package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkSkipsExcludedAndHashesFiles(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "node_modules"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "node_modules", "pkg.js"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "data.tmp"), []byte("scratch"), 0644))

	entries, err := Walk(Options{BasePath: base, Excludes: []string{"node_modules", "*.tmp"}})
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Contains(t, paths, "main.go")
	assert.NotContains(t, paths, "node_modules")
	assert.NotContains(t, paths, "node_modules/pkg.js")
	assert.NotContains(t, paths, "data.tmp")

	for _, e := range entries {
		if e.Path == "main.go" {
			assert.NotZero(t, e.Hash)
			assert.False(t, e.IsDir)
		}
	}
}

func TestHashFileDeterministic(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("the quick brown fox"), 0644))

	h1, err := HashFile(path)
	require.NoError(t, err)
	h2, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotZero(t, h1)
}
