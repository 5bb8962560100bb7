// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/graphs", MustReplaceTildeInDir("/tmp/graphs"))
	assert.Equal(t, usr.HomeDir, MustReplaceTildeInDir("~"))
	assert.Equal(t, path.Join(usr.HomeDir, "graphs"), MustReplaceTildeInDir("~/graphs"))
	_, err = ReplaceTildeInDir("~no_such_user_for_sure/graphs")
	require.Error(t, err)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml", "c.json", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))
	explicit := filepath.Join(dir, "notes.txt")

	files, err := ListFiles([]string{dir, explicit}, ".yaml", ".json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "c.json"),
		explicit,
	}, files)

	exists, err := FileExists(explicit)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = ListFiles([]string{filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}
