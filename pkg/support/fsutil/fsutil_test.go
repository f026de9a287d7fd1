// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTildeInDir("~/models/x.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "models/x.yaml"), got)

	got, err = ReplaceTildeInDir("/tmp/a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a", got)

	got, err = ReplaceTildeInDir("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	exists, err := FileExists(dir)
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	exists, err = FileExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)

	// Idempotent.
	_, err = EnsureDir(dir)
	require.NoError(t, err)
}
