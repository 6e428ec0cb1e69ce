package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_WritesManifest(t *testing.T) {
	root := t.TempDir()
	decks := filepath.Join(root, "decks")
	require.NoError(t, os.MkdirAll(decks, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(decks, "bio_101.apkg"), []byte("abc"), 0o644))
	out := filepath.Join(root, "decks.json")

	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", decks, "--out", out})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "(1 entries)")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "bio 101"`)
}

func TestRootCmd_EmptyDirSucceeds(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "decks.json")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", filepath.Join(root, "absent"), "--out", out})

	require.NoError(t, cmd.Execute())
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestRootCmd_UnwritableOutputFails(t *testing.T) {
	root := t.TempDir()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", root, "--out", filepath.Join(root, "no", "such", "decks.json")})

	assert.Error(t, cmd.Execute())
}
