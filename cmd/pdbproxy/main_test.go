package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbproxy/internal/pdbtest"
	"github.com/skdltmxn/pdbproxy/symdb"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGenerateCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "proxy.h")
	require.NoError(t, execute(t, "generate", "testdata/shapes.yaml", "--guards", "-t", "Circle", "-o", out))

	got := readOutput(t, out)
	assert.Contains(t, got, "class Circle;\n\nclass Shape {\npublic:\n")
	assert.Contains(t, got, "class Circle : public Shape {\npublic:\n")
	assert.Contains(t, got, "static_assert((sizeof(Circle)==24),\"bad size\");")
	assert.NotContains(t, got, "class Widget")
}

func TestDumpCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "shapes.yaml")
	require.NoError(t, execute(t, "dump", "testdata/shapes.yaml", "-o", out))

	db, err := symdb.LoadYAMLFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, db.Len())
	assert.NotNil(t, db.Lookup("Widget"))
}

func TestUDTsCommand(t *testing.T) {
	pterm.DisableColor()
	out := filepath.Join(t.TempDir(), "udts.txt")
	require.NoError(t, execute(t, "udts", "testdata/shapes.yaml", "--kind", "class", "-o", out))

	got := readOutput(t, out)
	assert.Contains(t, got, "Circle")
	assert.Contains(t, got, "Widget")
	assert.Contains(t, got, "Total: 3 types")

	assert.Error(t, execute(t, "udts", "testdata/shapes.yaml", "--kind", "enum"))
}

func TestInfoCommand(t *testing.T) {
	dir := t.TempDir()
	pdbPath := filepath.Join(dir, "empty.pdb")
	require.NoError(t, os.WriteFile(pdbPath, (&pdbtest.Image{Machine: 0x8664}).Build(), 0o644))

	out := filepath.Join(dir, "info.txt")
	require.NoError(t, execute(t, "info", pdbPath, "-o", out))

	got := readOutput(t, out)
	assert.Contains(t, got, "Version: 20000404\n")
	assert.Contains(t, got, "Signature: 0x00005EED\n")
	assert.Contains(t, got, "Age: 1\n")
}

func TestOpenDatabaseHint(t *testing.T) {
	_, err := openDatabase(filepath.Join(t.TempDir(), "missing.pdb"))
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}
