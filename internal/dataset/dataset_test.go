package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName("A-0"))
	want := Dataset{Key: DefaultKey, Codes: []uint8{0, 2, 1}}

	require.NoError(t, Write(path, want))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName("A-0"))
	require.NoError(t, Write(path, Dataset{Key: DefaultKey}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultKey, got.Key)
	assert.Empty(t, got.Codes)
}

func TestWrite_Deterministic(t *testing.T) {
	dir := t.TempDir()
	d := Dataset{Key: DefaultKey, Codes: []uint8{1, 1, 0, 2, 2, 2, 0}}
	first := filepath.Join(dir, "first.cds")
	second := filepath.Join(dir, "second.cds")
	require.NoError(t, Write(first, d))
	require.NoError(t, Write(second, d))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWrite_InvalidKey(t *testing.T) {
	assert.Error(t, Write(filepath.Join(t.TempDir(), "x.cds"), Dataset{Codes: []uint8{0}}))
}

func TestRead_Corrupt(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.cds")
	require.NoError(t, Write(valid, Dataset{Key: DefaultKey, Codes: []uint8{0, 1, 2}}))
	contents, err := os.ReadFile(valid)
	require.NoError(t, err)

	tests := map[string][]byte{
		"wrong magic":       append([]byte("XXXXXXXX"), contents[8:]...),
		"truncated header":  contents[:9],
		"truncated key":     contents[:12],
		"truncated payload": contents[:len(contents)-3],
		"empty":             {},
	}
	for name, corrupt := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".cds")
			require.NoError(t, os.WriteFile(path, corrupt, 0o644))
			_, err := Read(path)
			assert.Error(t, err)
		})
	}
}
