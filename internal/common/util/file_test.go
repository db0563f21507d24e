package util

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLinesAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pump.txt")
	require.NoError(t, WriteLinesAtomic(path, []string{"a", "b", "c"}))
	require.NoError(t, WriteLinesAtomic(path, []string{"d"}))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "d\n", string(contents))
}

func TestWriteFileAtomic_FailedWriteKeepsOldContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.txt")
	require.NoError(t, WriteLinesAtomic(path, []string{"old"}))

	err := WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(contents))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, Truncate(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSplitLines(t *testing.T) {
	tests := map[string]struct {
		input string
		want  []string
	}{
		"empty":                {"", nil},
		"single without eol":   {"a", []string{"a"}},
		"single with eol":      {"a\n", []string{"a"}},
		"blank lines retained": {"a\n\nb\n", []string{"a", "", "b"}},
		"crlf":                 {"a\r\nb\r\n", []string{"a", "b"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitLines([]byte(tc.input)))
		})
	}
}

func TestReadLines_Missing(t *testing.T) {
	_, err := ReadLines(filepath.Join(t.TempDir(), "absent"))
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}

func TestNonBlank(t *testing.T) {
	assert.Equal(t, []string{"a", " b"}, NonBlank([]string{"", "a", "  ", " b", "\t"}))
}
