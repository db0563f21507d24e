package util

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// WriteFileAtomic writes the output of write to a temporary file next to path and renames it into place,
// so readers see either the previous contents or the new ones.
func WriteFileAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return errors.WithStack(err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename has happened.
		_ = os.Remove(tmpName)
	}()

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmpName, path))
}

// WriteLinesAtomic writes each line followed by a newline. An empty slice produces an empty file.
func WriteLinesAtomic(path string, lines []string) error {
	return WriteFileAtomic(path, 0o644, func(w io.Writer) error {
		for _, line := range lines {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// Truncate creates path as an empty file, discarding any previous contents.
func Truncate(path string) error {
	return WriteLinesAtomic(path, nil)
}

// ReadLines returns the lines of the file at path without their line terminators. A trailing newline does
// not produce an extra empty line.
func ReadLines(path string) ([]string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return SplitLines(contents), nil
}

func SplitLines(contents []byte) []string {
	if len(contents) == 0 {
		return nil
	}
	contents = bytes.TrimSuffix(contents, []byte("\n"))
	lines := strings.Split(string(contents), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// NonBlank drops lines consisting only of whitespace.
func NonBlank(lines []string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return kept
}
