package gridengine

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// HandleParser extracts a job id from the output of the submit command.
type HandleParser interface {
	ParseHandle(output string) (string, error)
}

type HandleParserFunc func(output string) (string, error)

func (f HandleParserFunc) ParseHandle(output string) (string, error) {
	return f(output)
}

// FieldHandleParser takes the Field-th (zero-based) whitespace separated field of the first non-empty
// line, which must be a non-negative integer.
type FieldHandleParser struct {
	Field int
}

// DefaultHandleParser understands grid engine's `Your job 4242 ("tags.sh") has been submitted`.
var DefaultHandleParser HandleParser = FieldHandleParser{Field: 2}

func (p FieldHandleParser) ParseHandle(output string) (string, error) {
	line := FirstLine(output)
	if line == "" {
		return "", errors.New("empty response")
	}
	fields := strings.Fields(line)
	if len(fields) <= p.Field {
		return "", errors.Errorf("expected at least %d fields", p.Field+1)
	}
	id := fields[p.Field]
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return "", errors.Errorf("job id %q is not numeric", id)
	}
	return id, nil
}

// FirstLine returns the first line of s that is not blank, with surrounding whitespace removed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// StatusClassifier maps the output of the query command to a Status. NotFoundPhrase is checked first
// in both stdout and stderr; an empty ActivePhrase means any other output is Unknown.
type StatusClassifier struct {
	NotFoundPhrase string
	ActivePhrase   string
}

func (c StatusClassifier) Classify(stdout, stderr string) Status {
	if c.NotFoundPhrase != "" &&
		(strings.Contains(stdout, c.NotFoundPhrase) || strings.Contains(stderr, c.NotFoundPhrase)) {
		return StatusNotFound
	}
	if c.ActivePhrase != "" && strings.Contains(stdout, c.ActivePhrase) {
		return StatusActive
	}
	return StatusUnknown
}
