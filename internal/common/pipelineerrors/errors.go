// Package pipelineerrors contains the error types returned by the pipeline. The command line layer looks
// for the types defined in this file and sets the process exit code accordingly.
//
// If several units fail independently, the caller should return an error of type multierror.Error from
// package github.com/hashicorp/go-multierror that encapsulates those individual errors. ExitCodeFromError
// then reports the code of the first recognised error in the set.
package pipelineerrors

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Process exit codes.
const (
	ExitOK                  = 0
	ExitUnknown             = 1
	ExitConfiguration       = 2
	ExitSubmission          = 3
	ExitWatchTimeout        = 4
	ExitArtifactMissing     = 5
	ExitCorrelationMismatch = 6
	ExitCancelled           = 130
)

// ErrConfiguration is returned for malformed user input, e.g., more than two threshold values or a mix of
// qualified and unqualified unit identifiers. It is always raised before any job is submitted.
type ErrConfiguration struct {
	Name    string      // Name of the offending argument, e.g., "threshold"
	Value   interface{} // The invalid value that was provided
	Message string      // Optional explanation
}

func (err *ErrConfiguration) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for %q; %s", err.Value, err.Name, err.Message)
}

// ErrSubmission is returned when the submit command produced no parsable job handle.
type ErrSubmission struct {
	Unit   string
	Stage  string
	Output string // First line of the submit command's output, if any
	Cause  error
}

func (err *ErrSubmission) Error() (s string) {
	s = fmt.Sprintf("could not submit %s job for unit %s", err.Stage, err.Unit)
	if err.Output != "" {
		s += fmt.Sprintf(": unparsable response %q", err.Output)
	}
	if err.Cause != nil {
		s += fmt.Sprintf("; %s", err.Cause)
	}
	return
}

func (err *ErrSubmission) Unwrap() error {
	return err.Cause
}

// ErrWatchTimeout is returned when a job watch or an artifact wait exceeded its bound, either in time or in
// the number of ambiguous scheduler responses.
type ErrWatchTimeout struct {
	Target           string // Job handle or artifact path
	Waited           time.Duration
	AmbiguousQueries int
}

func (err *ErrWatchTimeout) Error() string {
	if err.AmbiguousQueries > 0 {
		return fmt.Sprintf("gave up waiting for %s after %s and %d ambiguous status queries", err.Target, err.Waited, err.AmbiguousQueries)
	}
	return fmt.Sprintf("gave up waiting for %s after %s", err.Target, err.Waited)
}

// ErrArtifactMissing is returned when an artifact that a stage depends on is absent or unreadable.
type ErrArtifactMissing struct {
	Path  string
	Cause error
}

func (err *ErrArtifactMissing) Error() string {
	if err.Cause != nil {
		return fmt.Sprintf("artifact %s is missing: %s", err.Path, err.Cause)
	}
	return fmt.Sprintf("artifact %s is missing", err.Path)
}

func (err *ErrArtifactMissing) Unwrap() error {
	return err.Cause
}

// ErrCorrelationMismatch is returned when the auxiliary event list cannot be joined with a unit's records.
type ErrCorrelationMismatch struct {
	Unit    string
	FileId  string
	Records int
	Events  int
	Message string
}

func (err *ErrCorrelationMismatch) Error() string {
	s := fmt.Sprintf("unit %s: %d records for file %q but %d auxiliary events", err.Unit, err.Records, err.FileId, err.Events)
	if err.Message != "" {
		s += "; " + err.Message
	}
	return s
}

// ExitCodeFromError maps error types to process exit codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitOK
	}

	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			if code := ExitCodeFromError(e); code != ExitUnknown {
				return code
			}
		}
		return ExitUnknown
	}

	{
		var e *ErrConfiguration
		if errors.As(err, &e) {
			return ExitConfiguration
		}
	}
	{
		var e *ErrSubmission
		if errors.As(err, &e) {
			return ExitSubmission
		}
	}
	{
		var e *ErrWatchTimeout
		if errors.As(err, &e) {
			return ExitWatchTimeout
		}
	}
	{
		var e *ErrArtifactMissing
		if errors.As(err, &e) {
			return ExitArtifactMissing
		}
	}
	{
		var e *ErrCorrelationMismatch
		if errors.As(err, &e) {
			return ExitCorrelationMismatch
		}
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	return ExitUnknown
}

// IsConfiguration returns true if err, or any error it wraps, is an ErrConfiguration.
func IsConfiguration(err error) bool {
	var e *ErrConfiguration
	return errors.As(err, &e)
}
