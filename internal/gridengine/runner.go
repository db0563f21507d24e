package gridengine

import (
	"bytes"
	"context"

	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs an external command to completion. A command that ran but exited non-zero is not an
// error; the exit code is reported in the result.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ShellRunner runs commands on the local host.
type ShellRunner struct {
	// Extra environment variables for the command. $VAR references in arguments are expanded against it.
	Env map[string]string
}

func (r ShellRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return CommandResult{}, errors.WithStack(err)
	}
	var stdout, stderr bytes.Buffer
	ran, err := sh.Exec(r.Env, &stdout, &stderr, name, args...)
	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: sh.ExitStatus(err),
	}
	if !ran {
		return result, errors.Wrapf(err, "could not run %s", name)
	}
	return result, nil
}
