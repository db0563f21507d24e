package gridengine

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
)

// JobSpec describes a batch job. It stays structured until Submit, where it is rendered into a shell
// script in WorkDir and handed to the submit command.
type JobSpec struct {
	// Short name used in logs and metrics, e.g. stage1
	Name string
	// Unit the job works on
	Unit string
	// File name of the rendered script, relative to WorkDir
	Script  string
	WorkDir string
	// text/template source of the script body. Sprig functions are available.
	Template string
	Params   map[string]interface{}
	// Grid engine parallel environment and slot count, passed as -pe <pe> <slots>
	ParallelEnvironment string
	Slots               int
	// Empty means the scheduler's default queue.
	Queue string
}

func (spec JobSpec) ScriptPath() string {
	return filepath.Join(spec.WorkDir, spec.Script)
}

// Render executes the spec's template against its params.
func (spec JobSpec) Render() (string, error) {
	tmpl, err := template.New(spec.Script).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(spec.Template)
	if err != nil {
		return "", errors.Wrapf(err, "error parsing template for %s", spec.Script)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec.Params); err != nil {
		return "", errors.Wrapf(err, "error rendering %s", spec.Script)
	}
	return buf.String(), nil
}

// WriteScript renders the spec and writes it as an executable file, replacing any previous version.
func WriteScript(spec JobSpec) (string, error) {
	body, err := spec.Render()
	if err != nil {
		return "", err
	}
	path := spec.ScriptPath()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	// WriteFile leaves the mode of an existing file alone.
	if err := os.Chmod(path, 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

func (spec JobSpec) submitArgs(scriptPath string) []string {
	args := []string{"-pe", spec.ParallelEnvironment, strconv.Itoa(spec.Slots)}
	if spec.Queue != "" {
		args = append(args, "-q", spec.Queue)
	}
	return append(args, "-wd", spec.WorkDir, scriptPath)
}
