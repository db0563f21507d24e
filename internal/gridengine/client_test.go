package gridengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/metrics"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

type call struct {
	name string
	args []string
}

// scriptedRunner returns its results in order and records every call.
type scriptedRunner struct {
	results []CommandResult
	errs    []error
	calls   []call
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (CommandResult, error) {
	i := len(r.calls)
	r.calls = append(r.calls, call{name: name, args: args})
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	if i < len(r.results) {
		return r.results[i], err
	}
	return CommandResult{}, err
}

func testConfig() configuration.SchedulerConfig {
	return configuration.SchedulerConfig{
		SubmitCommand:       "qsub",
		QueryCommand:        "qstat",
		ParallelEnvironment: "smp",
		Slots:               20,
		NotFoundPhrase:      "Following jobs do not exist or permissions are not sufficient",
		ActivePhrase:        "job_number:",
		SubmitAttempts:      3,
	}
}

func testSpec(t *testing.T) JobSpec {
	return JobSpec{
		Name:                "stage1",
		Unit:                "133451-0",
		Script:              "tags.sh",
		WorkDir:             t.TempDir(),
		Template:            "dials.stills_process show_image_tags=true {{ .SourcePath }} > {{ .Output }}\n",
		Params:              map[string]interface{}{"SourcePath": "/data/133451-0/run133451-0.h5", "Output": "tags.txt"},
		ParallelEnvironment: "smp",
		Slots:               20,
	}
}

func TestSubmit(t *testing.T) {
	runner := &scriptedRunner{results: []CommandResult{{Stdout: "Your job 4242 (\"tags.sh\") has been submitted\n"}}}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))
	spec := testSpec(t)

	handle, err := client.Submit(logctx.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, JobHandle{Id: "4242", State: HandleSubmitted}, handle)

	require.Len(t, runner.calls, 1)
	scriptPath := filepath.Join(spec.WorkDir, "tags.sh")
	assert.Equal(t, call{name: "qsub", args: []string{"-pe", "smp", "20", "-wd", spec.WorkDir, scriptPath}}, runner.calls[0])

	body, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	assert.Equal(t, "dials.stills_process show_image_tags=true /data/133451-0/run133451-0.h5 > tags.txt\n", string(body))
	info, err := os.Stat(scriptPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestSubmit_Queue(t *testing.T) {
	runner := &scriptedRunner{results: []CommandResult{{Stdout: "Your job 7 (\"run_xia2.sh\") has been submitted"}}}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))
	spec := testSpec(t)
	spec.Queue = "medium.q"

	_, err := client.Submit(logctx.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"-pe", "smp", "20", "-q", "medium.q", "-wd", spec.WorkDir, spec.ScriptPath()}, runner.calls[0].args)
}

func TestSubmit_RetriesFailedCommand(t *testing.T) {
	runner := &scriptedRunner{
		results: []CommandResult{
			{},
			{ExitCode: 1, Stderr: "error: commlib error\n"},
			{Stdout: "Your job 9 (\"tags.sh\") has been submitted\n"},
		},
		errs: []error{errors.New("exec: \"qsub\": executable file not found in $PATH")},
	}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))

	handle, err := client.Submit(logctx.Background(), testSpec(t))
	require.NoError(t, err)
	assert.Equal(t, "9", handle.Id)
	assert.Len(t, runner.calls, 3)
}

func TestSubmit_GivesUpAfterAttempts(t *testing.T) {
	runner := &scriptedRunner{results: []CommandResult{{ExitCode: 1}, {ExitCode: 1}, {ExitCode: 1}, {Stdout: "Your job 9"}}}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))

	_, err := client.Submit(logctx.Background(), testSpec(t))
	var submissionErr *pipelineerrors.ErrSubmission
	require.ErrorAs(t, err, &submissionErr)
	assert.Equal(t, "133451-0", submissionErr.Unit)
	assert.Equal(t, "stage1", submissionErr.Stage)
	assert.Len(t, runner.calls, 3)
}

func TestSubmit_UnparsableResponse(t *testing.T) {
	runner := &scriptedRunner{results: []CommandResult{{Stdout: "Unable to run job: job rejected\nExiting.\n"}}}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))

	_, err := client.Submit(logctx.Background(), testSpec(t))
	var submissionErr *pipelineerrors.ErrSubmission
	require.ErrorAs(t, err, &submissionErr)
	assert.Equal(t, "Unable to run job: job rejected", submissionErr.Output)
	assert.Equal(t, pipelineerrors.ExitSubmission, pipelineerrors.ExitCodeFromError(err))
	// parse failures are not retried
	assert.Len(t, runner.calls, 1)
}

func TestSubmit_CustomParser(t *testing.T) {
	runner := &scriptedRunner{results: []CommandResult{{Stdout: "12345.pbs-server\n"}}}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix)).
		WithHandleParser(HandleParserFunc(func(output string) (string, error) {
			return FirstLine(output), nil
		}))

	handle, err := client.Submit(logctx.Background(), testSpec(t))
	require.NoError(t, err)
	assert.Equal(t, "12345.pbs-server", handle.Id)
}

func TestSubmit_BadTemplate(t *testing.T) {
	runner := &scriptedRunner{}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))
	spec := testSpec(t)
	spec.Template = "{{ .Missing }}"

	_, err := client.Submit(logctx.Background(), spec)
	assert.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestSubmit_Cancelled(t *testing.T) {
	ctx, cancel := logctx.WithCancel(logctx.Background())
	cancel()
	client := NewClient(testConfig(), ShellRunner{}, metrics.NewMetrics(metrics.PipelineMetricsPrefix))

	_, err := client.Submit(ctx, testSpec(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pipelineerrors.ExitCancelled, pipelineerrors.ExitCodeFromError(err))
}

func TestQuery(t *testing.T) {
	runner := &scriptedRunner{
		results: []CommandResult{
			{Stdout: "job_number:                 4242\n"},
			{ExitCode: 1, Stderr: "Following jobs do not exist or permissions are not sufficient: \n4242\n"},
			{},
		},
		errs: []error{nil, nil, errors.New("could not run qstat")},
	}
	client := NewClient(testConfig(), runner, metrics.NewMetrics(metrics.PipelineMetricsPrefix))
	handle := JobHandle{Id: "4242"}

	status, err := client.Query(logctx.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	status, err = client.Query(logctx.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status)

	status, err = client.Query(logctx.Background(), handle)
	assert.Error(t, err)
	assert.Equal(t, StatusUnknown, status)

	assert.Equal(t, call{name: "qstat", args: []string{"-j", "4242"}}, runner.calls[0])
}

func TestRender_SprigFunctions(t *testing.T) {
	spec := JobSpec{
		Script:   "run_xia2.sh",
		Template: `image={{ .DataDir }}/{ {{- .Images | join "," -}} }.h5`,
		Params: map[string]interface{}{
			"DataDir": "/data",
			"Images":  []string{"a-0/runa-0", "a-1/runa-1"},
		},
	}
	body, err := spec.Render()
	require.NoError(t, err)
	assert.Equal(t, "image=/data/{a-0/runa-0,a-1/runa-1}.h5", body)
}
