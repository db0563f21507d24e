package pppp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/pppp/internal/common/build"
	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/metrics"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/gridengine"
	"github.com/G-Research/pppp/internal/pipeline"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

// MergedOutput is the batch-level concatenation of every unit's stage 2 output, in unit order.
const MergedOutput = "radial_average_all.csv"

// FileList lists the raw data file of every unit of the batch, one per line.
const FileList = "files.lst"

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Loaded configuration. Set by the command line layer before any command runs.
	Config configuration.Configuration
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Client talks to the grid engine. If nil, one is built from Config on first use.
	Client gridengine.SchedulerClient
	Clock  clock.Clock
	// Metrics collected over the lifetime of the app.
	Metrics *metrics.Metrics
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands ensures that all flags are distinct
// and that they can be provided either dynamically on a command line, or
// statically in a config file that's reused between command runs.
type Params struct {
	// Directory holding one <unit>/run<unit>.h5 directory per unit.
	DataDir string
	// Batch working directory. Every unit gets a subdirectory here.
	WorkDir string
	// Unit identifiers, either all qualified (133451-0) or all unqualified (133451).
	Files []string
	// Reference geometry for the stage 2 script and the integration jobs.
	Geometry string
	// CrystFEL geometry. If set, the events of every raw data file are listed after preparing.
	CrystfelGeometry string
	// One or two values; a single value is used as both the low and the high threshold.
	Thresholds []float64
	// Optional auxiliary event list to correlate with the records.
	Events string
	// Optional processing parameters passed to the downstream job.
	Phil string
	// Render scripts and create empty outputs, but never contact the scheduler.
	Simulate bool
	// Partition but do not trigger downstream processing.
	JustSplit bool
	// Skip partitioning and trigger downstream processing from the datasets already on disk.
	JustProcess bool
	// Process downstream by integrating every unit and group separately and reducing per group.
	Dials bool
	// Integration parameters. Empty values are left out of the processing parameters.
	Mask       string
	SpaceGroup string
	// Empty or the six unit cell parameters a, b, c, alpha, beta, gamma.
	Cell []float64
	// High resolution cutoff. Zero means none.
	DMin float64
}

// New instantiates an App with default parameters, writing to standard out
// and using the real clock.
func New() *App {
	return &App{
		Params:  &Params{},
		Out:     os.Stdout,
		Clock:   clock.RealClock{},
		Metrics: metrics.NewMetrics(metrics.PipelineMetricsPrefix),
	}
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

// validateParams checks the parameters shared by all batch commands and makes WorkDir absolute.
func (a *App) validateParams() error {
	if a.Params.DataDir == "" {
		return &pipelineerrors.ErrConfiguration{Name: "dir", Value: a.Params.DataDir, Message: "a data directory is required"}
	}
	workDir := a.Params.WorkDir
	if workDir == "" {
		workDir = "."
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return errors.WithStack(err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return &pipelineerrors.ErrConfiguration{Name: "workdir", Value: workDir, Message: "not a directory"}
	}
	a.Params.WorkDir = abs
	a.Params.DataDir = filepath.Clean(a.Params.DataDir)
	if a.Params.Dials {
		return a.validateDialsParams()
	}
	return nil
}

func (a *App) validateDialsParams() error {
	if a.Params.Geometry == "" {
		return &pipelineerrors.ErrConfiguration{Name: "geom", Value: a.Params.Geometry, Message: "a reference geometry is required for integration"}
	}
	if n := len(a.Params.Cell); n != 0 && n != 6 {
		return &pipelineerrors.ErrConfiguration{Name: "cell", Value: a.Params.Cell, Message: "takes six values: a,b,c,alpha,beta,gamma"}
	}
	if len(a.Params.Cell) > 0 && a.Params.SpaceGroup == "" {
		return &pipelineerrors.ErrConfiguration{Name: "cell", Value: a.Params.Cell, Message: "requires --spacegroup"}
	}
	if a.Params.DMin < 0 {
		return &pipelineerrors.ErrConfiguration{Name: "d-min", Value: a.Params.DMin, Message: "must not be negative"}
	}
	return nil
}

// batchContext tags every log line of a command with a fresh batch id.
func (a *App) batchContext(ctx *logctx.Context, command string) *logctx.Context {
	return logctx.WithLogFields(ctx, log.Fields{
		"batch":   uuid.New().String(),
		"command": command,
	})
}

func (a *App) client() gridengine.SchedulerClient {
	if a.Client == nil {
		a.Client = gridengine.NewClient(a.Config.Scheduler, gridengine.ShellRunner{}, a.Metrics)
	}
	return a.Client
}

func (a *App) jobRunner() *pipeline.JobRunner {
	return pipeline.NewJobRunner(
		a.client(),
		pipeline.NewJobWatcher(a.client(), a.Config.Watch, a.Clock),
		a.Clock,
		a.Metrics,
		a.Config.Parallelism,
		a.Params.Simulate,
	)
}

// batchJobSpec describes a job working in dir on behalf of the whole batch, or of the part of it named by unit.
func (a *App) batchJobSpec(name, unit, dir, script, template, queue string, params map[string]interface{}) gridengine.JobSpec {
	return gridengine.JobSpec{
		Name:                name,
		Unit:                unit,
		Script:              script,
		WorkDir:             dir,
		Template:            template,
		Params:              params,
		ParallelEnvironment: a.Config.Scheduler.ParallelEnvironment,
		Slots:               a.Config.Scheduler.Slots,
		Queue:               queue,
	}
}

func (a *App) resolveUnits() ([]*pipeline.Unit, error) {
	names, err := pipeline.ResolveUnitNames(a.Params.Files, a.Params.WorkDir)
	if err != nil {
		return nil, err
	}
	return pipeline.NewUnits(names, a.Params.DataDir, a.Params.WorkDir), nil
}

// writeMetrics writes the metrics snapshot if one is configured. Failing to do so is not fatal.
func (a *App) writeMetrics(ctx *logctx.Context) {
	path := a.Config.Metrics.Textfile
	if path == "" {
		return
	}
	if err := a.Metrics.WriteTextfile(path); err != nil {
		ctx.Log.WithError(err).Warnf("could not write metrics to %s", path)
	}
}
