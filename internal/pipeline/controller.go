package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/utils/clock"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/metrics"
	"github.com/G-Research/pppp/internal/common/util"
	"github.com/G-Research/pppp/internal/gridengine"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

const (
	Stage1 = "stage1"
	Stage2 = "stage2"
)

type ControllerConfig struct {
	Stage1              configuration.Stage1Config
	Stage2              configuration.StageConfig
	ParallelEnvironment string
	Slots               int
	Queue               string
	// Whether to wait for the stage 1 job to leave the scheduler, in addition to waiting for its output.
	TrackJobs bool
	// Maximum number of units in flight. Zero means no limit.
	Parallelism int
	// Render scripts and create empty placeholder outputs without contacting the scheduler.
	Simulate bool
	// Extra template parameters available to both stages, e.g. Geometry.
	Params map[string]interface{}
}

// Controller drives every unit in a UnitDb through
// Created -> Stage1Submitted -> Stage1Done -> Stage2Submitted -> Stage2Done.
type Controller struct {
	config    ControllerConfig
	client    gridengine.SchedulerClient
	watcher   *JobWatcher
	artifacts *ArtifactWaiter
	db        *UnitDb
	clock     clock.Clock
	metrics   *metrics.Metrics
}

func NewController(
	config ControllerConfig,
	client gridengine.SchedulerClient,
	watcher *JobWatcher,
	artifacts *ArtifactWaiter,
	db *UnitDb,
	clk clock.Clock,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		config:    config,
		client:    client,
		watcher:   watcher,
		artifacts: artifacts,
		db:        db,
		clock:     clk,
		metrics:   m,
	}
}

// Run processes all units concurrently and returns their final snapshots in unit order. Stages of one unit
// always run in order. The first unit to fail cancels the others; every unit that did not reach
// Stage2Done is left in state UnitFailed. Outputs already written are kept.
func (c *Controller) Run(ctx *logctx.Context) ([]*Unit, error) {
	units, err := c.db.All()
	if err != nil {
		return nil, err
	}

	g, groupCtx := logctx.ErrGroup(ctx, c.config.Parallelism)
	for _, unit := range units {
		if groupCtx.Err() != nil {
			break
		}
		name := unit.Name
		g.Go(func() error {
			return c.runUnit(groupCtx, name)
		})
	}
	groupErr := g.Wait()

	var result *multierror.Error
	units, err = c.db.All()
	if err != nil {
		return nil, err
	}
	for _, unit := range units {
		if unit.Terminal() {
			if unit.State == UnitFailed && !isCancellation(unit.Err) {
				result = multierror.Append(result, unit.Err)
			}
			continue
		}
		cause := groupErr
		if cause == nil {
			cause = ctx.Err()
		}
		if cause == nil {
			cause = errors.New("unit was not processed")
		}
		if _, err := c.fail(unit.Name, errors.WithMessage(cause, "batch aborted")); err != nil {
			return nil, err
		}
	}
	c.publishStates()

	units, err = c.db.All()
	if err != nil {
		return nil, err
	}
	if err := result.ErrorOrNil(); err != nil {
		return units, err
	}
	if groupErr != nil {
		return units, groupErr
	}
	return units, errors.WithStack(ctx.Err())
}

func (c *Controller) runUnit(ctx *logctx.Context, name string) error {
	ctx = logctx.WithLogField(ctx, "unit", name)
	if err := c.process(ctx, name); err != nil {
		ctx.Log.WithError(err).Error("unit failed")
		if _, updateErr := c.fail(name, err); updateErr != nil {
			return updateErr
		}
		return err
	}
	return nil
}

func (c *Controller) process(ctx *logctx.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	unit, err := c.db.Get(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(unit.WorkDir, 0o755); err != nil {
		return errors.WithStack(err)
	}

	// Stage 1
	stage1Ctx := logctx.WithLogField(ctx, "stage", Stage1)
	tagsPath := filepath.Join(unit.WorkDir, c.config.Stage1.Output)
	handle, err := c.submit(stage1Ctx, c.stage1Spec(unit), tagsPath)
	if err != nil {
		return err
	}
	if unit, err = c.update(name, func(u *Unit) {
		u.Stage1 = handle
		u.State = UnitStage1Submitted
	}); err != nil {
		return err
	}

	dropped := 0
	if !c.config.Simulate {
		if err := c.artifacts.WaitNonEmpty(stage1Ctx, tagsPath); err != nil {
			return err
		}
		if c.config.TrackJobs {
			if err := c.waitForJob(stage1Ctx, name, Stage1, *handle); err != nil {
				return err
			}
		}
		if _, dropped, err = FilterByPrefix(tagsPath, c.config.Stage1.ValidPrefix); err != nil {
			return err
		}
		c.metrics.RecordDropped(metrics.DropReasonMalformedTag, dropped)
	}
	if unit, err = c.update(name, func(u *Unit) {
		u.DroppedTags = dropped
		u.State = UnitStage1Done
	}); err != nil {
		return err
	}

	// Stage 2
	stage2Ctx := logctx.WithLogField(ctx, "stage", Stage2)
	handle, err = c.submit(stage2Ctx, c.stage2Spec(unit), filepath.Join(unit.WorkDir, c.config.Stage2.Output))
	if err != nil {
		return err
	}
	if _, err = c.update(name, func(u *Unit) {
		u.Stage2 = handle
		u.State = UnitStage2Submitted
	}); err != nil {
		return err
	}
	if !c.config.Simulate {
		if err := c.waitForJob(stage2Ctx, name, Stage2, *handle); err != nil {
			return err
		}
	}
	_, err = c.update(name, func(u *Unit) { u.State = UnitStage2Done })
	return err
}

// submit truncates output and hands spec to the scheduler, so that only what the new job writes can satisfy
// a wait on output. In simulate mode the script is only rendered and the returned handle is nil.
func (c *Controller) submit(ctx *logctx.Context, spec gridengine.JobSpec, output string) (*gridengine.JobHandle, error) {
	if err := util.Truncate(output); err != nil {
		return nil, err
	}
	if c.config.Simulate {
		path, err := gridengine.WriteScript(spec)
		if err != nil {
			return nil, err
		}
		ctx.Log.Infof("simulate: rendered %s without submitting it", path)
		return nil, nil
	}
	handle, err := c.client.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &handle, nil
}

func (c *Controller) waitForJob(ctx *logctx.Context, name, stage string, handle gridengine.JobHandle) error {
	start := c.clock.Now()
	final, err := c.watcher.Wait(ctx, handle, func(h gridengine.JobHandle) {
		if _, err := c.update(name, func(u *Unit) { setHandle(u, stage, h) }); err != nil {
			ctx.Log.WithError(err).Warn("could not record job state")
		}
	})
	if err != nil {
		return err
	}
	c.metrics.RecordJobWait(stage, c.clock.Since(start))
	_, err = c.update(name, func(u *Unit) { setHandle(u, stage, final) })
	return err
}

func setHandle(u *Unit, stage string, h gridengine.JobHandle) {
	if stage == Stage1 {
		u.Stage1 = &h
	} else {
		u.Stage2 = &h
	}
}

func (c *Controller) stage1Spec(unit *Unit) gridengine.JobSpec {
	params := c.params(unit)
	params["Output"] = c.config.Stage1.Output
	return c.jobSpec(unit, Stage1, c.config.Stage1.Script, c.config.Stage1.Template, params)
}

func (c *Controller) stage2Spec(unit *Unit) gridengine.JobSpec {
	params := c.params(unit)
	params["Tags"] = c.config.Stage1.Output
	params["Output"] = c.config.Stage2.Output
	return c.jobSpec(unit, Stage2, c.config.Stage2.Script, c.config.Stage2.Template, params)
}

func (c *Controller) params(unit *Unit) map[string]interface{} {
	params := maps.Clone(c.config.Params)
	if params == nil {
		params = make(map[string]interface{})
	}
	params["Unit"] = unit.Name
	params["SourcePath"] = unit.SourcePath
	params["WorkDir"] = unit.WorkDir
	return params
}

func (c *Controller) jobSpec(unit *Unit, stage, script, template string, params map[string]interface{}) gridengine.JobSpec {
	return gridengine.JobSpec{
		Name:                stage,
		Unit:                unit.Name,
		Script:              script,
		WorkDir:             unit.WorkDir,
		Template:            template,
		Params:              params,
		ParallelEnvironment: c.config.ParallelEnvironment,
		Slots:               c.config.Slots,
		Queue:               c.config.Queue,
	}
}

func (c *Controller) update(name string, f func(u *Unit)) (*Unit, error) {
	unit, err := c.db.Update(name, f)
	if err != nil {
		return nil, err
	}
	c.publishStates()
	return unit, nil
}

func (c *Controller) fail(name string, cause error) (*Unit, error) {
	return c.update(name, func(u *Unit) {
		u.State = UnitFailed
		u.Err = cause
	})
}

func (c *Controller) publishStates() {
	counts, err := c.db.CountByState()
	if err != nil {
		return
	}
	byName := make(map[string]int, len(counts))
	for state, n := range counts {
		byName[state.String()] = n
	}
	c.metrics.SetUnitsByState(byName)
}

// FilterByPrefix rewrites the file at path keeping only lines that start with prefix.
func FilterByPrefix(path, prefix string) (kept, dropped int, err error) {
	lines, err := util.ReadLines(path)
	if err != nil {
		return 0, 0, err
	}
	valid := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			valid = append(valid, line)
		}
	}
	if err := util.WriteLinesAtomic(path, valid); err != nil {
		return 0, 0, err
	}
	return len(valid), len(lines) - len(valid), nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
