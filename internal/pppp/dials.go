package pppp

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/util"
	"github.com/G-Research/pppp/internal/partition"
	"github.com/G-Research/pppp/internal/pipeline"
)

const (
	// Integrate is the name of the job processing the images of one group of one unit.
	Integrate = "integrate"
	// Reduce is the name of the job merging the integrated data of one group across units.
	Reduce = "reduce"
)

// dialsGroups are the categories processed downstream, in submission order.
var dialsGroups = []partition.Category{partition.Low, partition.High}

// processWithDials integrates every group of every unit in <unit>/<group>, waits for all of those jobs,
// and then submits one reduce job per group in <workdir>/<group>. Groups without images are skipped.
func (a *App) processWithDials(ctx *logctx.Context, units []*pipeline.Unit) error {
	jobs, integrated, err := a.integrateJobs(ctx, units)
	if err != nil {
		return err
	}
	ctx.Log.Infof("integrating %d groups", len(jobs))
	if _, err := a.jobRunner().Run(ctx, jobs, true); err != nil {
		return err
	}

	jobs, err = a.reduceJobs(ctx, integrated)
	if err != nil {
		return err
	}
	ctx.Log.Infof("reducing %d groups", len(jobs))
	_, err = a.jobRunner().Run(ctx, jobs, a.Config.Downstream.Wait)
	return err
}

// integrateJobs returns one job per unit and group with images, and for each group the units it covers.
func (a *App) integrateJobs(ctx *logctx.Context, units []*pipeline.Unit) ([]pipeline.Job, map[partition.Category][]*pipeline.Unit, error) {
	config := a.Config.Dials.Integrate
	var jobs []pipeline.Job
	integrated := make(map[partition.Category][]*pipeline.Unit, len(dialsGroups))
	for _, unit := range units {
		for _, group := range dialsGroups {
			tags, err := readTags(filepath.Join(unit.WorkDir, group.IndexFile()))
			if err != nil {
				return nil, nil, err
			}
			if len(tags) == 0 {
				ctx.Log.Warnf("unit %s has no %s images, not integrating them", unit.Name, group.Label())
				continue
			}
			dir := filepath.Join(unit.WorkDir, group.Label())
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, errors.WithStack(err)
			}
			spec := a.batchJobSpec(Integrate, unit.Name+"/"+group.Label(), dir, config.Script, config.Template,
				a.Config.Scheduler.Queue, map[string]interface{}{
					"Phil":       config.Phil,
					"Tags":       tags,
					"SourcePath": unit.SourcePath,
					"Geometry":   a.Params.Geometry,
					"Mask":       a.Params.Mask,
					"SpaceGroup": a.Params.SpaceGroup,
					"Cell":       formatCell(a.Params.Cell),
					"DMin":       a.Params.DMin,
					"Slots":      a.Config.Scheduler.Slots,
				})
			jobs = append(jobs, pipeline.Job{Spec: spec})
			integrated[group] = append(integrated[group], unit)
		}
	}
	return jobs, integrated, nil
}

// reduceJobs returns one job per group. Outside simulate mode a unit is only reduced once every input
// pattern matches some of its integrated data, and a group with no such unit is an error.
func (a *App) reduceJobs(ctx *logctx.Context, integrated map[partition.Category][]*pipeline.Unit) ([]pipeline.Job, error) {
	config := a.Config.Dials.Reduce
	var jobs []pipeline.Job
	for _, group := range dialsGroups {
		var inputs []string
		for _, unit := range integrated[group] {
			if !a.Params.Simulate {
				ok, err := hasIntegratedData(filepath.Join(unit.WorkDir, group.Label()), config.Inputs)
				if err != nil {
					return nil, err
				}
				if !ok {
					ctx.Log.Warnf("unit %s has no integrated %s data, leaving it out", unit.Name, group.Label())
					continue
				}
			}
			for _, pattern := range config.Inputs {
				inputs = append(inputs, "../"+unit.Name+"/"+group.Label()+"/"+pattern)
			}
		}
		if len(inputs) == 0 {
			if a.Params.Simulate {
				ctx.Log.Warnf("no %s data to reduce", group.Label())
				continue
			}
			return nil, errors.WithStack(&pipelineerrors.ErrArtifactMissing{
				Path:  filepath.Join(a.Params.WorkDir, "*", group.Label(), config.Inputs[0]),
				Cause: errors.Errorf("no unit has integrated %s data", group.Label()),
			})
		}

		dir := filepath.Join(a.Params.WorkDir, group.Label())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
		spec := a.batchJobSpec(Reduce, group.Label(), dir, config.Script, config.Template,
			a.Config.Scheduler.DownstreamQueue, map[string]interface{}{
				"Group":  group.Label(),
				"Inputs": inputs,
			})
		jobs = append(jobs, pipeline.Job{Spec: spec})
	}
	return jobs, nil
}

func hasIntegratedData(dir string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		matches, err := zglob.Glob(filepath.Join(dir, pattern))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, errors.WithStack(err)
		}
		if len(matches) == 0 {
			return false, nil
		}
	}
	return true, nil
}

func readTags(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: err})
	}
	lines, err := util.ReadLines(path)
	if err != nil {
		return nil, err
	}
	tags := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}

func formatCell(cell []float64) string {
	values := make([]string, len(cell))
	for i, v := range cell {
		values[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(values, ",")
}
