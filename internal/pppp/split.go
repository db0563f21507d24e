package pppp

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/common/util"
	"github.com/G-Research/pppp/internal/dataset"
	"github.com/G-Research/pppp/internal/manifest"
	"github.com/G-Research/pppp/internal/partition"
	"github.com/G-Research/pppp/internal/pipeline"
)

// Downstream is the name of the batch-level job started after partitioning.
const Downstream = "downstream"

// Split partitions the stage 2 output of every unit, writes the grouping manifest and, unless JustSplit is
// set, submits the downstream job.
func (a *App) Split(ctx *logctx.Context) error {
	ctx = a.batchContext(ctx, "split")
	defer a.writeMetrics(ctx)
	if err := a.validateParams(); err != nil {
		return err
	}
	thresholds, err := a.thresholds()
	if err != nil {
		return err
	}
	summary := NewSummary()
	err = a.split(ctx, thresholds, summary)
	summary.Write(a.Out)
	return err
}

// Run prepares and then splits the batch. Thresholds are checked before any job is submitted.
func (a *App) Run(ctx *logctx.Context) error {
	ctx = a.batchContext(ctx, "run")
	defer a.writeMetrics(ctx)
	if err := a.validateParams(); err != nil {
		return err
	}
	thresholds, err := a.thresholds()
	if err != nil {
		return err
	}
	summary, err := a.prepare(ctx)
	if err == nil {
		err = a.split(ctx, thresholds, summary)
	}
	summary.Write(a.Out)
	return err
}

func (a *App) thresholds() (partition.Thresholds, error) {
	if a.Params.JustProcess && len(a.Params.Thresholds) == 0 {
		return partition.Thresholds{}, nil
	}
	return partition.NewThresholds(a.Params.Thresholds)
}

func (a *App) split(ctx *logctx.Context, thresholds partition.Thresholds, summary *Summary) error {
	units, err := a.resolveUnits()
	if err != nil {
		return err
	}

	if a.Params.JustProcess {
		if err := requireDatasets(units); err != nil {
			return err
		}
	} else {
		results, err := a.partition(ctx, thresholds, units)
		summary.AddResults(results)
		if err != nil {
			return err
		}
		if a.Params.Events != "" {
			if err := a.mergeEvents(ctx, results); err != nil {
				return err
			}
		}
	}

	if a.Params.JustSplit {
		ctx.Log.Info("data split, downstream processing not requested")
		return nil
	}
	if a.Params.Dials {
		return a.processWithDials(ctx, units)
	}
	manifestPath := filepath.Join(a.Params.WorkDir, a.Config.Downstream.Manifest)
	if err := manifest.Generate(manifestPath, datasetEntries(units)); err != nil {
		return err
	}
	ctx.Log.Infof("grouping manifest written to %s", manifestPath)
	return a.submitDownstream(ctx, units, manifestPath)
}

func (a *App) partition(ctx *logctx.Context, thresholds partition.Thresholds, units []*pipeline.Unit) ([]partition.Result, error) {
	var events []string
	if a.Params.Events != "" {
		var err error
		if events, err = partition.LoadEvents(a.Params.Events); err != nil {
			return nil, err
		}
	}
	partitioner := partition.NewPartitioner(thresholds, a.Config.Correlation, events, a.Metrics)
	ctx.Log.Infof("separating records into groups using thresholds %v and %v", thresholds.Low, thresholds.High)

	results := make([]partition.Result, 0, len(units))
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return results, errors.WithStack(err)
		}
		unitCtx := logctx.WithLogField(ctx, "unit", unit.Name)
		result, err := partitioner.PartitionUnit(unitCtx, unit.Name, unit.WorkDir, a.Config.Stage2.Output)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// mergeEvents replaces the batch-level pump and probe event lists with the concatenation, in unit order,
// of every unit's correlated events.
func (a *App) mergeEvents(ctx *logctx.Context, results []partition.Result) error {
	for _, c := range []partition.Category{partition.Low, partition.High} {
		var lines []string
		for _, result := range results {
			lines = append(lines, result.Events[c]...)
		}
		path := filepath.Join(a.Params.WorkDir, c.EventsFile())
		if err := util.WriteLinesAtomic(path, lines); err != nil {
			return err
		}
		ctx.Log.Infof("%d events written to %s", len(lines), path)
	}
	return nil
}

func (a *App) submitDownstream(ctx *logctx.Context, units []*pipeline.Unit, manifestPath string) error {
	images := make([]string, len(units))
	for i, unit := range units {
		images[i] = unit.Name + "/run" + unit.Name
	}
	config := a.Config.Downstream
	spec := a.batchJobSpec(Downstream, filepath.Base(a.Params.WorkDir), a.Params.WorkDir, config.Script, config.Template,
		a.Config.Scheduler.DownstreamQueue, map[string]interface{}{
			"DataDir":  a.Params.DataDir,
			"Images":   images,
			"Manifest": manifestPath,
			"Phil":     a.Params.Phil,
			"Geometry": a.Params.Geometry,
		})
	if _, err := a.jobRunner().Run(ctx, []pipeline.Job{{Spec: spec}}, config.Wait); err != nil {
		return err
	}
	if !a.Params.Simulate {
		ctx.Log.Info("downstream processing submitted")
	}
	return nil
}

func datasetPath(unit *pipeline.Unit) string {
	return filepath.Join(unit.WorkDir, dataset.FileName(unit.Name))
}

func datasetEntries(units []*pipeline.Unit) []manifest.Entry {
	entries := make([]manifest.Entry, len(units))
	for i, unit := range units {
		entries[i] = manifest.Entry{SourcePath: unit.SourcePath, DatasetPath: datasetPath(unit)}
	}
	return entries
}

func requireDatasets(units []*pipeline.Unit) error {
	for _, unit := range units {
		path := datasetPath(unit)
		if _, err := os.Stat(path); err != nil {
			return errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: err})
		}
	}
	return nil
}
