package pppp

import (
	"path/filepath"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/manifest"
	"github.com/G-Research/pppp/internal/pipeline"
)

// Prepare runs both stages for every unit of the batch and merges their outputs into MergedOutput. With a
// CrystFEL geometry the events of every file in FileList are then listed; a following split correlates
// with them unless another event list was given. A summary is printed even if the batch fails.
func (a *App) Prepare(ctx *logctx.Context) error {
	ctx = a.batchContext(ctx, "prepare")
	defer a.writeMetrics(ctx)
	if err := a.validateParams(); err != nil {
		return err
	}
	summary, err := a.prepare(ctx)
	summary.Write(a.Out)
	return err
}

func (a *App) prepare(ctx *logctx.Context) (*Summary, error) {
	summary := NewSummary()
	units, err := a.resolveUnits()
	if err != nil {
		return summary, err
	}
	if err := manifest.WriteFileList(filepath.Join(a.Params.WorkDir, FileList), sourceEntries(units)); err != nil {
		return summary, err
	}

	db, err := pipeline.NewUnitDb()
	if err != nil {
		return summary, err
	}
	if err := db.Upsert(units...); err != nil {
		return summary, err
	}
	controller := pipeline.NewController(
		a.controllerConfig(),
		a.client(),
		pipeline.NewJobWatcher(a.client(), a.Config.Watch, a.Clock),
		pipeline.NewArtifactWaiter(a.Config.Artifacts, a.Clock),
		db,
		a.Clock,
		a.Metrics,
	)
	ctx.Log.Infof("processing %d units in %s", len(units), a.Params.WorkDir)
	units, err = controller.Run(ctx)
	summary.AddUnits(units)
	if err != nil {
		return summary, err
	}

	merged := filepath.Join(a.Params.WorkDir, MergedOutput)
	if _, err := pipeline.Merge(units, a.Config.Stage2.Output, merged); err != nil {
		return summary, err
	}
	ctx.Log.Infof("check data in %s", merged)

	if a.Params.CrystfelGeometry != "" {
		events, err := a.listEvents(ctx)
		if err != nil {
			return summary, err
		}
		if a.Params.Events == "" {
			a.Params.Events = events
		}
	}
	return summary, nil
}

func (a *App) controllerConfig() pipeline.ControllerConfig {
	return pipeline.ControllerConfig{
		Stage1:              a.Config.Stage1,
		Stage2:              a.Config.Stage2,
		ParallelEnvironment: a.Config.Scheduler.ParallelEnvironment,
		Slots:               a.Config.Scheduler.Slots,
		Queue:               a.Config.Scheduler.Queue,
		TrackJobs:           a.Config.Watch.TrackJobs,
		Parallelism:         a.Config.Parallelism,
		Simulate:            a.Params.Simulate,
		Params: map[string]interface{}{
			"DataDir":  a.Params.DataDir,
			"Geometry": a.Params.Geometry,
		},
	}
}

func sourceEntries(units []*pipeline.Unit) []manifest.Entry {
	entries := make([]manifest.Entry, len(units))
	for i, unit := range units {
		entries[i] = manifest.Entry{SourcePath: unit.SourcePath}
	}
	return entries
}
