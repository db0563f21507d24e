package pppp

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/pipeline"
)

// ListEvents is the name of the batch job listing the events of every file in FileList.
const ListEvents = "list_events"

// listEvents runs the event listing over FileList, waits for it and returns the path of the list.
func (a *App) listEvents(ctx *logctx.Context) (string, error) {
	config := a.Config.Events
	spec := a.batchJobSpec(ListEvents, filepath.Base(a.Params.WorkDir), a.Params.WorkDir, config.Script, config.Template,
		a.Config.Scheduler.Queue, map[string]interface{}{
			"FileList": FileList,
			"Output":   config.Output,
			"Geometry": a.Params.CrystfelGeometry,
		})
	if _, err := a.jobRunner().Run(ctx, []pipeline.Job{{Spec: spec, Output: config.Output}}, true); err != nil {
		return "", err
	}

	path := filepath.Join(a.Params.WorkDir, config.Output)
	if !a.Params.Simulate {
		info, err := os.Stat(path)
		if err != nil {
			return "", errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: err})
		}
		if info.Size() == 0 {
			return "", errors.WithStack(&pipelineerrors.ErrArtifactMissing{Path: path, Cause: errors.New("no events were listed")})
		}
	}
	ctx.Log.Infof("events listed in %s", path)
	return path, nil
}
