package pipeline

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/gridengine"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

// JobWatcher polls the scheduler until a job has left it.
type JobWatcher struct {
	client              gridengine.SchedulerClient
	clock               clock.Clock
	pollInterval        time.Duration
	timeout             time.Duration
	maxAmbiguousQueries int
}

func NewJobWatcher(client gridengine.SchedulerClient, config configuration.WatchConfig, clk clock.Clock) *JobWatcher {
	return &JobWatcher{
		client:              client,
		clock:               clk,
		pollInterval:        config.PollInterval,
		timeout:             config.Timeout,
		maxAmbiguousQueries: config.MaxAmbiguousQueries,
	}
}

// Wait queries the job every poll interval until the scheduler no longer knows it, and returns the handle
// in state HandleTerminal. A query that fails or cannot be classified counts as still active. Wait gives up
// with ErrWatchTimeout once the timeout has passed or more than maxAmbiguousQueries consecutive ambiguous
// answers were received, if those limits are set. observe, if not nil, is called whenever the handle's
// state changes.
func (w *JobWatcher) Wait(ctx *logctx.Context, handle gridengine.JobHandle, observe func(gridengine.JobHandle)) (gridengine.JobHandle, error) {
	ctx = logctx.WithLogField(ctx, "job", handle.Id)
	start := w.clock.Now()
	ambiguous := 0
	advance := func(state gridengine.HandleState) {
		next := handle.Advance(state)
		if next != handle && observe != nil {
			observe(next)
		}
		handle = next
	}

	for {
		status, err := w.client.Query(ctx, handle)
		if err != nil {
			ctx.Log.WithError(err).Warn("job status query failed")
			status = gridengine.StatusUnknown
		}
		switch status {
		case gridengine.StatusNotFound:
			advance(gridengine.HandleTerminal)
			ctx.Log.Infof("job finished after %s", w.clock.Since(start))
			return handle, nil
		case gridengine.StatusActive:
			ambiguous = 0
			advance(gridengine.HandleActive)
		default:
			ambiguous++
			ctx.Log.Debugf("ambiguous job status (%d in a row)", ambiguous)
			if w.maxAmbiguousQueries > 0 && ambiguous > w.maxAmbiguousQueries {
				return handle, errors.WithStack(&pipelineerrors.ErrWatchTimeout{
					Target:           handle.Id,
					Waited:           w.clock.Since(start),
					AmbiguousQueries: ambiguous,
				})
			}
		}

		if w.timeout > 0 && w.clock.Since(start) >= w.timeout {
			return handle, errors.WithStack(&pipelineerrors.ErrWatchTimeout{
				Target: handle.Id,
				Waited: w.clock.Since(start),
			})
		}
		select {
		case <-ctx.Done():
			return handle, errors.WithStack(ctx.Err())
		case <-w.clock.After(w.pollInterval):
		}
	}
}

// ArtifactWaiter polls the file system until a file exists and is non-empty.
type ArtifactWaiter struct {
	clock        clock.Clock
	pollInterval time.Duration
	timeout      time.Duration
}

func NewArtifactWaiter(config configuration.ArtifactConfig, clk clock.Clock) *ArtifactWaiter {
	return &ArtifactWaiter{
		clock:        clk,
		pollInterval: config.PollInterval,
		timeout:      config.Timeout,
	}
}

// WaitNonEmpty returns once path is a non-empty file. It returns ErrWatchTimeout if the timeout, when set,
// passes first.
func (w *ArtifactWaiter) WaitNonEmpty(ctx *logctx.Context, path string) error {
	start := w.clock.Now()
	for {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			return nil
		}
		if w.timeout > 0 && w.clock.Since(start) >= w.timeout {
			return errors.WithStack(&pipelineerrors.ErrWatchTimeout{Target: path, Waited: w.clock.Since(start)})
		}
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-w.clock.After(w.pollInterval):
		}
	}
}
