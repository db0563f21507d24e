package pipeline

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/metrics"
	"github.com/G-Research/pppp/internal/common/util"
	"github.com/G-Research/pppp/internal/gridengine"
)

// Job is a batch-level job that belongs to no single unit, e.g. the event listing or a reduce step.
type Job struct {
	Spec gridengine.JobSpec
	// File the job writes, relative to Spec.WorkDir. If set it is truncated before submission.
	Output string
}

func (j Job) outputPath() string {
	if j.Output == "" {
		return ""
	}
	return filepath.Join(j.Spec.WorkDir, j.Output)
}

// JobRunner submits groups of batch-level jobs and optionally waits for all of them.
type JobRunner struct {
	client      gridengine.SchedulerClient
	watcher     *JobWatcher
	clock       clock.Clock
	metrics     *metrics.Metrics
	parallelism int
	simulate    bool
}

func NewJobRunner(
	client gridengine.SchedulerClient,
	watcher *JobWatcher,
	clk clock.Clock,
	m *metrics.Metrics,
	parallelism int,
	simulate bool,
) *JobRunner {
	return &JobRunner{
		client:      client,
		watcher:     watcher,
		clock:       clk,
		metrics:     m,
		parallelism: parallelism,
		simulate:    simulate,
	}
}

// Run submits every job, at most parallelism at a time, and if wait is set blocks until all of them have
// left the scheduler. The returned handles are parallel to jobs. The first failure cancels the jobs not yet
// submitted; jobs already submitted keep running. In simulate mode scripts are only rendered, outputs are
// created empty and no handles are returned.
func (r *JobRunner) Run(ctx *logctx.Context, jobs []Job, wait bool) ([]gridengine.JobHandle, error) {
	if r.simulate {
		for _, job := range jobs {
			if err := r.simulateJob(ctx, job); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	var mu sync.Mutex
	handles := make([]gridengine.JobHandle, len(jobs))
	g, groupCtx := logctx.ErrGroup(ctx, r.parallelism)
	for i, job := range jobs {
		if groupCtx.Err() != nil {
			break
		}
		i, job := i, job
		g.Go(func() error {
			handle, err := r.runJob(groupCtx, job, wait, func(h gridengine.JobHandle) {
				mu.Lock()
				defer mu.Unlock()
				handles[i] = h
			})
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			handles[i] = handle
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return handles, err
	}
	return handles, errors.WithStack(ctx.Err())
}

func (r *JobRunner) runJob(ctx *logctx.Context, job Job, wait bool, observe func(gridengine.JobHandle)) (gridengine.JobHandle, error) {
	ctx = logctx.WithLogFields(ctx, log.Fields{"stage": job.Spec.Name, "unit": job.Spec.Unit})
	if err := ctx.Err(); err != nil {
		return gridengine.JobHandle{}, errors.WithStack(err)
	}
	if path := job.outputPath(); path != "" {
		if err := util.Truncate(path); err != nil {
			return gridengine.JobHandle{}, err
		}
	}
	handle, err := r.client.Submit(ctx, job.Spec)
	if err != nil {
		return gridengine.JobHandle{}, err
	}
	observe(handle)
	ctx.Log.Infof("job %s submitted", handle.Id)
	if !wait {
		return handle, nil
	}
	start := r.clock.Now()
	final, err := r.watcher.Wait(ctx, handle, observe)
	if err != nil {
		return handle, err
	}
	r.metrics.RecordJobWait(job.Spec.Name, r.clock.Since(start))
	ctx.Log.Infof("job %s finished", handle.Id)
	return final, nil
}

func (r *JobRunner) simulateJob(ctx *logctx.Context, job Job) error {
	path, err := gridengine.WriteScript(job.Spec)
	if err != nil {
		return err
	}
	ctx.Log.Infof("simulate: rendered %s without submitting it", path)
	if output := job.outputPath(); output != "" {
		return util.Truncate(output)
	}
	return nil
}
