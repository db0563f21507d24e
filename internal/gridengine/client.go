package gridengine

import (
	"github.com/avast/retry-go"
	"github.com/pkg/errors"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/metrics"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

// SchedulerClient is the boundary to the batch scheduler.
type SchedulerClient interface {
	// Submit renders spec into its work directory and submits it, returning a handle in state HandleSubmitted.
	Submit(ctx *logctx.Context, spec JobSpec) (JobHandle, error)
	// Query reports whether the scheduler still knows about the job. A non-nil error means the query
	// command itself could not be run; the status is then StatusUnknown.
	Query(ctx *logctx.Context, handle JobHandle) (Status, error)
}

// Client talks to a grid engine style scheduler through its submit and query commands.
type Client struct {
	config     configuration.SchedulerConfig
	runner     CommandRunner
	parser     HandleParser
	classifier StatusClassifier
	metrics    *metrics.Metrics
}

func NewClient(config configuration.SchedulerConfig, runner CommandRunner, m *metrics.Metrics) *Client {
	return &Client{
		config: config,
		runner: runner,
		parser: DefaultHandleParser,
		classifier: StatusClassifier{
			NotFoundPhrase: config.NotFoundPhrase,
			ActivePhrase:   config.ActivePhrase,
		},
		metrics: m,
	}
}

// WithHandleParser replaces the parser used to read job ids from submit output.
func (c *Client) WithHandleParser(parser HandleParser) *Client {
	c.parser = parser
	return c
}

func (c *Client) Submit(ctx *logctx.Context, spec JobSpec) (JobHandle, error) {
	scriptPath, err := WriteScript(spec)
	if err != nil {
		return JobHandle{}, err
	}

	var result CommandResult
	attempts := c.config.SubmitAttempts
	if attempts == 0 {
		attempts = 1
	}
	err = retry.Do(
		func() error {
			var err error
			result, err = c.runner.Run(ctx, c.config.SubmitCommand, spec.submitArgs(scriptPath)...)
			if err != nil {
				return err
			}
			if result.ExitCode != 0 {
				return errors.Errorf("%s exited with code %d: %s", c.config.SubmitCommand, result.ExitCode, FirstLine(result.Stderr))
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(c.config.SubmitRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			ctx.Log.WithError(err).Warnf("submitting %s failed (attempt %d of %d)", spec.Script, n+1, attempts)
			c.metrics.RecordSubmitRetry()
		}),
	)
	if ctx.Err() != nil {
		return JobHandle{}, errors.WithStack(ctx.Err())
	}
	if err != nil {
		return JobHandle{}, errors.WithStack(&pipelineerrors.ErrSubmission{
			Unit:  spec.Unit,
			Stage: spec.Name,
			Cause: err,
		})
	}

	id, err := c.parser.ParseHandle(result.Stdout)
	if err != nil {
		return JobHandle{}, errors.WithStack(&pipelineerrors.ErrSubmission{
			Unit:   spec.Unit,
			Stage:  spec.Name,
			Output: FirstLine(result.Stdout),
			Cause:  err,
		})
	}
	c.metrics.RecordJobSubmitted(spec.Name)
	ctx.Log.WithField("job", id).Infof("submitted %s", scriptPath)
	return JobHandle{Id: id, State: HandleSubmitted}, nil
}

func (c *Client) Query(ctx *logctx.Context, handle JobHandle) (Status, error) {
	result, err := c.runner.Run(ctx, c.config.QueryCommand, "-j", handle.Id)
	if err != nil {
		c.metrics.RecordJobPoll(metrics.PollResultError)
		return StatusUnknown, err
	}
	status := c.classifier.Classify(result.Stdout, result.Stderr)
	switch status {
	case StatusActive:
		c.metrics.RecordJobPoll(metrics.PollResultActive)
	case StatusNotFound:
		c.metrics.RecordJobPoll(metrics.PollResultNotFound)
	default:
		c.metrics.RecordJobPoll(metrics.PollResultUnknown)
	}
	return status, nil
}
