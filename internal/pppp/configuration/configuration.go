package configuration

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/G-Research/pppp/internal/common/logging"
)

const (
	// CorrelationModeOrdinal pairs the n-th auxiliary line for a file with the n-th record for that file.
	CorrelationModeOrdinal = "ordinal"
	// CorrelationModeSequence pairs lines and records by the event number embedded in both.
	CorrelationModeSequence = "sequence"
)

type Configuration struct {
	Logging logging.Config
	// Maximum number of units driven through the stages at once. Zero means no limit.
	Parallelism int `validate:"gte=0"`
	Scheduler   SchedulerConfig
	Watch       WatchConfig
	Artifacts   ArtifactConfig
	Stage1      Stage1Config
	Stage2      StageConfig
	Downstream  DownstreamConfig
	// Batch job listing the events of every raw data file, run when a CrystFEL geometry is given.
	Events StageConfig
	// Alternative downstream processing: integration per unit and group, then one reduce job per group.
	Dials       DialsConfig
	Correlation CorrelationConfig
	Metrics     MetricsConfig
}

type SchedulerConfig struct {
	// Executable used to submit job scripts, e.g. qsub
	SubmitCommand string `validate:"required"`
	// Executable used to query job status, e.g. qstat
	QueryCommand        string `validate:"required"`
	ParallelEnvironment string `validate:"required"`
	Slots               int    `validate:"gt=0"`
	// Queue for the stage jobs. Empty means the scheduler's default queue.
	Queue           string
	DownstreamQueue string
	// Text the query command prints once a job has left the scheduler.
	NotFoundPhrase string `validate:"required"`
	// Text the query command prints while the job is known to the scheduler.
	ActivePhrase     string
	SubmitAttempts   uint `validate:"gte=1"`
	SubmitRetryDelay time.Duration
}

type WatchConfig struct {
	// If false the controller relies on stage artifacts alone and never queries job status.
	TrackJobs    bool
	PollInterval time.Duration `validate:"required"`
	// Zero means wait forever.
	Timeout time.Duration `validate:"gte=0"`
	// Number of consecutive ambiguous status queries tolerated. Zero means no limit.
	MaxAmbiguousQueries int `validate:"gte=0"`
}

type ArtifactConfig struct {
	PollInterval time.Duration `validate:"required"`
	// Zero means wait forever.
	Timeout time.Duration `validate:"gte=0"`
}

type Stage1Config struct {
	Script string `validate:"required"`
	Output string `validate:"required"`
	// Lines of the stage 1 output not starting with this prefix are dropped.
	ValidPrefix string `validate:"required"`
	Template    string `validate:"required"`
}

type StageConfig struct {
	Script   string `validate:"required"`
	Output   string `validate:"required"`
	Template string `validate:"required"`
}

type DownstreamConfig struct {
	Script   string `validate:"required"`
	Manifest string `validate:"required"`
	Template string `validate:"required"`
	// Whether to block until the downstream job has left the scheduler.
	Wait bool
}

type DialsConfig struct {
	Integrate IntegrateConfig
	Reduce    ReduceConfig
}

type IntegrateConfig struct {
	Script string `validate:"required"`
	// Processing parameters file the script writes next to itself.
	Phil     string `validate:"required"`
	Template string `validate:"required"`
}

type ReduceConfig struct {
	Script string `validate:"required"`
	// Patterns, relative to a unit's group directory, of the integrated data to reduce. A unit is only
	// included once every pattern matches.
	Inputs   []string `validate:"required,min=1"`
	Template string   `validate:"required"`
}

type CorrelationConfig struct {
	Mode string `validate:"oneof=ordinal sequence"`
	// Added to the sequence number parsed from a record id before looking up its auxiliary line.
	SequenceOffset int
}

type MetricsConfig struct {
	// If set, a Prometheus text format snapshot of the batch metrics is written here on exit.
	Textfile string
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}
