package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSearchPaths(t *testing.T, paths ...string) {
	original := searchPaths
	searchPaths = paths
	t.Cleanup(func() { searchPaths = original })
}

func TestLoad_Defaults(t *testing.T) {
	withSearchPaths(t)
	config, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, "qsub", config.Scheduler.SubmitCommand)
	assert.Equal(t, "qstat", config.Scheduler.QueryCommand)
	assert.Equal(t, "smp", config.Scheduler.ParallelEnvironment)
	assert.Equal(t, 20, config.Scheduler.Slots)
	assert.Equal(t, "medium.q", config.Scheduler.DownstreamQueue)
	assert.Equal(t, 10*time.Second, config.Scheduler.SubmitRetryDelay)
	assert.Equal(t, 5*time.Second, config.Watch.PollInterval)
	assert.True(t, config.Watch.TrackJobs)
	assert.Equal(t, time.Duration(0), config.Watch.Timeout)
	assert.Equal(t, "tags.sh", config.Stage1.Script)
	assert.Equal(t, "run", config.Stage1.ValidPrefix)
	assert.Equal(t, "radial_average.csv", config.Stage2.Output)
	assert.Equal(t, CorrelationModeOrdinal, config.Correlation.Mode)
	assert.Equal(t, "events.lst", config.Events.Output)
	assert.Equal(t, "run_dials.phil", config.Dials.Integrate.Phil)
	assert.Equal(t, []string{"idx-*_integrated*.expt", "idx-*_integrated*.refl"}, config.Dials.Reduce.Inputs)
	assert.Equal(t, "info", config.Logging.Console.Level)
	assert.Equal(t, 50, config.Logging.File.Rotation.MaxSizeMb)
}

func TestLoad_UserFileOverridesDefaults(t *testing.T) {
	withSearchPaths(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  slots: 4\n  queue: short.q\nwatch:\n  timeout: 2h\n"), 0o644))

	config, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 4, config.Scheduler.Slots)
	assert.Equal(t, "short.q", config.Scheduler.Queue)
	assert.Equal(t, 2*time.Hour, config.Watch.Timeout)
	// untouched keys keep their defaults
	assert.Equal(t, "qsub", config.Scheduler.SubmitCommand)
}

func TestLoad_SearchPaths(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "pppp.yaml")
	second := filepath.Join(dir, "home.yaml")
	withSearchPaths(t, filepath.Join(dir, "absent.yaml"), first, second)
	require.NoError(t, os.WriteFile(first, []byte("parallelism: 3\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("parallelism: 9\n"), 0o644))

	config, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, config.Parallelism)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pppp.yaml")
	withSearchPaths(t, path)
	require.NoError(t, os.WriteFile(path, []byte("correlation:\n  mode: ordinal\n"), 0o644))
	t.Setenv("PPPP_CORRELATION_MODE", "sequence")
	t.Setenv("PPPP_SCHEDULER_SUBMITATTEMPTS", "7")

	config, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, CorrelationModeSequence, config.Correlation.Mode)
	assert.Equal(t, uint(7), config.Scheduler.SubmitAttempts)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		modify func(c *Configuration)
		valid  bool
	}{
		"defaults":             {func(c *Configuration) {}, true},
		"unknown mode":         {func(c *Configuration) { c.Correlation.Mode = "positional" }, false},
		"zero slots":           {func(c *Configuration) { c.Scheduler.Slots = 0 }, false},
		"no submit command":    {func(c *Configuration) { c.Scheduler.SubmitCommand = "" }, false},
		"zero poll interval":   {func(c *Configuration) { c.Watch.PollInterval = 0 }, false},
		"negative parallelism": {func(c *Configuration) { c.Parallelism = -1 }, false},
		"zero attempts":        {func(c *Configuration) { c.Scheduler.SubmitAttempts = 0 }, false},
		"no reduce inputs":     {func(c *Configuration) { c.Dials.Reduce.Inputs = nil }, false},
		"no events template":   {func(c *Configuration) { c.Events.Template = "" }, false},
		"bounded watch":        {func(c *Configuration) { c.Watch.Timeout = time.Hour; c.Watch.MaxAmbiguousQueries = 10 }, true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			withSearchPaths(t)
			config, err := Load(viper.New(), "")
			require.NoError(t, err)
			tc.modify(&config)

			err = config.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				var validationErrors validator.ValidationErrors
				assert.ErrorAs(t, err, &validationErrors)
			}
		})
	}
}
