package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/pppp"
)

// Run both stages for every unit and merge their outputs.
func prepareCmd(app *pppp.App, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare [units...]",
		Short: "Submit the tagging and radial averaging jobs and merge their outputs.",
		Long: `Submit the tagging and radial averaging jobs of every unit, wait for them, and merge the radial
averages of all units into radial_average_all.csv in the working directory.

Units are given with --files or as arguments. An unqualified identifier such as 133451 stands for
its three sub-units 133451-0, 133451-1 and 133451-2.

With --geom-crystfel the events of every data file are then listed in events.lst by a
list_events job.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initBatchParams(cmd, app, v, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSignals(app.Prepare)
		},
	}
	addBatchFlags(cmd)
	addPrepareFlags(cmd)
	return cmd
}

// Partition the prepared units and start downstream processing.
func splitCmd(app *pppp.App, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [units...]",
		Short: "Split every unit's images into pump and probe groups and start downstream processing.",
		Long: `Split every unit's images into pump, probe and not assigned groups by comparing their radial
average with the threshold(s), write the grouping manifest and submit the downstream job.

With --dials every pump and probe group of every unit is integrated in <unit>/<group>, and
once all of those jobs have finished each group is reduced in <group>.

Without units every directory in the working directory named like a unit is treated as one.
A single threshold T is the same as --threshold T,T. Two thresholds are given as one
comma separated value:

  pppp split --dir /data --threshold 30,40 133451`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initBatchParams(cmd, app, v, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSignals(app.Split)
		},
	}
	addBatchFlags(cmd)
	addSplitFlags(cmd)
	return cmd
}

// Run the whole pipeline.
func runCmd(app *pppp.App, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [units...]",
		Short: "Prepare and then split a batch.",
		Long: `Run prepare and then split on the same units. If --geom-crystfel is given and --events
is not, the split correlates with the events listed by prepare.

Two thresholds are given as one comma separated value:

  pppp run --dir /data --geom refined.expt --threshold 30,40 133451`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initBatchParams(cmd, app, v, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSignals(app.Run)
		},
	}
	addBatchFlags(cmd)
	addPrepareFlags(cmd)
	addSplitFlags(cmd)
	return cmd
}

func initBatchParams(cmd *cobra.Command, app *pppp.App, v *viper.Viper, args []string) error {
	if err := initParams(cmd, app, v); err != nil {
		return err
	}
	if len(app.Params.Thresholds) == 1 {
		for _, arg := range args {
			if looksLikeThreshold(app.Params.DataDir, arg) {
				return &pipelineerrors.ErrConfiguration{
					Name:    "threshold",
					Value:   arg,
					Message: fmt.Sprintf("%q is not a unit under %s; pass a low,high pair as --threshold %g,%s", arg, app.Params.DataDir, app.Params.Thresholds[0], arg),
				}
			}
		}
	}
	app.Params.Files = append(app.Params.Files, args...)
	return nil
}

// looksLikeThreshold is true for a numeric argument that names no unit under dataDir, as left behind by
// --threshold 30 40.
func looksLikeThreshold(dataDir, arg string) bool {
	if _, err := strconv.ParseFloat(arg, 64); err != nil {
		return false
	}
	for _, name := range []string{arg, arg + "-0"} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err == nil {
			return false
		}
	}
	return true
}

func runWithSignals(f func(ctx *logctx.Context) error) error {
	ctx, cancel := signalContext()
	defer cancel()
	return f(ctx)
}
