package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/G-Research/pppp/internal/common/logctx"
	"github.com/G-Research/pppp/internal/pppp"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	return rootCmd(pppp.New())
}

func rootCmd(app *pppp.App) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "pppp",
		Short: "pppp is the pump and probe processing pipeline.",
		Long: `pppp is the pump and probe processing pipeline.

It submits a tagging and a radial averaging job per data unit to a grid engine, merges their outputs,
splits every unit's images into pump, probe and not assigned groups by thresholding the radial average,
and finally submits downstream processing of the grouped images.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:
parallelism: 4
scheduler:
  queue: high.q
correlation:
  mode: sequence

The location of this file can be passed in using the --config argument.
If not provided, ./pppp.yaml and then $HOME/.pppp.yaml are used.
Any setting can also be given as a PPPP_ prefixed environment variable, e.g. PPPP_SCHEDULER_QUEUE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file, defaults to ./pppp.yaml or $HOME/.pppp.yaml.")
	cmd.PersistentFlags().String("workdir", "", "Batch working directory, defaults to the current directory.")
	cmd.PersistentFlags().String("log-level", "", "Console log level, e.g. debug.")
	cmd.PersistentFlags().Int("parallelism", 0, "Maximum number of units processed at once, 0 for no limit.")
	cmd.PersistentFlags().String("queue", "", "Grid engine queue for the per unit jobs.")
	bindFlag(v, "logging.console.level", cmd.PersistentFlags().Lookup("log-level"))
	bindFlag(v, "parallelism", cmd.PersistentFlags().Lookup("parallelism"))
	bindFlag(v, "scheduler.queue", cmd.PersistentFlags().Lookup("queue"))

	cmd.AddCommand(
		versionCmd(app, v),
		prepareCmd(app, v),
		splitCmd(app, v),
		runCmd(app, v),
	)

	return cmd
}

// signalContext returns a context that is cancelled on SIGINT/SIGTERM.
// Ensures waits are abandoned on ctrl-C; jobs already submitted keep running.
func signalContext() (*logctx.Context, context.CancelFunc) {
	ctx, cancel := logctx.WithCancel(logctx.Background())
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case sig := <-stopSignal:
			ctx.Log.Warnf("received %s, cancelling", sig)
			cancel()
		}
		signal.Stop(stopSignal)
	}()
	return ctx, cancel
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		log.WithError(err).Panicf("could not bind flag %s", flag.Name)
	}
}
