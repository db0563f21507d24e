package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/pppp/internal/common/logging"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
	"github.com/G-Research/pppp/internal/pppp"
	"github.com/G-Research/pppp/internal/pppp/configuration"
)

// initParams loads the configuration, sets up logging and copies the command's flags into app.Params.
// Flags a command does not define are left untouched.
func initParams(cmd *cobra.Command, app *pppp.App, v *viper.Viper) error {
	flags := cmd.Flags()
	configPath, err := flags.GetString("config")
	if err != nil {
		return err
	}
	config, err := configuration.Load(v, configPath)
	if err != nil {
		return &pipelineerrors.ErrConfiguration{Name: "config", Value: configPath, Message: err.Error()}
	}
	if err := config.Validate(); err != nil {
		configuration.LogValidationErrors(err)
		return &pipelineerrors.ErrConfiguration{Name: "config", Value: configPath, Message: err.Error()}
	}
	if err := logging.ConfigureLogging(config.Logging); err != nil {
		return &pipelineerrors.ErrConfiguration{Name: "logging", Value: config.Logging.Console.Level, Message: err.Error()}
	}
	app.Config = config

	p := app.Params
	if p.WorkDir, err = flags.GetString("workdir"); err != nil {
		return err
	}
	if flags.Lookup("dir") != nil {
		if p.DataDir, err = flags.GetString("dir"); err != nil {
			return err
		}
	}
	if flags.Lookup("files") != nil {
		if p.Files, err = flags.GetStringSlice("files"); err != nil {
			return err
		}
	}
	if flags.Lookup("geom") != nil {
		if p.Geometry, err = flags.GetString("geom"); err != nil {
			return err
		}
	}
	if flags.Lookup("geom-crystfel") != nil {
		if p.CrystfelGeometry, err = flags.GetString("geom-crystfel"); err != nil {
			return err
		}
	}
	if flags.Lookup("dials") != nil {
		if p.Dials, err = flags.GetBool("dials"); err != nil {
			return err
		}
		if p.Mask, err = flags.GetString("mask"); err != nil {
			return err
		}
		if p.SpaceGroup, err = flags.GetString("spacegroup"); err != nil {
			return err
		}
		if flags.Changed("cell") {
			if p.Cell, err = flags.GetFloat64Slice("cell"); err != nil {
				return err
			}
		}
		if p.DMin, err = flags.GetFloat64("d-min"); err != nil {
			return err
		}
	}
	if flags.Lookup("threshold") != nil {
		if p.Thresholds, err = flags.GetFloat64Slice("threshold"); err != nil {
			return err
		}
	}
	if flags.Lookup("events") != nil {
		if p.Events, err = flags.GetString("events"); err != nil {
			return err
		}
	}
	if flags.Lookup("phil") != nil {
		if p.Phil, err = flags.GetString("phil"); err != nil {
			return err
		}
	}
	if flags.Lookup("sim") != nil {
		if p.Simulate, err = flags.GetBool("sim"); err != nil {
			return err
		}
	}
	if flags.Lookup("just-split") != nil {
		if p.JustSplit, err = flags.GetBool("just-split"); err != nil {
			return err
		}
	}
	if flags.Lookup("just-process") != nil {
		if p.JustProcess, err = flags.GetBool("just-process"); err != nil {
			return err
		}
	}
	if p.JustSplit && p.JustProcess {
		return &pipelineerrors.ErrConfiguration{Name: "just-split", Value: true, Message: "cannot be combined with --just-process"}
	}
	return nil
}

func addPrepareFlags(cmd *cobra.Command) {
	cmd.Flags().String("geom-crystfel", "", "CrystFEL geometry; if given, the events of every data file are listed in events.lst.")
}

func addSplitFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Slice("threshold", nil, "Threshold dividing pump and probe data, or a comma separated low,high pair (--threshold 30,40); records in between are not assigned.")
	cmd.Flags().String("events", "", "Event list (e.g. CrystFEL events.lst) to split alongside the records.")
	cmd.Flags().String("phil", "", "Processing parameters file passed to the downstream job.")
	cmd.Flags().Bool("just-split", false, "Only split the data into groups, do not start downstream processing.")
	cmd.Flags().Bool("just-process", false, "Only start downstream processing, assuming the data has been split already.")
	cmd.Flags().Bool("dials", false, "Integrate every group of every unit separately and reduce each group, instead of one xia2.ssx job.")
	cmd.Flags().String("mask", "", "Mask used for spot finding and integration with --dials.")
	cmd.Flags().String("spacegroup", "", "Known space group used for indexing with --dials.")
	cmd.Flags().Float64Slice("cell", nil, "Known unit cell used for indexing with --dials, as a,b,c,alpha,beta,gamma (e.g. --cell 60,50,40,90,90,90).")
	cmd.Flags().Float64("d-min", 0, "High resolution cutoff used for spot finding with --dials.")
}

func addBatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("dir", "", "Directory holding the raw data, one <unit>/run<unit>.h5 per unit.")
	cmd.Flags().String("geom", "", "Reference geometry used by the radial averaging and integration jobs.")
	cmd.Flags().StringSlice("files", nil, "Units to process, e.g. 133451 or 133451-0,133451-1. Positional arguments are added to these.")
	cmd.Flags().Bool("sim", false, "Simulate: create scripts and empty outputs but do not submit jobs.")
}
