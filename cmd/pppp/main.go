package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/pppp/cmd/pppp/cmd"
	"github.com/G-Research/pppp/internal/common/logging"
	"github.com/G-Research/pppp/internal/common/pipelineerrors"
)

// Config is handled by cmd/params.go
func main() {
	logging.ConfigureCommandLineLogging()
	err := cmd.RootCmd().Execute()
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error(err)
	}
	os.Exit(pipelineerrors.ExitCodeFromError(err))
}
