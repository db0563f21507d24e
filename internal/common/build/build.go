// Package build holds version information injected at link time, e.g.
//
//	go build -ldflags "-X github.com/G-Research/pppp/internal/common/build.ReleaseVersion=v0.3.0"
package build

import "runtime"

var (
	ReleaseVersion = "unknown"
	GitCommit      = "unknown"
	BuildTime      = "unknown"
	GoVersion      = runtime.Version()
)
