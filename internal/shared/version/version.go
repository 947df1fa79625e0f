// Package version carries build identification stamped in via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time:
//
//	go build -ldflags "-X meshbridge/internal/shared/version.Version=v0.4.0 \
//	  -X meshbridge/internal/shared/version.Commit=$(git rev-parse --short HEAD) \
//	  -X meshbridge/internal/shared/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the one-line form used by `meshbridge version` and the
// startup banner.
func String() string {
	return fmt.Sprintf("meshbridge %s (commit %s, built %s, %s)", Version, Commit, BuildDate, runtime.Version())
}
