// Package version holds build information injected with -ldflags, e.g.
//
//	-X github.com/aristath/metrics-updater/internal/version.Version=v1.2.0
package version

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
