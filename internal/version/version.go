// Package version carries build metadata for the SNUTZ binaries. The
// variables are overridden with -ldflags at release time and stay at their
// dev defaults otherwise.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the bare version string, e.g. "0.3.1" or "dev".
func Short() string {
	return Version
}

// Info returns the full version line printed for --version.
func Info() string {
	return fmt.Sprintf("snutz %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// UserAgent returns the User-Agent value the agent sends to the server.
func UserAgent() string {
	return "snutz-agent/" + Version
}

// Map returns the build metadata keyed for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}
