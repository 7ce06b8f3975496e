// Package version exposes build metadata injected at link time via -ldflags.
package version

import "time"

var (
	// Version is the release identifier, e.g. a git tag or short SHA.
	Version = "dev"
	// Desc is a short human-readable service description.
	Desc = "trendpipe pipeline service"
	// BuildTime is the RFC3339 build timestamp; empty for local builds.
	BuildTime = ""
)

var startTime = time.Now().UTC().Format(time.RFC3339)

// Timestamp returns the build time, falling back to process start time for
// builds without ldflags.
func Timestamp() string {
	if BuildTime != "" {
		return BuildTime
	}
	return startTime
}
