// Package version provides build-time version information for AIMS.
// Variables are injected at build time via ldflags:
//
//	-X github.com/HerbHall/aims/internal/version.Version=1.2.0
package version

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

// Header is the response header carrying the server version.
const Header = "X-AIMS-Version"

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string suitable for `aims version`.
func Info() string {
	return fmt.Sprintf("AIMS %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// Short returns just the version string (e.g., "0.1.0" or "dev").
func Short() string {
	return Version
}

// Map returns version info as a map for JSON serialization.
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

// Fields returns the build info as zap fields for the startup log line.
func Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("build_date", BuildDate),
	}
}
