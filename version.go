package promptops

import (
	"fmt"
	"runtime"
)

var (
	// Version is the SDK semantic version (inject via -ldflags at build time).
	Version = "0.3.0"
	// GitCommit is the git SHA (inject via -ldflags at build time).
	GitCommit = "unknown"
	// GoVersion records the Go toolchain version used.
	GoVersion = runtime.Version()
)

// VersionString returns a human-readable version string.
func VersionString() string {
	return fmt.Sprintf("promptops-go v%s (commit: %s, go: %s)", Version, GitCommit, GoVersion)
}
