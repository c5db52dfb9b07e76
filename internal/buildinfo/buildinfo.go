// Package buildinfo exposes compile-time metadata reported by /health and the CLI banner.
package buildinfo

import "fmt"

// The following variables are overridden via ldflags during release builds.
var (
	// Version is the semantic version or git describe output of the binary.
	Version = "dev"

	// Commit is the git commit SHA baked into the binary.
	Commit = "none"

	// BuildDate records when the binary was built in UTC.
	BuildDate = "unknown"
)

// String renders the metadata as a single banner line.
func String() string {
	return fmt.Sprintf("post-publisher %s (commit %s, built %s)", Version, Commit, BuildDate)
}
