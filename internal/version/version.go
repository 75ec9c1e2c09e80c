// Package version provides build-time version information.
package version

// Set at build time via -ldflags.
var (
	// Version is the semantic version of the alignpress tools.
	Version = "0.1.0"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"
)
