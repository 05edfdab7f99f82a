// Package version holds build-time version metadata for the taxcount
// binary. Version and CommitHash are overridden at build time via
// -ldflags "-X github.com/dcdpr/taxcount/internal/version.Version=...".
package version

import "fmt"

// Version is the semver tag for this build. It defaults to "dev" for
// local/unreleased builds.
var Version = "dev"

// CommitHash is the git commit this build was produced from, when known.
var CommitHash = ""

// GetVersionString returns a single-line version string suitable for
// "-version" CLI output and log output.
func GetVersionString() string {
	if CommitHash == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, CommitHash)
}
