// Package version holds build information injected with ldflags.
package version

import "fmt"

// Example: go build -ldflags "-X formpilot/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders all build information on one line.
func String() string {
	return fmt.Sprintf("formpilot %s (commit %s, built %s)", Version, Commit, Date)
}
