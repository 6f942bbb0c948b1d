// Package version carries the build identity, set with -ldflags -X.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns "scantrack <version> (<sha>, built <time>)".
func String() string {
	return fmt.Sprintf("scantrack %s (%s, built %s)", Version, GitSHA, BuildTime)
}
