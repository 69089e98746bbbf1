// Package version exposes the build version stamped in at link time.
package version

import "fmt"

// These are set via -ldflags -X during the release build.
var (
	gitTag    = "v0.1.0"
	gitCommit = "dev"
)

// Version returns the human-readable build identifier.
func Version() string {
	return fmt.Sprintf("%s-%s", gitTag, gitCommit)
}
