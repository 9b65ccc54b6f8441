// Package version carries build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the release tag of the ivclassify build
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build metadata on one line, adding the weights version
// the binary classifies with so stored results can be traced to both.
func String(weightsVersion string) string {
	sha := GitSHA
	if sha == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					sha = s.Value
				}
			}
		}
	}
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("ivclassify %s (commit %s, built %s, weights %s)", Version, sha, BuildTime, weightsVersion)
}
