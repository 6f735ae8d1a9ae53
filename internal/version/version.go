// Package version provides version information for cellbridge.
package version

import "fmt"

// These are overridden at build time with -ldflags "-X github.com/ctagard/cellbridge/internal/version.Version=..."
var (
	// Version is the current version of cellbridge
	Version = "0.1.0"

	// CommitHash is the source revision the binary was built from
	CommitHash = ""
)

// Info describes the running build
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commitHash,omitempty"`
}

// Current returns the build information of the running binary
func Current() Info {
	return Info{Version: Version, CommitHash: CommitHash}
}

// String returns a one line description such as "cellbridge 0.1.0 (abc123)"
func (i Info) String() string {
	if i.CommitHash == "" {
		return fmt.Sprintf("cellbridge %s", i.Version)
	}
	return fmt.Sprintf("cellbridge %s (%s)", i.Version, i.CommitHash)
}
