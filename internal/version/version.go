// Package version holds build-time identifiers injected via -ldflags.
package version

// Version and Commit are overwritten at build time, e.g.:
//
//	go build -ldflags "-X github.com/wisbric/focusd/internal/version.Version=1.4.0 -X .../version.Commit=$(git rev-parse HEAD)"
var (
	Version = "dev"
	Commit  = "unknown"
)
