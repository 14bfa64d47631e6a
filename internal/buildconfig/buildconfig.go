package buildconfig

import "fmt"

// Set at link time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/genesis/internal/buildconfig.version=v0.3.0 -X github.com/Harshitk-cp/genesis/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "unknown"
)

// Version returns the build version.
func Version() string {
	return version
}

// Commit returns the git commit hash.
func Commit() string {
	return commit
}

// String formats the build as "genesis <version> (<commit>)".
func String() string {
	return fmt.Sprintf("genesis %s (%s)", version, commit)
}
