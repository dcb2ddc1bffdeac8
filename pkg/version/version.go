// Package version reports the build of nodesim binaries.
package version

// Set via -ldflags "-X github.com/carverauto/nodesim/pkg/version.version=..."
//
//nolint:gochecknoglobals // ldflags injection
var (
	version = "dev"
	buildID = "dev"
)

// GetVersion returns the release version.
func GetVersion() string {
	return version
}

// GetFullVersion returns version with build ID
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}

// UserAgent is the User-Agent header HTTP clients send for a component.
func UserAgent(component string) string {
	return "nodesim-" + component + "/" + version
}
