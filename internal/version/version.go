// Package version holds the build version, set at link time with
// -ldflags "-X github.com/hashicorp-forge/doccontrol/internal/version.Version=...".
package version

var (
	Version   = "0.0.0-dev"
	GitCommit = ""
)

// Full returns Version with the commit, when known.
func Full() string {
	if GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
