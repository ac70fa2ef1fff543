package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info holds version information
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version information
func Get() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a one-line version string.
func (i Info) String() string {
	return fmt.Sprintf("dbal version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// Pairs returns the fields as ordered key/value pairs for display.
func (i Info) Pairs() [][2]string {
	return [][2]string{
		{"Version", i.Version},
		{"Build Date", i.BuildDate},
		{"Git Commit", i.GitCommit},
		{"Platform", i.Platform},
		{"Go Version", i.GoVersion},
	}
}
