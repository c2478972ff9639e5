// Package version reports build information stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

var (
	// GitVersion is the git version of the build. It is set by the linker.
	GitVersion = "unknown"
	// GitCommit is the git commit hash of the build. It is set by the linker.
	GitCommit = "unknown"
	// BuildDate is the RFC3339 build time. It is set by the linker.
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	GitVersion string
	GitCommit  string
	BuildDate  string
	GoVersion  string
	Platform   string
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		GitVersion: GitVersion,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("gitVersion=%s, gitCommit=%s, buildDate=%s, goVersion=%s, platform=%s",
		i.GitVersion, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}
