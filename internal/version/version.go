// Package version reports build information for the positioning tools
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Build-time variables set via -ldflags "-X .../internal/version.Version=..."
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is a snapshot of the build variables plus the runtime platform
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns the build information of the running binary
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// ShortCommit returns the first seven characters of the commit, or "" when
// the commit was not stamped
func (i Info) ShortCommit() string {
	if i.GitCommit == "unknown" || i.GitCommit == "" {
		return ""
	}
	if len(i.GitCommit) > 7 {
		return i.GitCommit[:7]
	}
	return i.GitCommit
}

// Full returns the version with the short commit appended when known
func (i Info) Full() string {
	if c := i.ShortCommit(); c != "" {
		return i.Version + "-" + c
	}
	return i.Version
}

// String renders the multi-line --version output for the named tool
func (i Info) String(tool string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s", tool, i.Full())
	if i.BuildDate != "unknown" {
		fmt.Fprintf(&b, "\nBuilt: %s", i.BuildDate)
	}
	fmt.Fprintf(&b, "\nGo: %s\nPlatform: %s", i.GoVersion, i.Platform)
	return b.String()
}
