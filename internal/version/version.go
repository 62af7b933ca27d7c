// Package version exposes build metadata. The variables are set with
// -ldflags "-X"; unset ones fall back to the VCS stamp Go embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev" // ex: v0.1.0
	Commit    = ""    // ex: abcd123
	BuildDate = ""    // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		fillDefaults(nil)
		return
	}
	fillDefaults(info.Settings)
}

func fillDefaults(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "" && len(s.Value) >= 7 {
				Commit = s.Value[:7]
			}
		case "vcs.time":
			if BuildDate == "" {
				BuildDate = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" && Version == "dev" {
				Version = "dev-dirty"
			}
		}
	}
	if Commit == "" {
		Commit = "none"
	}
	if BuildDate == "" {
		BuildDate = "unknown"
	}
}

// String renders the build line printed by the CLI and logged at startup.
func String() string {
	return fmt.Sprintf("hometab %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
