// Package version exposes the application version derived from build
// metadata.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev"
// fallback.
package version

import "runtime/debug"

// AppName is the application name used in version strings and the agent
// card.
const AppName = "agentmesh"

// versionOverride is set via -ldflags at build time for container builds
// where .git is unavailable. Empty string means no override.
var versionOverride string

// Version is the short git commit hash (8 chars) from build info, or
// "dev" when build info is unavailable (go test, non-git builds).
var Version = initVersion()

func initVersion() string {
	if versionOverride != "" {
		return shorten(versionOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "agentmesh/<version>" for user-agent strings and logging.
func Full() string {
	return AppName + "/" + Version
}
