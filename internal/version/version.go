package version

import "runtime/debug"

// Version is overridden at build time via -ldflags "-X ..."
var Version = ""

// Get returns the build version: ldflags first, then module build info
func Get() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
