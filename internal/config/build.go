package config

import "runtime/debug"

// Set with -ldflags "-X placement/internal/config.version=...". Unset values
// fall back to the VCS stamp the go command embeds.
var (
	version   = "dev"
	commit    = ""
	buildTime = ""
)

// NewBuildInfo reports the linker values, completed from the embedded VCS
// settings when the linker left them empty.
func NewBuildInfo() BuildInfo {
	var settings []debug.BuildSetting
	if info, ok := debug.ReadBuildInfo(); ok {
		settings = info.Settings
	}
	return buildInfoFrom(settings)
}

func buildInfoFrom(settings []debug.BuildSetting) BuildInfo {
	b := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value[:min(12, len(s.Value))]
			}
		case "vcs.time":
			if b.BuildTime == "" {
				b.BuildTime = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && commit == "" && b.Commit != "" {
		b.Commit += "-dirty"
	}
	if b.Commit == "" {
		b.Commit = "none"
	}
	if b.BuildTime == "" {
		b.BuildTime = "unknown"
	}
	return b
}
