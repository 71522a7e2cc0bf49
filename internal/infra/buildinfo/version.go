package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info contains build information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`

	// SaveSchema is the save database schema version this build writes.
	SaveSchema int `json:"save_schema" yaml:"save_schema"`
}

// Get returns the build information. schema is the save database schema
// version.
func Get(schema int) Info {
	info := Info{
		Version:    Version,
		Commit:     Commit,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		SaveSchema: schema,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = s.Value
			}
		}
	}
	return info
}

// String returns a one-line version string.
func (i Info) String() string {
	return "storyline " + i.Version + " (" + i.Commit + ") built at " + i.BuildTime + " with " + i.GoVersion
}
