// Package buildinfo reports the version of the running binary.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Commit is set at build time via -ldflags.
var Commit = "unknown"

// Date is set at build time via -ldflags.
var Date = "unknown"

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

// Get returns the -ldflags values, filling unset ones from the VCS stamp the
// go command embeds in module builds.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "" || info.Version == "dev" {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			info.Version = v
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" || info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" || info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	return info
}

// Short returns a compact build identifier for logging.
func Short() string {
	info := Get()
	if info.Version != "" && info.Version != "dev" {
		return info.Version
	}
	if info.Commit != "" && info.Commit != "unknown" {
		c := info.Commit
		if len(c) > 12 {
			c = c[:12]
		}
		if info.Dirty {
			c += "-dirty"
		}
		return c
	}
	return "dev"
}

func (i Info) String() string {
	s := fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Date)
	if i.Dirty {
		s += " dirty"
	}
	return s
}
