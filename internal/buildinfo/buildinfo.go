package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Info describes the running binary.
type Info struct {
	Version   string
	Tags      string
	Revision  string
	GoVersion string
	// Backend is the git strategy compiled in ("native" or "gitcli").
	Backend string
}

// Read collects the build information of the running binary.
func Read(backend string) Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, backend)
}

func fromBuildInfo(info *debug.BuildInfo, backend string) Info {
	out := Info{Version: "dev", Backend: backend}
	if info == nil {
		return out
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		out.Version = v
	}
	out.GoVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "-tags":
			out.Tags = setting.Value
		case "vcs.revision":
			out.Revision = setting.Value
		}
	}
	return out
}

func (i Info) String() string {
	var extra []string
	if i.Backend != "" {
		extra = append(extra, "backend: "+i.Backend)
	}
	if i.Tags != "" {
		extra = append(extra, "tags: "+i.Tags)
	}
	if len(i.Revision) >= 12 {
		extra = append(extra, "rev: "+i.Revision[:12])
	}
	if i.GoVersion != "" {
		extra = append(extra, i.GoVersion)
	}
	if len(extra) == 0 {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(extra, ", "))
}
