package utils

import (
	"runtime/debug"
	"strings"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Module    string `json:"module"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Version reads the embedded build info. Fields stay empty when the binary
// was built without module support.
func Version() BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return BuildInfo{Version: "unknown"}
	}
	return buildInfoFrom(info)
}

func buildInfoFrom(info *debug.BuildInfo) BuildInfo {
	b := BuildInfo{
		Module:    info.Main.Path,
		Version:   info.Main.Version,
		GoVersion: info.GoVersion,
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	if b.Version == "" {
		b.Version = "(devel)"
	}
	return b
}

// String renders "module version (revision)" with a +dirty suffix for
// modified trees.
func (b BuildInfo) String() string {
	var sb strings.Builder
	sb.WriteString(b.Module)
	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteString(b.Version)
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		sb.WriteString(" (" + rev)
		if b.Modified {
			sb.WriteString("+dirty")
		}
		sb.WriteByte(')')
	}
	return sb.String()
}
