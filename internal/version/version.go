// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package version reports build information of the running binary.
package version

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Info describes a build.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	BuiltAt  string `json:"built_at,omitempty"`
	Modified bool   `json:"modified,omitempty"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// String formats i for the -version flag.
func (i Info) String() string {
	s := fmt.Sprintf("%s %s (%s, %s)\n", i.Name, i.Version, i.Go, i.Platform)
	if i.Commit != "" {
		commit := i.Commit
		if i.Modified {
			commit += "+dirty"
		}
		s += fmt.Sprintf("commit %s, built at %s\n", commit, i.BuiltAt)
	}
	return s
}

var version = sync.OnceValue(func() Info { return loadInfo(debug.ReadBuildInfo) })

// Version returns the build information of the running binary.
func Version() Info { return version() }

// CmdName returns the base name of the running binary.
func CmdName() string { return Version().Name }

// UserAgent identifies herald in outgoing HTTP requests.
func UserAgent() string { return userAgent(Version()) }

func userAgent(i Info) string {
	v := i.Version
	if v == "devel" && i.Commit != "" {
		v = i.Commit
	}
	return i.Name + "/" + v + " (+https://astrophena.name/bleep-bloop)"
}

func loadInfo(read func() (*debug.BuildInfo, bool)) Info {
	i := Info{
		Name:     "herald",
		Version:  "devel",
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if exe, err := os.Executable(); err == nil {
		i.Name = strings.TrimSuffix(filepath.Base(exe), ".test")
	}

	bi, ok := read()
	if !ok {
		return i
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		i.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
		case "vcs.time":
			i.BuiltAt = s.Value
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	return i
}
