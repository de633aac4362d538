/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of slotcast.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/slotcast/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns build information. Revision comes from the VCS stamp when
// the binary was built inside a checkout.
func Get() Info {
	info := Info{Version: Version, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
				if len(info.Revision) > 12 {
					info.Revision = info.Revision[:12]
				}
			}
		}
	}
	return info
}

// String formats Info for the version command.
func (i Info) String() string {
	if i.Revision == "" {
		return fmt.Sprintf("slotcast %s (%s)", i.Version, i.GoVersion)
	}
	return fmt.Sprintf("slotcast %s (%s, %s)", i.Version, i.Revision, i.GoVersion)
}
