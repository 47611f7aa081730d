// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objbackup.
//
// go-objbackup is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package version reports build information.
package version

import "runtime"

// These are set at build time using:
//
//	go build -ldflags "-X github.com/jeremyhahn/go-objbackup/pkg/version.Version=1.0.0 \
//	  -X github.com/jeremyhahn/go-objbackup/pkg/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/jeremyhahn/go-objbackup/pkg/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "0.1.0-alpha"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the build information printed by `objbackup version`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the application version string.
func Get() string {
	return Version
}

// GetInfo returns the full build information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}
