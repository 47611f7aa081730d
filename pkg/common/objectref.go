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

package common

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ObjectRef addresses one object inside a container (bucket).
type ObjectRef struct {
	Container string `json:"container"`
	Name      string `json:"name"`
}

// String renders the reference as "container/name".
func (r ObjectRef) String() string {
	return r.Container + "/" + r.Name
}

// IsZero reports whether neither part is set.
func (r ObjectRef) IsZero() bool {
	return r.Container == "" && r.Name == ""
}

// Validate checks both parts with ValidateContainer and ValidateObjectName.
func (r ObjectRef) Validate() error {
	if err := ValidateContainer(r.Container); err != nil {
		return err
	}
	return ValidateObjectName(r.Name)
}

// ParseObjectURL splits an object URL into container and object name.
//
// Supported forms:
//
//	https://account.blob.core.windows.net/{container}/{name...}
//	http://127.0.0.1:10000/{account}/{container}/{name...}  (emulator, path-style account)
//	file:///{container}/{name...}
//	s3://{bucket}/{key...}
//	gs://{bucket}/{key...}
func ParseObjectURL(raw string) (ObjectRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ObjectRef{}, fmt.Errorf("%w: %v", ErrInvalidObjectURL, err)
	}

	var container, name string
	switch strings.ToLower(u.Scheme) {
	case "s3", "gs":
		container = u.Host
		name = strings.TrimPrefix(u.Path, "/")
	case "http", "https", "file":
		path := strings.TrimPrefix(u.Path, "/")
		if u.Scheme != "file" && isPathStyleHost(u.Hostname()) {
			// Emulator endpoints carry the account name as the first segment.
			_, path, _ = strings.Cut(path, "/")
		}
		container, name, _ = strings.Cut(path, "/")
	default:
		return ObjectRef{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidObjectURL, u.Scheme)
	}

	if container == "" || name == "" {
		return ObjectRef{}, fmt.Errorf("%w: %q has no container or object name", ErrInvalidObjectURL, raw)
	}
	return ObjectRef{Container: container, Name: name}, nil
}

func isPathStyleHost(host string) bool {
	return host == "localhost" || net.ParseIP(host) != nil
}
