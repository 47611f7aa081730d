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
	"unicode/utf8"
)

const (
	// MaxObjectNameLength is the maximum allowed length for object names.
	MaxObjectNameLength = 1024

	// MaxContainerLength is the maximum allowed length for container names.
	MaxContainerLength = 255
)

func invalidName(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidObjectName, field, msg)
}

// ValidateContainer rejects empty container names and names that would
// escape a filesystem root.
func ValidateContainer(container string) error {
	switch {
	case container == "":
		return invalidName("container", "cannot be empty")
	case len(container) > MaxContainerLength:
		return invalidName("container", fmt.Sprintf("exceeds maximum of %d bytes", MaxContainerLength))
	case container == "." || container == "..":
		return invalidName("container", "cannot be a relative path element")
	}
	for i := 0; i < len(container); i++ {
		switch container[i] {
		case '/', '\\':
			return invalidName("container", "cannot contain path separators")
		case 0, '\n', '\r', '\t':
			return invalidName("container", "cannot contain control characters")
		}
	}
	return nil
}

// ValidateObjectName validates an object name for use as a key or a path
// below a container directory. Names may contain forward slashes but may
// not traverse upwards, be absolute, or contain control characters.
func ValidateObjectName(name string) error {
	n := len(name)
	if n == 0 {
		return invalidName("name", "cannot be empty")
	}
	if n > MaxObjectNameLength {
		return invalidName("name", fmt.Sprintf("exceeds maximum of %d bytes", MaxObjectNameLength))
	}
	if name[0] == '/' || name[0] == '\\' || (n >= 2 && name[1] == ':') {
		return invalidName("name", "cannot be an absolute path")
	}

	// Walk segments once, splitting on either separator.
	start := 0
	for i := 0; i <= n; i++ {
		if i < n {
			c := name[i]
			if c == 0 || c == '\n' || c == '\r' || c == '\t' {
				return invalidName("name", "cannot contain control characters")
			}
			if c != '/' && c != '\\' {
				continue
			}
		}
		if name[start:i] == ".." {
			return invalidName("name", "cannot contain path traversal sequences (..)")
		}
		start = i + 1
	}

	if !utf8.ValidString(name) {
		return invalidName("name", "must be valid UTF-8")
	}
	return nil
}
