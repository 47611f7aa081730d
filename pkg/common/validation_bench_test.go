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
	"testing"
)

func BenchmarkValidateObjectName(b *testing.B) {
	names := []string{
		"simple-key",
		"path/to/object",
		"wk12/dy3/docs/deeply/nested/object.txt.3f9c2a",
		"key-with-many-dashes-and-underscores_123",
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := ValidateObjectName(names[i%len(names)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseObjectURL(b *testing.B) {
	raw := "https://acct.blob.core.windows.net/docs/reports/2024/q1.pdf"

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ParseObjectURL(raw); err != nil {
			b.Fatal(err)
		}
	}
}
