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

//go:build gcpstorage

package factory

import (
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/gcs"
)

func init() {
	RegisterStore("gcs", func(settings map[string]string) (common.ObjectStore, error) {
		store := gcs.New()
		if err := store.Configure(settings); err != nil {
			return nil, err
		}
		return store, nil
	})
}
