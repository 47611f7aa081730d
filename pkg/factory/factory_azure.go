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

//go:build azureblob

package factory

import (
	"github.com/jeremyhahn/go-objbackup/pkg/azure"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

func init() {
	RegisterStore("azure", func(settings map[string]string) (common.ObjectStore, error) {
		store := azure.New()
		if err := store.Configure(settings); err != nil {
			return nil, err
		}
		return store, nil
	})
}
