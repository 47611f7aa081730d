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

package factory

import (
	"fmt"
	"regexp"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
)

func init() {
	RegisterQueue("memory", func(settings map[string]string, logger adapters.Logger) (queue.Queue, error) {
		return queue.NewMemoryQueue(), nil
	})

	// Settings:
	//   - path: root of the local object store (required)
	//   - excludeContainers: regular expression of containers to ignore
	//   - debounce: duration, e.g. "250ms"
	RegisterQueue("watch", func(settings map[string]string, logger adapters.Logger) (queue.Queue, error) {
		cfg := queue.WatchConfig{Root: settings["path"], Logger: logger}

		if pattern := settings["excludeContainers"]; pattern != "" {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("excludeContainers: %w", err)
			}
			cfg.SkipContainer = re.MatchString
		}
		debounce, err := parseDuration(settings, "debounce")
		if err != nil {
			return nil, err
		}
		cfg.DebounceDelay = debounce

		return queue.NewWatchQueue(cfg)
	})
}

// parseDuration reads an optional duration setting.
func parseDuration(settings map[string]string, key string) (time.Duration, error) {
	raw := settings[key]
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
