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

//go:build nats

package factory

import (
	"context"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
)

func init() {
	RegisterQueue("nats", func(settings map[string]string, logger adapters.Logger) (queue.Queue, error) {
		ackWait, err := parseDuration(settings, "ackWait")
		if err != nil {
			return nil, err
		}
		fetchWait, err := parseDuration(settings, "fetchWait")
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return queue.NewJetStreamQueue(ctx, queue.JetStreamConfig{
			URL:       settings["url"],
			Stream:    settings["stream"],
			Subject:   settings["subject"],
			Consumer:  settings["consumer"],
			AckWait:   ackWait,
			FetchWait: fetchWait,
			Logger:    logger,
		})
	})
}
