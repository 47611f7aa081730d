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

//go:build awssqs

package factory

import (
	"context"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/queue"
)

func init() {
	RegisterQueue("sqs", func(settings map[string]string, logger adapters.Logger) (queue.Queue, error) {
		waitTime, err := parseDuration(settings, "waitTime")
		if err != nil {
			return nil, err
		}
		return queue.NewSQSQueue(context.Background(), queue.SQSConfig{
			QueueURL:  settings["queueUrl"],
			Region:    settings["region"],
			Endpoint:  settings["endpoint"],
			AccessKey: settings["accessKey"],
			SecretKey: settings["secretKey"],
			WaitTime:  waitTime,
		})
	})
}
