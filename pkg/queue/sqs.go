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

package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
)

// SQS limits a single receive to ten messages and a long poll to 20 seconds.
const (
	sqsMaxMessages = 10
	sqsMaxWait     = 20 * time.Second
)

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConfig configures an Amazon SQS queue consumer.
type SQSConfig struct {
	QueueURL  string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// WaitTime is the long-poll duration, capped at 20 seconds.
	WaitTime time.Duration
}

// SQSQueue consumes change notifications from Amazon SQS.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	waitTime time.Duration
}

// NewSQSQueue builds an SQS client from cfg using the default AWS
// credential chain unless static keys are given.
func NewSQSQueue(ctx context.Context, cfg SQSConfig) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, common.ErrQueueNotSet
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	q := NewSQSQueueWithClient(client, cfg.QueueURL)
	if cfg.WaitTime > 0 {
		q.waitTime = min(cfg.WaitTime, sqsMaxWait)
	}
	return q, nil
}

// NewSQSQueueWithClient wraps an existing client.
func NewSQSQueueWithClient(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL, waitTime: 5 * time.Second}
}

// Receive long-polls for up to maxMessages messages (at most ten).
func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, visibility time.Duration) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(min(maxMessages, sqsMaxMessages)), // #nosec G115 -- bounded by sqsMaxMessages
		VisibilityTimeout:   int32(visibility / time.Second),         // #nosec G115 -- SQS caps at 12h
		WaitTimeSeconds:     int32(q.waitTime / time.Second),         // #nosec G115 -- capped at 20s
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", q.queueURL, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attempts, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		msgs = append(msgs, Message{
			ID:       aws.ToString(m.MessageId),
			Body:     []byte(aws.ToString(m.Body)),
			Receipt:  aws.ToString(m.ReceiptHandle),
			Attempts: attempts,
		})
	}
	return msgs, nil
}

// Delete removes the delivery identified by msg.Receipt.
func (q *SQSQueue) Delete(ctx context.Context, msg Message) error {
	if msg.Receipt == "" {
		return ErrInvalidReceipt
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.Receipt),
	})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", msg.ID, err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections of its own.
func (q *SQSQueue) Close() error {
	return nil
}
