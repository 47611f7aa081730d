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

// Package objectstore holds decorators that apply to every object-store
// backend.
package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/common"
	"github.com/jeremyhahn/go-objbackup/pkg/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker placed in front of a store.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which the
	// failure counts are cleared.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker.
	FailureThreshold uint32

	Logger adapters.Logger
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerStore wraps a common.ObjectStore with a circuit breaker. Missing
// objects and invalid names are answers from a healthy backend and do not
// count against it.
type BreakerStore struct {
	store  common.ObjectStore
	cb     *gobreaker.CircuitBreaker[any]
	logger adapters.Logger
}

// NewBreakerStore wraps store. Zero fields in cfg take their defaults.
func NewBreakerStore(store common.ObjectStore, cfg BreakerConfig) *BreakerStore {
	defaults := DefaultBreakerConfig(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = "objectstore"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NewNoOpLogger()
	}

	b := &BreakerStore{store: store, logger: cfg.Logger}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn(context.Background(), "Object store circuit breaker changed state",
				adapters.Field{Key: "breaker", Value: name},
				adapters.Field{Key: "from", Value: from.String()},
				adapters.Field{Key: "to", Value: to.String()},
			)
			metrics.RecordBreakerTransition(name, from.String(), to.String(), int(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, common.ErrNotFound) ||
				errors.Is(err, common.ErrInvalidObjectName)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	metrics.SetBreakerState(cfg.Name, int(gobreaker.StateClosed))
	return b
}

// State returns the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

// Exists reports whether ref is present.
func (b *BreakerStore) Exists(ctx context.Context, ref common.ObjectRef) (bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.store.Exists(ctx, ref)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Copy starts a copy from src to dst.
func (b *BreakerStore) Copy(ctx context.Context, src, dst common.ObjectRef) (string, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.store.Copy(ctx, src, dst)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// Delete removes ref.
func (b *BreakerStore) Delete(ctx context.Context, ref common.ObjectRef) (bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.store.Delete(ctx, ref)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Close closes the wrapped store.
func (b *BreakerStore) Close() error {
	return b.store.Close()
}

// IsOpen reports whether err was returned because the breaker rejected the
// call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
