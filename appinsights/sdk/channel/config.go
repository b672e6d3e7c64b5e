// Copyright Lightstep Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package channel

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultQueueCapacity     = 8192
	DefaultMaxBatchSize      = 1024
	DefaultMaxBatchBytes     = 3 << 20
	DefaultFlushInterval     = 10 * time.Second
	DefaultMaxRetryAttempts  = 5
	DefaultRetryBaseDelay    = time.Second
	DefaultRetryMaxDelay     = time.Minute
	DefaultRetryJitter       = 0.2
	DefaultMaxPendingRetries = 128
	DefaultMaxInFlight       = 4
	DefaultDrainTimeout      = 10 * time.Second
)

// Config configures an InMemoryChannel. Zero fields take the defaults
// above, except RetryJitter where zero means no jitter. A Config is not
// modified after New returns.
type Config struct {
	// QueueCapacity bounds the submission queue. Enqueue fails with
	// ErrQueueFull beyond it.
	QueueCapacity int

	// MaxBatchSize and MaxBatchBytes bound one batch.
	MaxBatchSize  int
	MaxBatchBytes int

	// FlushInterval is the longest an item waits in the aggregator.
	FlushInterval time.Duration

	// MaxRetryAttempts is the total number of attempts per batch,
	// including the first one.
	MaxRetryAttempts int

	// The n-th retry waits min(RetryBaseDelay*2^(n-1), RetryMaxDelay),
	// stretched by up to RetryJitter of itself and clamped to
	// RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RetryJitter    float64

	// MaxPendingRetries bounds the retry queue. The oldest entry is
	// dropped on overflow.
	MaxPendingRetries int

	// MaxInFlight bounds concurrent transmissions.
	MaxInFlight int

	// DrainTimeout is used by Stop when its context has no deadline.
	DrainTimeout time.Duration

	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{RetryJitter: DefaultRetryJitter}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = DefaultMaxBatchBytes
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.MaxPendingRetries == 0 {
		c.MaxPendingRetries = DefaultMaxPendingRetries
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.MeterProvider == nil {
		c.MeterProvider = otel.GetMeterProvider()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	return c
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var err error
	positive := func(name string, v int64) {
		if v <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("QueueCapacity", int64(c.QueueCapacity))
	positive("MaxBatchSize", int64(c.MaxBatchSize))
	positive("MaxBatchBytes", int64(c.MaxBatchBytes))
	positive("FlushInterval", int64(c.FlushInterval))
	positive("MaxRetryAttempts", int64(c.MaxRetryAttempts))
	positive("RetryBaseDelay", int64(c.RetryBaseDelay))
	positive("RetryMaxDelay", int64(c.RetryMaxDelay))
	positive("MaxPendingRetries", int64(c.MaxPendingRetries))
	positive("MaxInFlight", int64(c.MaxInFlight))
	positive("DrainTimeout", int64(c.DrainTimeout))
	if c.RetryBaseDelay > c.RetryMaxDelay {
		err = multierr.Append(err, errors.New("RetryBaseDelay exceeds RetryMaxDelay"))
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		err = multierr.Append(err, fmt.Errorf("RetryJitter must be within [0, 1], got %v", c.RetryJitter))
	}
	return err
}
