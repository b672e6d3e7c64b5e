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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

// SyncChannel transmits every envelope on the caller's goroutine as a
// batch of one, without retries. It suits tests and short-lived tools
// where blocking on delivery is acceptable.
type SyncChannel struct {
	sender  Sender
	logger  *zap.Logger
	stats   *stats
	timeout time.Duration
	encode  func(*contracts.Envelope) (transmitter.Item, error)

	// gate is held shared by Enqueue for the whole exchange so that Stop
	// waits for transmissions in progress.
	gate      sync.RWMutex
	state     atomic.Int32
	lifecycle sync.Mutex
}

// NewSync returns a stopped SyncChannel. Only Logger, MeterProvider and
// DrainTimeout of cfg are used; DrainTimeout bounds each transmission.
func NewSync(sender Sender, cfg Config) (*SyncChannel, error) {
	if sender == nil {
		return nil, errors.New("channel: nil sender")
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger.Named("sync_channel")
	return &SyncChannel{
		sender:  sender,
		logger:  logger,
		stats:   newStats(cfg.MeterProvider, logger),
		timeout: cfg.DrainTimeout,
		encode:  encodeEnvelope,
	}, nil
}

// Enqueue transmits env and reports a delivery failure as an error
// wrapping ErrTransientTransport or ErrPermanentRejection.
func (c *SyncChannel) Enqueue(env *contracts.Envelope) error {
	if env == nil {
		return ErrNilEnvelope
	}
	c.gate.RLock()
	defer c.gate.RUnlock()

	switch c.State() {
	case Stopped:
		return ErrNotStarted
	case Stopping, Halted:
		return ErrChannelClosed
	}
	c.stats.enqueued(1)

	it, err := c.encode(env)
	if err != nil {
		c.stats.droppedItems(1)
		return fmt.Errorf("%w: encode: %w", ErrPermanentRejection, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	out := c.sender.Transmit(ctx, transmitter.NewBatch([]transmitter.Item{it}))
	switch out.Kind {
	case transmitter.Success:
		c.stats.sent(1, out.Bytes)
		return nil
	case transmitter.Partial:
		if out.Accepted > 0 {
			c.stats.sent(out.Accepted, out.Bytes)
			return nil
		}
		c.stats.droppedBatch(1)
		if out.Retry != nil {
			return transientCause(out)
		}
		if len(out.Rejected) > 0 {
			return fmt.Errorf("%w: status %d: %s", ErrPermanentRejection, out.Rejected[0].StatusCode, out.Rejected[0].Message)
		}
		return permanentCause(out)
	case transmitter.Retryable:
		c.stats.droppedBatch(1)
		return transientCause(out)
	}
	c.stats.droppedBatch(1)
	return permanentCause(out)
}

func (c *SyncChannel) Start() error {
	return c.move(eventStart)
}

// Stop waits for transmissions in progress and halts.
func (c *SyncChannel) Stop(context.Context) (DrainReport, error) {
	return DrainReport{}, c.move(eventStop)
}

// Terminate is Stop: a SyncChannel holds nothing to abandon.
func (c *SyncChannel) Terminate(context.Context) (DrainReport, error) {
	return DrainReport{}, c.move(eventHalt)
}

// Flush is a no-op; nothing is ever buffered.
func (c *SyncChannel) Flush() {}

func (c *SyncChannel) Stats() Stats {
	return c.stats.snapshot()
}

func (c *SyncChannel) State() State {
	return State(c.state.Load())
}

// move applies ev. Stopping is never observable: stop goes straight to
// Halted once in-flight calls have returned.
func (c *SyncChannel) move(ev event) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	next, err := c.State().next(ev)
	if err != nil {
		return err
	}
	if next == Stopping {
		next, _ = next.next(eventHalt)
	}
	c.gate.Lock()
	c.state.Store(int32(next))
	c.gate.Unlock()
	c.logger.Debug("transition", zap.Stringer("event", ev), zap.Stringer("to", next))
	return nil
}
