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

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/internal/doevery"
	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

const warnPeriod = 10 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeEnvelope(env *contracts.Envelope) (transmitter.Item, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return transmitter.Item(b), nil
}

// InMemoryChannel batches envelopes on a background worker and delivers
// them through a Sender. Enqueue never blocks and never performs I/O.
type InMemoryChannel struct {
	cfg     Config
	sender  Sender
	logger  *zap.Logger
	tracer  trace.Tracer
	stats   *stats
	limiter *doevery.Limiter
	encode  func(*contracts.Envelope) (transmitter.Item, error)

	queue *queue

	// gate orders producers against the worker leaving Started: Enqueue
	// holds it shared while checking state and pushing, state changes
	// hold it exclusively.
	gate  sync.RWMutex
	state atomic.Int32

	// lifecycle serializes Start, Stop and Terminate.
	lifecycle sync.Mutex

	control  chan *request
	flushReq chan struct{}
	started  chan struct{}
	done     chan struct{}

	// report is written before done is closed.
	report DrainReport
}

// New returns a stopped channel delivering through sender.
func New(sender Sender, cfg Config) (*InMemoryChannel, error) {
	if sender == nil {
		return nil, errors.New("channel: nil sender")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid channel config: %w", err)
	}
	logger := cfg.Logger.Named("channel")
	return &InMemoryChannel{
		cfg:      cfg,
		sender:   sender,
		logger:   logger,
		tracer:   cfg.TracerProvider.Tracer(instrumentationName),
		stats:    newStats(cfg.MeterProvider, logger),
		limiter:  doevery.New(warnPeriod),
		encode:   encodeEnvelope,
		queue:    newQueue(cfg.QueueCapacity),
		control:  make(chan *request),
		flushReq: make(chan struct{}, 1),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Enqueue submits env for delivery.
func (c *InMemoryChannel) Enqueue(env *contracts.Envelope) error {
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
	if !c.queue.enqueue(env) {
		c.stats.queueFull(1)
		c.limiter.Do("queue-full", func(suppressed int) {
			c.logger.Warn("telemetry queue is full, dropping item",
				zap.Int("capacity", c.cfg.QueueCapacity),
				zap.Int("suppressed", suppressed),
			)
		})
		return ErrQueueFull
	}
	c.stats.enqueued(1)
	return nil
}

// Start launches the worker and returns once the channel is Started.
func (c *InMemoryChannel) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if _, err := c.State().next(eventStart); err != nil {
		return err
	}
	go c.supervise(newWorker(c))
	<-c.started
	return nil
}

// supervise restarts the worker loop after a panic until it halts.
func (c *InMemoryChannel) supervise(w *worker) {
	for !w.runSafely() {
		c.stats.restarted()
	}
}

// Stop rejects further items and waits until everything accepted is
// delivered, dropped or abandoned. The drain deadline is the deadline of
// ctx, or DrainTimeout from now when ctx has none. Canceling ctx halts
// the channel at once.
func (c *InMemoryChannel) Stop(ctx context.Context) (DrainReport, error) {
	c.lifecycle.Lock()
	switch st := c.State(); st {
	case Stopped:
		defer c.lifecycle.Unlock()
		return DrainReport{}, c.haltUnstarted(eventStop)
	case Started:
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(c.cfg.DrainTimeout)
		}
		err := c.request(&request{ev: eventStop, deadline: deadline})
		c.lifecycle.Unlock()
		if err != nil {
			return DrainReport{}, err
		}
	case Stopping:
		// Another caller is draining; wait for the same outcome.
		c.lifecycle.Unlock()
	default:
		c.lifecycle.Unlock()
		_, err := st.next(eventStop)
		return DrainReport{}, err
	}

	select {
	case <-c.done:
		return c.report, c.report.Err()
	case <-ctx.Done():
	}

	_ = c.request(&request{ev: eventHalt, timedOut: true})
	<-c.done
	err := c.report.Err()
	if errors.Is(ctx.Err(), context.Canceled) {
		err = multierr.Append(err, ctx.Err())
	}
	return c.report, err
}

// Terminate halts the channel without draining. Everything pending is
// counted as lost.
func (c *InMemoryChannel) Terminate(ctx context.Context) (DrainReport, error) {
	c.lifecycle.Lock()
	switch st := c.State(); st {
	case Stopped:
		defer c.lifecycle.Unlock()
		return DrainReport{}, c.haltUnstarted(eventHalt)
	case Halted:
		c.lifecycle.Unlock()
		_, err := st.next(eventHalt)
		return DrainReport{}, err
	}
	err := c.request(&request{ev: eventHalt})
	c.lifecycle.Unlock()
	if err != nil {
		return DrainReport{}, err
	}

	select {
	case <-c.done:
		return c.report, c.report.Err()
	case <-ctx.Done():
		return DrainReport{}, ctx.Err()
	}
}

// Flush asks the worker to batch and send everything queued. It does not
// wait and is a no-op unless the channel is Started.
func (c *InMemoryChannel) Flush() {
	if c.State() != Started {
		return
	}
	select {
	case c.flushReq <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the channel counters.
func (c *InMemoryChannel) Stats() Stats {
	return c.stats.snapshot()
}

func (c *InMemoryChannel) State() State {
	return State(c.state.Load())
}

func (c *InMemoryChannel) setState(s State) {
	c.gate.Lock()
	c.state.Store(int32(s))
	c.gate.Unlock()
}

// request hands req to the worker and waits for its answer. A worker
// that has already halted rejects every request.
func (c *InMemoryChannel) request(req *request) error {
	req.reply = make(chan error, 1)
	select {
	case c.control <- req:
	case <-c.done:
		_, err := Halted.next(req.ev)
		return err
	}
	select {
	case err := <-req.reply:
		return err
	case <-c.done:
		return nil
	}
}

// haltUnstarted moves a channel that never started straight to Halted.
// There is no worker to do it. Callers hold lifecycle.
func (c *InMemoryChannel) haltUnstarted(ev event) error {
	next, err := Stopped.next(ev)
	if err != nil {
		return err
	}
	c.setState(next)
	close(c.done)
	c.logger.Debug("channel halted before start")
	return nil
}
