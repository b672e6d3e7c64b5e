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
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

const transmitSpanName = "appinsights_transmit"

// dispatch is a batch on its way to the sender. attempts counts the
// attempts made before this one.
type dispatch struct {
	id       uint64
	batch    *transmitter.Batch
	attempts int
}

type result struct {
	d   dispatch
	out transmitter.Outcome
}

// request is a lifecycle command sent to the worker.
type request struct {
	ev       event
	deadline time.Time
	timedOut bool
	reply    chan error
}

// worker owns the aggregator, the retry scheduler, the dispatch backlog
// and every state change after Start. All of its fields are only touched
// from the worker goroutine, except those read by transmit.
type worker struct {
	c      *InMemoryChannel
	cfg    Config
	logger *zap.Logger

	agg      *aggregator
	retries  *retryScheduler
	policy   backoffPolicy
	backlog  []dispatch
	inflight map[uint64]dispatch
	sem      *semaphore.Weighted
	results  chan result
	nextID   uint64

	flushTimer *time.Timer
	retryTimer *time.Timer
	drainTimer *time.Timer
	drainC     <-chan time.Time

	// txCtx is canceled at halt to abandon in-flight transmissions.
	txCtx    context.Context
	txCancel context.CancelFunc

	pending *request
	report  DrainReport
	running bool
}

func newWorker(c *InMemoryChannel) *worker {
	w := &worker{
		c:        c,
		cfg:      c.cfg,
		logger:   c.logger,
		retries:  newRetryScheduler(c.cfg.MaxPendingRetries),
		policy:   newBackoffPolicy(c.cfg),
		inflight: make(map[uint64]dispatch),
		sem:      semaphore.NewWeighted(int64(c.cfg.MaxInFlight)),
		results:  make(chan result, c.cfg.MaxInFlight),
	}
	w.agg = newAggregator(c.cfg.MaxBatchSize, c.cfg.MaxBatchBytes, w.enqueueBatch)
	w.flushTimer = time.NewTimer(c.cfg.FlushInterval)
	w.flushTimer.Stop()
	w.retryTimer = time.NewTimer(c.cfg.RetryMaxDelay)
	w.retryTimer.Stop()
	w.txCtx, w.txCancel = context.WithCancel(context.Background())
	return w
}

// runSafely runs the loop and recovers a panic. It reports whether the
// channel halted; false means the loop must be restarted.
func (w *worker) runSafely() (halted bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("telemetry worker panicked, restarting",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			halted = false
		}
	}()
	return w.run()
}

func (w *worker) run() bool {
	if !w.running {
		w.running = true
		_ = w.transition(eventStart)
		w.flushTimer.Reset(w.cfg.FlushInterval)
		close(w.c.started)
	}
	if req := w.pending; req != nil {
		if w.handle(req) {
			return true
		}
	}
	if w.step() {
		return true
	}
	for {
		select {
		case <-w.c.queue.notify:
		case <-w.flushTimer.C:
			w.flush("timer")
		case <-w.retryTimer.C:
			w.promoteDue(time.Now())
		case r := <-w.results:
			w.onResult(r)
		case <-w.c.flushReq:
			w.flush("requested")
		case req := <-w.c.control:
			w.pending = req
			if w.handle(req) {
				return true
			}
		case <-w.drainC:
			w.halt(true)
			return true
		}
		if w.step() {
			return true
		}
	}
}

// step runs after every wakeup: pull what the backlog has room for,
// start transmissions and check whether a drain has completed.
func (w *worker) step() (halted bool) {
	w.pull()
	stopping := w.c.State() == Stopping
	if stopping && w.c.queue.len() == 0 {
		w.agg.cut()
	}
	w.promoteDue(time.Now())
	w.launch()
	w.armRetryTimer()
	if stopping && w.drained() {
		w.halt(false)
		return true
	}
	return false
}

// pull moves items from the submission queue into the aggregator while
// the backlog has room. A full backlog leaves items queued, which is
// what producers eventually observe as ErrQueueFull.
func (w *worker) pull() {
	for len(w.backlog) < w.cfg.MaxInFlight {
		n := 0
		for env := range w.c.queue.dequeueBatch(w.cfg.MaxBatchSize) {
			n++
			w.accept(env)
			if len(w.backlog) >= w.cfg.MaxInFlight {
				break
			}
		}
		if n == 0 {
			return
		}
	}
}

func (w *worker) accept(env *contracts.Envelope) {
	it, err := w.c.encode(env)
	if err != nil {
		w.c.stats.droppedItems(1)
		w.noteDropped(1, fmt.Errorf("%w: encode: %w", ErrPermanentRejection, err))
		w.c.limiter.Do("encode", func(suppressed int) {
			w.logger.Warn("dropping envelope that cannot be encoded",
				zap.String("name", env.Name),
				zap.Int("suppressed", suppressed),
				zap.Error(err),
			)
		})
		return
	}
	if w.agg.add(it) && w.c.State() == Started {
		w.flushTimer.Reset(w.cfg.FlushInterval)
	}
}

func (w *worker) enqueueBatch(b *transmitter.Batch) {
	w.backlog = append(w.backlog, dispatch{batch: b})
}

// flush is the Started self-transition: everything available is cut
// into a batch and the timer restarts.
func (w *worker) flush(reason string) {
	if w.transition(eventFlush) != nil || w.c.State() != Started {
		return
	}
	w.pull()
	cut := w.agg.cut()
	w.flushTimer.Reset(w.cfg.FlushInterval)
	w.logger.Debug("flush",
		zap.String("reason", reason),
		zap.Bool("cut", cut),
		zap.Int("backlog", len(w.backlog)),
		zap.Int("in_flight", len(w.inflight)),
		zap.Int("retries", w.retries.len()),
	)
}

func (w *worker) handle(req *request) (halted bool) {
	switch req.ev {
	case eventStop:
		err := w.transition(eventStop)
		if err == nil {
			w.flushTimer.Stop()
			w.drainTimer = time.NewTimer(time.Until(req.deadline))
			w.drainC = w.drainTimer.C
			w.logger.Debug("draining", zap.Time("deadline", req.deadline))
		}
		w.answer(req, err)
		return false
	case eventHalt:
		w.answer(req, nil)
		w.halt(req.timedOut)
		return true
	}
	w.answer(req, fmt.Errorf("%w: unsupported request %s", ErrIllegalTransition, req.ev))
	return false
}

func (w *worker) answer(req *request, err error) {
	w.pending = nil
	req.reply <- err
}

func (w *worker) transition(ev event) error {
	from := w.c.State()
	to, err := from.next(ev)
	if err != nil {
		w.logger.Debug("rejected transition", zap.Error(err))
		return err
	}
	if to != from {
		w.c.setState(to)
	}
	w.logger.Debug("transition",
		zap.Stringer("event", ev),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	return nil
}

func (w *worker) promoteDue(now time.Time) {
	for e := w.retries.popDue(now); e != nil; e = w.retries.popDue(now) {
		w.logger.Debug("retrying batch",
			zap.Int("items", e.batch.Len()),
			zap.Int("attempt", e.attempts+1),
		)
		w.backlog = append(w.backlog, dispatch{batch: e.batch, attempts: e.attempts})
	}
}

func (w *worker) armRetryTimer() {
	due, ok := w.retries.next()
	if !ok {
		w.retryTimer.Stop()
		return
	}
	w.retryTimer.Reset(max(time.Until(due), 0))
}

// launch starts transmissions from the backlog while in-flight slots are
// free.
func (w *worker) launch() {
	for len(w.backlog) > 0 && w.sem.TryAcquire(1) {
		d := w.backlog[0]
		w.backlog[0] = dispatch{}
		w.backlog = w.backlog[1:]
		w.nextID++
		d.id = w.nextID
		w.inflight[d.id] = d
		go w.transmit(d)
	}
}

// transmit runs on its own goroutine. The results channel has room for
// every in-flight transmission, so the send never blocks.
func (w *worker) transmit(d dispatch) {
	ctx, span := w.c.tracer.Start(w.txCtx, transmitSpanName, trace.WithAttributes(
		attribute.Int("items", d.batch.Len()),
		attribute.Int("bytes", d.batch.Bytes),
		attribute.Int("attempt", d.attempts+1),
	))
	out := w.send(ctx, d.batch)
	span.SetAttributes(
		attribute.String("outcome", out.Kind.String()),
		attribute.Int("status_code", out.StatusCode),
	)
	switch out.Kind {
	case transmitter.Success, transmitter.Partial:
		span.SetStatus(codes.Ok, out.Kind.String())
	default:
		if out.Err != nil {
			span.RecordError(out.Err)
		}
		span.SetStatus(codes.Error, out.Kind.String())
	}
	span.End()
	w.results <- result{d: d, out: out}
}

func (w *worker) send(ctx context.Context, b *transmitter.Batch) (out transmitter.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = transmitter.Outcome{Kind: transmitter.Permanent, Err: fmt.Errorf("sender panicked: %v", r)}
		}
	}()
	return w.c.sender.Transmit(ctx, b)
}

func (w *worker) onResult(r result) {
	if _, ok := w.inflight[r.d.id]; !ok {
		return
	}
	delete(w.inflight, r.d.id)
	w.sem.Release(1)

	attempts := r.d.attempts + 1
	out := r.out
	switch out.Kind {
	case transmitter.Success:
		w.delivered(r.d.batch.Len(), out.Bytes)
	case transmitter.Partial:
		w.delivered(out.Accepted, out.Bytes)
		if n := len(out.Rejected); n > 0 {
			err := fmt.Errorf("%w: %d items, first status %d: %s",
				ErrPermanentRejection, n, out.Rejected[0].StatusCode, out.Rejected[0].Message)
			w.c.stats.droppedItems(n)
			w.noteDropped(n, err)
			w.warnDrop(n, err)
		}
		if out.Retry != nil {
			w.retry(out.Retry, attempts, out.RetryAfter, transientCause(out))
		}
	case transmitter.Retryable:
		b := out.Retry
		if b == nil {
			b = r.d.batch
		}
		w.retry(b, attempts, out.RetryAfter, transientCause(out))
	default:
		w.drop(r.d.batch, permanentCause(out))
	}
}

func permanentCause(out transmitter.Outcome) error {
	if out.Err != nil {
		return fmt.Errorf("%w: status %d: %w", ErrPermanentRejection, out.StatusCode, out.Err)
	}
	return fmt.Errorf("%w: status %d", ErrPermanentRejection, out.StatusCode)
}

func transientCause(out transmitter.Outcome) error {
	if out.Err != nil {
		return fmt.Errorf("%w: %w", ErrTransientTransport, out.Err)
	}
	return fmt.Errorf("%w: status %d", ErrTransientTransport, out.StatusCode)
}

// retry schedules b after its attempts-th failed attempt, or drops it
// when no attempts are left.
func (w *worker) retry(b *transmitter.Batch, attempts int, retryAfter time.Time, cause error) {
	if attempts >= w.cfg.MaxRetryAttempts {
		w.drop(b, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, cause))
		return
	}
	due := time.Now().Add(w.policy.delay(attempts))
	if retryAfter.After(due) {
		due = retryAfter
	}
	w.c.stats.retried()
	w.logger.Debug("scheduling retry",
		zap.Int("items", b.Len()),
		zap.Int("attempts", attempts),
		zap.Time("due", due),
		zap.Error(cause),
	)
	if evicted := w.retries.schedule(b, attempts, due); evicted != nil {
		w.drop(evicted.batch, fmt.Errorf("%w: evicted from full retry queue after %d attempts", ErrRetryExhausted, evicted.attempts))
	}
}

func (w *worker) drop(b *transmitter.Batch, err error) {
	w.c.stats.droppedBatch(b.Len())
	w.noteDropped(b.Len(), err)
	w.warnDrop(b.Len(), err)
}

func (w *worker) warnDrop(items int, err error) {
	w.c.limiter.Do("drop", func(suppressed int) {
		w.logger.Warn("dropping telemetry",
			zap.Int("items", items),
			zap.Int("suppressed", suppressed),
			zap.Error(err),
		)
	})
}

func (w *worker) delivered(items, bytes int) {
	if items == 0 {
		return
	}
	w.c.stats.sent(items, bytes)
	if w.c.State() == Stopping {
		w.report.Delivered += int64(items)
	}
}

func (w *worker) noteDropped(items int, err error) {
	if w.c.State() != Stopping {
		return
	}
	w.report.Dropped += int64(items)
	w.report.addCause(err)
}

func (w *worker) drained() bool {
	return w.c.queue.len() == 0 &&
		w.agg.len() == 0 &&
		len(w.backlog) == 0 &&
		len(w.inflight) == 0 &&
		w.retries.len() == 0
}

// halt moves to Halted, abandons everything still pending and releases
// Stop and Terminate callers.
func (w *worker) halt(timedOut bool) {
	_ = w.transition(eventHalt)
	w.txCancel()
	w.flushTimer.Stop()
	w.retryTimer.Stop()
	if w.drainTimer != nil {
		w.drainTimer.Stop()
	}

	lost := 0
	for range w.c.queue.dequeueBatch(math.MaxInt) {
		lost++
	}
	lost += w.agg.discard()
	for _, d := range w.backlog {
		lost += d.batch.Len()
	}
	w.backlog = nil
	lost += w.retries.discard()
	for _, d := range w.inflight {
		lost += d.batch.Len()
	}
	clear(w.inflight)

	w.c.stats.lost(lost)
	w.report.Lost = int64(lost)
	w.report.TimedOut = timedOut
	if lost > 0 {
		w.logger.Warn("channel halted with pending telemetry",
			zap.Int("lost", lost),
			zap.Bool("timed_out", timedOut),
		)
	}
	w.c.report = w.report
	close(w.c.done)
}
