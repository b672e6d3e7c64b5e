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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	instrumentationName = "github.com/lightstep/appinsights-go/appinsights/sdk/channel"

	itemsCounterName   = "appinsights.channel.items"
	batchesCounterName = "appinsights.channel.batches"
	bytesCounterName   = "appinsights.channel.bytes"
)

// Stats is a snapshot of a channel's counters.
type Stats struct {
	ItemsEnqueued    int64
	ItemsQueueFull   int64
	ItemsSent        int64
	ItemsDropped     int64
	ItemsLost        int64
	BatchesSent      int64
	BatchesRetried   int64
	BatchesDropped   int64
	BytesTransmitted int64
	WorkerRestarts   int64

	// ItemsSampledOut counts envelopes discarded by a sampling wrapper
	// before they reached the channel. Channels leave it zero.
	ItemsSampledOut int64
}

var (
	stateEnqueued  = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "enqueued")))
	stateQueueFull = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "queue_full")))
	stateSent      = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "sent")))
	stateDropped   = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "dropped")))
	stateLost      = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "lost")))
	stateRetried   = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "retried")))
)

// stats keeps the counters behind Stats and mirrors them to OpenTelemetry.
type stats struct {
	itemsEnqueued    atomic.Int64
	itemsQueueFull   atomic.Int64
	itemsSent        atomic.Int64
	itemsDropped     atomic.Int64
	itemsLost        atomic.Int64
	batchesSent      atomic.Int64
	batchesRetried   atomic.Int64
	batchesDropped   atomic.Int64
	bytesTransmitted atomic.Int64
	workerRestarts   atomic.Int64

	items   metric.Int64Counter
	batches metric.Int64Counter
	bytes   metric.Int64Counter
}

func newStats(mp metric.MeterProvider, logger *zap.Logger) *stats {
	meter := mp.Meter(instrumentationName)
	s := &stats{}
	var err error
	if s.items, err = meter.Int64Counter(itemsCounterName,
		metric.WithDescription("Telemetry items by outcome"),
		metric.WithUnit("{item}"),
	); err != nil {
		logger.Warn("creating counter", zap.String("name", itemsCounterName), zap.Error(err))
		s.items = noop.Int64Counter{}
	}
	if s.batches, err = meter.Int64Counter(batchesCounterName,
		metric.WithDescription("Batches by outcome"),
		metric.WithUnit("{batch}"),
	); err != nil {
		logger.Warn("creating counter", zap.String("name", batchesCounterName), zap.Error(err))
		s.batches = noop.Int64Counter{}
	}
	if s.bytes, err = meter.Int64Counter(bytesCounterName,
		metric.WithDescription("Request body bytes of delivered batches"),
		metric.WithUnit("By"),
	); err != nil {
		logger.Warn("creating counter", zap.String("name", bytesCounterName), zap.Error(err))
		s.bytes = noop.Int64Counter{}
	}
	return s
}

func (s *stats) enqueued(n int) {
	s.itemsEnqueued.Add(int64(n))
	s.items.Add(context.Background(), int64(n), stateEnqueued)
}

func (s *stats) queueFull(n int) {
	s.itemsQueueFull.Add(int64(n))
	s.items.Add(context.Background(), int64(n), stateQueueFull)
}

func (s *stats) sent(items, bytes int) {
	s.itemsSent.Add(int64(items))
	s.batchesSent.Inc()
	s.bytesTransmitted.Add(int64(bytes))
	ctx := context.Background()
	s.items.Add(ctx, int64(items), stateSent)
	s.batches.Add(ctx, 1, stateSent)
	s.bytes.Add(ctx, int64(bytes))
}

// droppedItems counts individually rejected items.
func (s *stats) droppedItems(n int) {
	if n == 0 {
		return
	}
	s.itemsDropped.Add(int64(n))
	s.items.Add(context.Background(), int64(n), stateDropped)
}

func (s *stats) droppedBatch(items int) {
	s.droppedItems(items)
	s.batchesDropped.Inc()
	s.batches.Add(context.Background(), 1, stateDropped)
}

func (s *stats) retried() {
	s.batchesRetried.Inc()
	s.batches.Add(context.Background(), 1, stateRetried)
}

func (s *stats) lost(n int) {
	if n == 0 {
		return
	}
	s.itemsLost.Add(int64(n))
	s.items.Add(context.Background(), int64(n), stateLost)
}

func (s *stats) restarted() {
	s.workerRestarts.Inc()
}

func (s *stats) snapshot() Stats {
	return Stats{
		ItemsEnqueued:    s.itemsEnqueued.Load(),
		ItemsQueueFull:   s.itemsQueueFull.Load(),
		ItemsSent:        s.itemsSent.Load(),
		ItemsDropped:     s.itemsDropped.Load(),
		ItemsLost:        s.itemsLost.Load(),
		BatchesSent:      s.batchesSent.Load(),
		BatchesRetried:   s.batchesRetried.Load(),
		BatchesDropped:   s.batchesDropped.Load(),
		BytesTransmitted: s.bytesTransmitted.Load(),
		WorkerRestarts:   s.workerRestarts.Load(),
	}
}
