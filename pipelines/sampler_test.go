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

package pipelines

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
)

type collectingChannel struct {
	channel.TelemetryChannel

	mu   sync.Mutex
	envs []*contracts.Envelope
}

func (c *collectingChannel) Enqueue(env *contracts.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
	return nil
}

func (c *collectingChannel) Stats() channel.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channel.Stats{ItemsEnqueued: int64(len(c.envs))}
}

func (c *collectingChannel) Stop(context.Context) (channel.DrainReport, error) {
	return channel.DrainReport{}, nil
}

func withOperation(id string) *contracts.Envelope {
	ev := telemetry.NewEvent("op")
	ev.Tags[telemetry.OperationID] = id
	return ev.ToEnvelope(nil)
}

func TestSampler(t *testing.T) {
	t.Run("Should pass through when disabled", func(t *testing.T) {
		inner := &collectingChannel{}
		ch, err := newSampler(PipelineConfig{SamplingPercent: 0}, inner)
		require.NoError(t, err)
		assert.Same(t, inner, ch)
	})

	t.Run("Should pass through when configured with 100%", func(t *testing.T) {
		inner := &collectingChannel{}
		ch, err := newSampler(PipelineConfig{SamplingEnabled: true, SamplingPercent: 100}, inner)
		require.NoError(t, err)
		assert.Same(t, inner, ch)
	})

	t.Run("Should reject out of range percentages", func(t *testing.T) {
		_, err := newSampler(PipelineConfig{SamplingEnabled: true, SamplingPercent: 101}, &collectingChannel{})
		assert.Error(t, err)
		_, err = newSampler(PipelineConfig{SamplingEnabled: true, SamplingPercent: -1}, &collectingChannel{})
		assert.Error(t, err)
	})

	t.Run("Should never sample when configured with 0%", func(t *testing.T) {
		inner := &collectingChannel{}
		ch, err := newSampler(PipelineConfig{SamplingEnabled: true, SamplingPercent: 0}, inner)
		require.NoError(t, err)
		for range 50 {
			require.NoError(t, ch.Enqueue(withOperation("x")))
			require.NoError(t, ch.Enqueue(telemetry.NewEvent("no-op").ToEnvelope(nil)))
		}
		assert.Empty(t, inner.envs)
	})

	t.Run("Should keep an operation whole", func(t *testing.T) {
		inner := &collectingChannel{}
		ch, err := newSampler(PipelineConfig{SamplingEnabled: true, SamplingPercent: 50}, inner)
		require.NoError(t, err)

		for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
			for range 3 {
				require.NoError(t, ch.Enqueue(withOperation(id)))
			}
		}
		counts := map[string]int{}
		for _, env := range inner.envs {
			counts[env.Tags[telemetry.OperationID]]++
			require.NotNil(t, env.SampleRate)
			assert.Equal(t, 50.0, *env.SampleRate)
		}
		for id, n := range counts {
			assert.Equal(t, 3, n, "operation %s", id)
		}
	})

	t.Run("Should sample by random draw without an operation", func(t *testing.T) {
		inner := &collectingChannel{}
		ch, err := newSampler(PipelineConfig{SamplingEnabled: true, SamplingPercent: 75}, inner)
		require.NoError(t, err)
		draws := []uint64{10, 74, 75, 199}
		ch.(*sampler).random = func() uint64 {
			d := draws[0]
			draws = draws[1:]
			return d
		}
		for range 4 {
			require.NoError(t, ch.Enqueue(telemetry.NewEvent("no-op").ToEnvelope(nil)))
		}
		assert.Len(t, inner.envs, 2)
	})

	t.Run("Should count envelopes discarded by sampling", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		inner := &collectingChannel{}
		ch, err := newSampler(PipelineConfig{
			SamplingEnabled: true,
			SamplingPercent: 0,
			Channel:         channel.Config{MeterProvider: mp},
		}, inner)
		require.NoError(t, err)
		for range 5 {
			require.NoError(t, ch.Enqueue(telemetry.NewEvent("no-op").ToEnvelope(nil)))
		}

		st := ch.Stats()
		assert.EqualValues(t, 5, st.ItemsSampledOut)
		assert.Zero(t, st.ItemsEnqueued)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))
		var sampled int64
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.Name != sampledCounterName {
					continue
				}
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					state, _ := dp.Attributes.Value(attribute.Key("state"))
					assert.Equal(t, "sampled_out", state.AsString())
					sampled += dp.Value
				}
			}
		}
		assert.EqualValues(t, 5, sampled)
	})
}
