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
	"fmt"
	"math/rand/v2"

	farm "github.com/dgryski/go-farm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
)

const (
	instrumentationName = "github.com/lightstep/appinsights-go/pipelines"

	sampledCounterName = "appinsights.sampler.items"
)

var stateSampledOut = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", "sampled_out")))

// sampler forwards a fixed share of envelopes. Envelopes of the same
// operation share one decision so that an operation is kept or dropped
// whole.
type sampler struct {
	channel.TelemetryChannel
	percent uint64
	rate    float64
	random  func() uint64

	sampledOut atomic.Int64
	items      metric.Int64Counter
}

func newSampler(c PipelineConfig, ch channel.TelemetryChannel) (channel.TelemetryChannel, error) {
	if !c.SamplingEnabled {
		return ch, nil
	}
	if c.SamplingPercent < 0 || c.SamplingPercent > 100 {
		return nil, fmt.Errorf("invalid configuration: sampling percent %d out of range 0-100", c.SamplingPercent)
	}
	if c.SamplingPercent == 100 {
		return ch, nil
	}
	mp := c.Channel.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	items, err := mp.Meter(instrumentationName).Int64Counter(sampledCounterName,
		metric.WithDescription("Telemetry items discarded by sampling"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		c.logger().Warn("creating counter", zap.String("name", sampledCounterName), zap.Error(err))
		items = noop.Int64Counter{}
	}
	return &sampler{
		TelemetryChannel: ch,
		percent:          uint64(c.SamplingPercent),
		rate:             float64(c.SamplingPercent),
		random:           rand.Uint64,
		items:            items,
	}, nil
}

// Enqueue drops env without error when it is not sampled. A kept envelope
// records the sampling percentage.
func (s *sampler) Enqueue(env *contracts.Envelope) error {
	if env == nil {
		return s.TelemetryChannel.Enqueue(env)
	}
	if !s.keep(env) {
		s.sampledOut.Inc()
		s.items.Add(context.Background(), 1, stateSampledOut)
		return nil
	}
	rate := s.rate
	env.SampleRate = &rate
	return s.TelemetryChannel.Enqueue(env)
}

func (s *sampler) keep(env *contracts.Envelope) bool {
	var h uint64
	if id := env.Tags[telemetry.OperationID]; id != "" {
		h = farm.Fingerprint64([]byte(id))
	} else {
		h = s.random()
	}
	return h%100 < s.percent
}

// Stats reports the wrapped channel's counters plus the envelopes
// discarded here.
func (s *sampler) Stats() channel.Stats {
	st := s.TelemetryChannel.Stats()
	st.ItemsSampledOut = s.sampledOut.Load()
	return st
}
