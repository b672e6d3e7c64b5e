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
	"fmt"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
)

// NewChannelPipeline returns a started in-memory channel delivering to
// the configured endpoint.
func NewChannelPipeline(c PipelineConfig) (channel.TelemetryChannel, error) {
	tx, err := c.newTransmitter()
	if err != nil {
		return nil, fmt.Errorf("failed to create transmitter: %w", err)
	}
	ch, err := channel.New(tx, c.channelConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return start(c, ch)
}

// NewSyncPipeline returns a started channel that delivers every envelope
// before Enqueue returns.
func NewSyncPipeline(c PipelineConfig) (channel.TelemetryChannel, error) {
	tx, err := c.newTransmitter()
	if err != nil {
		return nil, fmt.Errorf("failed to create transmitter: %w", err)
	}
	ch, err := channel.NewSync(tx, c.channelConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return start(c, ch)
}

func start(c PipelineConfig, ch channel.TelemetryChannel) (channel.TelemetryChannel, error) {
	sampled, err := newSampler(c, ch)
	if err != nil {
		return nil, err
	}
	if err := ch.Start(); err != nil {
		return nil, fmt.Errorf("failed to start channel: %w", err)
	}
	return sampled, nil
}
