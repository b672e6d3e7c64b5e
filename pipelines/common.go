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
	"crypto/tls"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

type PipelineConfig struct {
	Endpoint           string
	InstrumentationKey string
	Headers            map[string]string

	// Compression gzips request bodies.
	Compression bool

	// TLSConfig carries the TLS settings. The default transport is used
	// when nil.
	TLSConfig *tls.Config

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// Channel tunes batching, retries and shutdown. Its Logger defaults
	// to Logger below.
	Channel channel.Config

	// SamplingEnabled turns on envelope sampling. This should be set
	// alongside SamplingPercent. If sampling is disabled, every envelope
	// is sent to the endpoint.
	SamplingEnabled bool

	// SamplingPercent is the percentage of envelopes sent to the
	// endpoint, in the range 0-100. It is only consulted if
	// SamplingEnabled is set to true.
	SamplingPercent int

	Logger *zap.Logger
}

type PipelineSetupFunc func(PipelineConfig) (channel.TelemetryChannel, error)

func (p PipelineConfig) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p PipelineConfig) channelConfig() channel.Config {
	cfg := p.Channel
	if cfg.Logger == nil {
		cfg.Logger = p.logger()
	}
	return cfg
}

func (p PipelineConfig) httpClient() *http.Client {
	if p.TLSConfig == nil {
		return nil
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = p.TLSConfig
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (p PipelineConfig) newTransmitter() (*transmitter.Transmitter, error) {
	return transmitter.New(transmitter.Config{
		Endpoint:           p.Endpoint,
		InstrumentationKey: p.InstrumentationKey,
		Headers:            p.Headers,
		Compression:        p.Compression,
		Timeout:            p.Timeout,
		Client:             p.httpClient(),
		Logger:             p.logger(),
	})
}
