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

// Package client is the application facing entry point: it turns
// telemetry records into envelopes under a shared context and submits
// them to a channel.
package client // import "github.com/lightstep/appinsights-go/appinsights/sdk/client"

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/internal/doevery"
	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
)

// Version is reported in the internal SDK version tag.
const Version = "0.4.0"

const sdkVersionPrefix = "go:"

// TelemetryClient submits telemetry records to a channel.
type TelemetryClient struct {
	channel channel.TelemetryChannel
	context *telemetry.Context
	enabled *atomic.Bool
	logger  *zap.Logger
	limiter *doevery.Limiter
}

// Option configures a TelemetryClient.
type Option func(*TelemetryClient)

// WithLogger sets the logger used to report failed submissions.
func WithLogger(l *zap.Logger) Option {
	return func(c *TelemetryClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithContext replaces the context applied to every record.
func WithContext(tc *telemetry.Context) Option {
	return func(c *TelemetryClient) {
		if tc != nil {
			c.context = tc
		}
	}
}

// New returns an enabled client submitting to ch. The internal SDK
// version tag is set on the context unless already present.
func New(ikey string, ch channel.TelemetryChannel, opts ...Option) *TelemetryClient {
	c := &TelemetryClient{
		channel: ch,
		context: telemetry.NewContext(ikey),
		enabled: atomic.NewBool(true),
		logger:  zap.NewNop(),
		limiter: doevery.New(time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.context.Tags == nil {
		c.context.Tags = telemetry.Tags{}
	}
	if _, ok := c.context.Tags[telemetry.InternalSDKVersion]; !ok {
		c.context.Tags[telemetry.InternalSDKVersion] = sdkVersionPrefix + Version
	}
	c.logger = c.logger.Named("client")
	return c
}

// Context returns the context applied to every record. It must not be
// modified once records are being tracked.
func (c *TelemetryClient) Context() *telemetry.Context {
	return c.context
}

// Channel returns the channel records are submitted to.
func (c *TelemetryClient) Channel() channel.TelemetryChannel {
	return c.channel
}

// InstrumentationKey returns the key stamped on every envelope.
func (c *TelemetryClient) InstrumentationKey() string {
	return c.context.InstrumentationKey
}

// Enabled reports whether Track submits records.
func (c *TelemetryClient) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled turns submission on or off. Records tracked while disabled
// are discarded without error.
func (c *TelemetryClient) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Track submits t. It blocks only as long as the channel's Enqueue does;
// the error is the channel's verdict on the submission.
func (c *TelemetryClient) Track(t telemetry.Telemetry) error {
	if t == nil || !c.Enabled() {
		return nil
	}
	err := c.channel.Enqueue(t.ToEnvelope(c.context))
	if err != nil {
		c.limiter.Do("enqueue", func(suppressed int) {
			c.logger.Warn("telemetry not submitted", zap.Error(err), zap.Int("suppressed", suppressed))
		})
	}
	return err
}

// TrackTrace submits a log message at the given severity.
func (c *TelemetryClient) TrackTrace(message string, severity contracts.SeverityLevel) error {
	return c.Track(telemetry.NewTrace(message, severity))
}

// TrackEvent submits a named custom event.
func (c *TelemetryClient) TrackEvent(name string) error {
	return c.Track(telemetry.NewEvent(name))
}

// TrackMetric submits a single measurement.
func (c *TelemetryClient) TrackMetric(name string, value float64) error {
	return c.Track(telemetry.NewMetric(name, value))
}

// TrackRequest submits an incoming request. The request is successful
// when responseCode is below 400.
func (c *TelemetryClient) TrackRequest(method, url string, duration time.Duration, responseCode string) error {
	return c.Track(telemetry.NewRequest(method, url, duration, responseCode))
}

func (c *TelemetryClient) TrackRemoteDependency(name, dependencyType, target string, success bool) error {
	return c.Track(telemetry.NewRemoteDependency(name, dependencyType, target, success))
}

func (c *TelemetryClient) TrackAvailability(name string, duration time.Duration, success bool) error {
	return c.Track(telemetry.NewAvailability(name, duration, success))
}

func (c *TelemetryClient) TrackPageView(name, url string) error {
	return c.Track(telemetry.NewPageView(name, url))
}

// TrackException submits err with the stack of the caller.
func (c *TelemetryClient) TrackException(err error) error {
	if err == nil {
		return nil
	}
	return c.Track(telemetry.NewException(err))
}

// Flush asks the channel to send everything queued now.
func (c *TelemetryClient) Flush() {
	c.channel.Flush()
}

// Close stops the channel and waits for pending records to be delivered
// until ctx is done.
func (c *TelemetryClient) Close(ctx context.Context) (channel.DrainReport, error) {
	return c.channel.Stop(ctx)
}

// Terminate stops the channel without delivering pending records.
func (c *TelemetryClient) Terminate(ctx context.Context) (channel.DrainReport, error) {
	return c.channel.Terminate(ctx)
}
