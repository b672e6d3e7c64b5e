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

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
)

const testKey = "00000000-0000-0000-0000-000000000001"

type recordingChannel struct {
	mu        sync.Mutex
	envelopes []*contracts.Envelope
	err       error
	flushes   int
	stopped   bool
	halted    bool
}

func (r *recordingChannel) Enqueue(env *contracts.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.envelopes = append(r.envelopes, env)
	return nil
}

func (r *recordingChannel) Start() error { return nil }

func (r *recordingChannel) Stop(context.Context) (channel.DrainReport, error) {
	r.stopped = true
	return channel.DrainReport{Delivered: int64(len(r.envelopes))}, nil
}

func (r *recordingChannel) Flush() { r.flushes++ }

func (r *recordingChannel) Terminate(context.Context) (channel.DrainReport, error) {
	r.halted = true
	return channel.DrainReport{}, nil
}

func (r *recordingChannel) Stats() channel.Stats { return channel.Stats{} }
func (r *recordingChannel) State() channel.State { return channel.Started }

func (r *recordingChannel) sent() []*contracts.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*contracts.Envelope(nil), r.envelopes...)
}

func newTestClient(t *testing.T, opts ...Option) (*TelemetryClient, *recordingChannel) {
	ch := &recordingChannel{}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	return New(testKey, ch, opts...), ch
}

func TestTrackKinds(t *testing.T) {
	c, ch := newTestClient(t)

	require.NoError(t, c.TrackTrace("hello", contracts.Warning))
	require.NoError(t, c.TrackEvent("signup"))
	require.NoError(t, c.TrackMetric("queue.depth", 3))
	require.NoError(t, c.TrackRequest("GET", "https://example.com/", time.Second, "200"))
	require.NoError(t, c.TrackRemoteDependency("SELECT", "SQL", "db", true))
	require.NoError(t, c.TrackAvailability("probe", time.Second, true))
	require.NoError(t, c.TrackPageView("home", "https://example.com/"))
	require.NoError(t, c.TrackException(errors.New("boom")))

	var names []string
	for _, env := range ch.sent() {
		names = append(names, env.Name)
		require.NotNil(t, env.IKey)
		assert.Equal(t, testKey, *env.IKey)
		assert.Equal(t, sdkVersionPrefix+Version, env.Tags[telemetry.InternalSDKVersion])
	}
	assert.Equal(t, []string{
		"Microsoft.ApplicationInsights.Message",
		"Microsoft.ApplicationInsights.Event",
		"Microsoft.ApplicationInsights.Metric",
		"Microsoft.ApplicationInsights.Request",
		"Microsoft.ApplicationInsights.RemoteDependency",
		"Microsoft.ApplicationInsights.Availability",
		"Microsoft.ApplicationInsights.PageView",
		"Microsoft.ApplicationInsights.Exception",
	}, names)
}

func TestTrackNilException(t *testing.T) {
	c, ch := newTestClient(t)
	require.NoError(t, c.TrackException(nil))
	require.NoError(t, c.Track(nil))
	assert.Empty(t, ch.sent())
}

func TestDisabledDiscards(t *testing.T) {
	c, ch := newTestClient(t)
	assert.True(t, c.Enabled())

	c.SetEnabled(false)
	require.NoError(t, c.TrackEvent("ignored"))
	assert.Empty(t, ch.sent())

	c.SetEnabled(true)
	require.NoError(t, c.TrackEvent("kept"))
	assert.Len(t, ch.sent(), 1)
}

func TestContextApplied(t *testing.T) {
	tc := telemetry.NewContext(testKey)
	tc.Tags[telemetry.CloudRole] = "checkout"
	tc.Tags[telemetry.InternalSDKVersion] = "custom"
	tc.Properties["region"] = "west"

	c, ch := newTestClient(t, WithContext(tc))
	assert.Same(t, tc, c.Context())

	ev := telemetry.NewEvent("paid")
	ev.Tags = telemetry.Tags{telemetry.CloudRole: "billing"}
	require.NoError(t, c.Track(ev))

	sent := ch.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "billing", sent[0].Tags[telemetry.CloudRole])
	assert.Equal(t, "custom", sent[0].Tags[telemetry.InternalSDKVersion])

	data, ok := sent[0].Data.BaseData.(*contracts.EventData)
	require.True(t, ok)
	assert.Equal(t, "west", data.Properties["region"])
}

func TestTrackReturnsChannelError(t *testing.T) {
	c, ch := newTestClient(t)
	ch.err = channel.ErrQueueFull

	for range 3 {
		assert.ErrorIs(t, c.TrackEvent("dropped"), channel.ErrQueueFull)
	}
}

func TestLifecycleDelegates(t *testing.T) {
	c, ch := newTestClient(t)
	require.NoError(t, c.TrackEvent("one"))

	c.Flush()
	assert.Equal(t, 1, ch.flushes)

	rep, err := c.Close(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.Delivered)
	assert.True(t, ch.stopped)

	_, err = c.Terminate(context.Background())
	require.NoError(t, err)
	assert.True(t, ch.halted)
	assert.Same(t, ch, c.Channel())
	assert.Equal(t, testKey, c.InstrumentationKey())
}
