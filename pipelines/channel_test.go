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
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
	"github.com/lightstep/appinsights-go/pipelines/test"
)

const testKey = "00000000-0000-0000-0000-000000000001"

func envelopes(n int) []*contracts.Envelope {
	ctx := telemetry.NewContext(testKey)
	out := make([]*contracts.Envelope, n)
	for i := range out {
		out[i] = telemetry.NewEvent("test-event").ToEnvelope(ctx)
	}
	return out
}

func TestInsecureChannel(t *testing.T) {
	server := test.NewServer(t)

	ch, err := NewChannelPipeline(PipelineConfig{
		Endpoint:           server.InsecureURL,
		InstrumentationKey: testKey,
		Headers: map[string]string{
			"test-header": "test-value",
		},
		Compression: true,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	for _, env := range envelopes(3) {
		require.NoError(t, ch.Enqueue(env))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rep, err := ch.Stop(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, rep.Delivered)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Compressed)
	assert.Equal(t, "test-value", reqs[0].Header.Get("test-header"))
	assert.Equal(t, testKey, reqs[0].Header.Get("X-Instrumentation-Key"))
	require.Len(t, reqs[0].Envelopes, 3)
	assert.Equal(t, "Microsoft.ApplicationInsights.Event", reqs[0].Envelopes[0].Name)
	assert.Empty(t, server.Failures())
}

func TestSecureChannel(t *testing.T) {
	server := test.NewServer(t)
	tlsConfig, err := test.ClientTLSConfig()
	require.NoError(t, err)

	ch, err := NewChannelPipeline(PipelineConfig{
		Endpoint:           server.SecureURL,
		InstrumentationKey: testKey,
		TLSConfig:          tlsConfig,
		Logger:             zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	for _, env := range envelopes(2) {
		require.NoError(t, ch.Enqueue(env))
	}
	_, err = ch.Stop(context.Background())
	require.NoError(t, err)

	assert.Len(t, server.Envelopes(), 2)
	assert.EqualValues(t, 2, ch.Stats().ItemsSent)
}

func TestSyncPipeline(t *testing.T) {
	server := test.NewServer(t)
	server.Respond(
		test.Response{Status: http.StatusOK},
		test.Response{Status: http.StatusBadRequest, Body: []byte("bad envelope")},
	)

	ch, err := NewSyncPipeline(PipelineConfig{
		Endpoint:           server.InsecureURL,
		InstrumentationKey: testKey,
		Logger:             zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Equal(t, channel.Started, ch.State())

	envs := envelopes(2)
	require.NoError(t, ch.Enqueue(envs[0]))
	assert.Len(t, server.Envelopes(), 1)

	err = ch.Enqueue(envs[1])
	assert.ErrorIs(t, err, channel.ErrPermanentRejection)

	_, err = ch.Stop(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, ch.Enqueue(envs[0]), channel.ErrChannelClosed)
}

func TestInvalidEndpoint(t *testing.T) {
	_, err := NewChannelPipeline(PipelineConfig{Endpoint: "ftp://example.com"})
	assert.Error(t, err)

	_, err = NewSyncPipeline(PipelineConfig{Endpoint: "ftp://example.com"})
	assert.Error(t, err)
}

func TestInvalidChannelConfig(t *testing.T) {
	_, err := NewChannelPipeline(PipelineConfig{
		Endpoint: "http://127.0.0.1:1/v2/track",
		Channel:  channel.Config{QueueCapacity: -1},
	})
	assert.Error(t, err)
}
