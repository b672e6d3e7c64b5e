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

// Package channel accepts telemetry envelopes from any goroutine, batches
// them on a single worker and delivers the batches through a Sender,
// retrying transient failures with bounded attempts and bounded memory.
package channel // import "github.com/lightstep/appinsights-go/appinsights/sdk/channel"

import (
	"context"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

//go:generate mockgen -destination=mock_sender_test.go -package=channel github.com/lightstep/appinsights-go/appinsights/sdk/channel Sender

// TelemetryChannel is the producer side of a channel.
type TelemetryChannel interface {
	// Enqueue submits env without blocking. It fails with ErrQueueFull,
	// ErrNotStarted or ErrChannelClosed.
	Enqueue(env *contracts.Envelope) error

	// Start launches delivery. A channel can be started once.
	Start() error

	// Stop stops accepting items and drains what was accepted until
	// everything is delivered or the deadline of ctx passes.
	Stop(ctx context.Context) (DrainReport, error)

	// Flush asks for everything queued to be batched and sent now.
	Flush()

	// Terminate halts immediately. Pending items are counted as lost.
	Terminate(ctx context.Context) (DrainReport, error)

	Stats() Stats
	State() State
}

// Sender delivers one batch and reports the outcome. Implementations
// must be safe for concurrent use.
type Sender interface {
	Transmit(ctx context.Context, batch *transmitter.Batch) transmitter.Outcome
}

var (
	_ TelemetryChannel = (*InMemoryChannel)(nil)
	_ TelemetryChannel = (*SyncChannel)(nil)
	_ Sender           = (*transmitter.Transmitter)(nil)
)
