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

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the submission queue is at
	// capacity. The item is dropped and counted.
	ErrQueueFull = errors.New("telemetry queue is full")

	// ErrChannelClosed is returned by Enqueue once the channel is
	// stopping or halted.
	ErrChannelClosed = errors.New("telemetry channel is closed")

	// ErrNotStarted is returned by Enqueue before Start.
	ErrNotStarted = errors.New("telemetry channel is not started")

	// ErrNilEnvelope is returned by Enqueue for a nil envelope.
	ErrNilEnvelope = errors.New("nil telemetry envelope")

	// ErrIllegalTransition is wrapped by lifecycle calls that are not
	// valid in the current state.
	ErrIllegalTransition = errors.New("illegal channel state transition")

	// ErrTransientTransport marks a failed attempt that may be retried.
	ErrTransientTransport = errors.New("transient transport failure")

	// ErrPermanentRejection marks items the endpoint refused for good.
	ErrPermanentRejection = errors.New("permanently rejected")

	// ErrRetryExhausted marks batches dropped after their last allowed
	// attempt or evicted from a full retry queue.
	ErrRetryExhausted = errors.New("retries exhausted")

	// ErrShutdownTimeout marks items abandoned at the drain deadline.
	ErrShutdownTimeout = errors.New("shutdown deadline exceeded")
)
