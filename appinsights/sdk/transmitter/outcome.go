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

package transmitter

import (
	"fmt"
	"time"
)

// Kind classifies the result of one transmission.
type Kind int

const (
	// Success means every item was accepted.
	Success Kind = iota
	// Partial means the endpoint accepted some items. Outcome.Retry holds
	// the retryable remainder, if any, and Outcome.Rejected the rest.
	Partial
	// Retryable means the whole batch may be sent again later.
	Retryable
	// Permanent means the batch was rejected and must not be resent.
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Partial:
		return "partial"
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Rejection describes an item the endpoint refused for good.
type Rejection struct {
	Index      int
	StatusCode int
	Message    string
}

// Outcome is what Transmit reports for a batch.
type Outcome struct {
	Kind       Kind
	StatusCode int

	// Accepted is the number of items the endpoint took.
	Accepted int

	// Retry is the batch to resend. For Retryable it is the batch that
	// was transmitted; for Partial it is a new batch or nil.
	Retry *Batch

	Rejected []Rejection

	// RetryAfter is the earliest time the endpoint asked to be contacted
	// again. Zero when absent.
	RetryAfter time.Time

	// Bytes is the request body size written to the wire.
	Bytes int

	Err error
}
