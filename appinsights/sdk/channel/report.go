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

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// DrainReport describes what happened to accepted items during Stop or
// Terminate.
type DrainReport struct {
	// Delivered counts items the endpoint accepted while draining.
	Delivered int64
	// Dropped counts items discarded while draining: permanent
	// rejections and exhausted retries.
	Dropped int64
	// Lost counts items still pending when the channel halted.
	Lost int64
	// TimedOut is set when the drain deadline forced the halt.
	TimedOut bool

	causes error
}

// Err summarises the losses of the drain. It is nil when nothing was
// dropped and nothing was abandoned at the deadline.
func (r DrainReport) Err() error {
	err := r.causes
	if r.TimedOut && r.Lost > 0 {
		err = multierr.Append(err, fmt.Errorf("%w: %d items lost", ErrShutdownTimeout, r.Lost))
	}
	return err
}

// addCause records err unless an error of the same kind is already
// recorded.
func (r *DrainReport) addCause(err error) {
	for _, sentinel := range []error{ErrPermanentRejection, ErrRetryExhausted} {
		if errors.Is(err, sentinel) && errors.Is(r.causes, sentinel) {
			return
		}
	}
	r.causes = multierr.Append(r.causes, err)
}
