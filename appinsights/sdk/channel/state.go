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

import "fmt"

// State is the lifecycle state of a channel.
type State int32

const (
	// Stopped is the initial state. Nothing is accepted yet.
	Stopped State = iota
	// Started accepts items and runs the flush timer.
	Started
	// Stopping rejects new items and drains accepted ones.
	Stopping
	// Halted is terminal.
	Halted
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type event int

const (
	eventStart event = iota
	eventStop
	eventHalt
	eventFlush
)

func (e event) String() string {
	switch e {
	case eventStart:
		return "start"
	case eventStop:
		return "stop"
	case eventHalt:
		return "halt"
	case eventFlush:
		return "flush"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// next returns the state reached from s on e.
func (s State) next(e event) (State, error) {
	switch s {
	case Stopped:
		switch e {
		case eventStart:
			return Started, nil
		case eventStop, eventHalt:
			// Never started: there is nothing to drain.
			return Halted, nil
		}
	case Started:
		switch e {
		case eventStop:
			return Stopping, nil
		case eventHalt:
			return Halted, nil
		case eventFlush:
			return Started, nil
		}
	case Stopping:
		switch e {
		case eventHalt:
			return Halted, nil
		case eventFlush:
			return Stopping, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, e, s)
}
