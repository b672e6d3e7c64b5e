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
	"iter"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
)

// queue is the bounded submission queue. Any number of producers may
// enqueue; only the worker dequeues.
type queue struct {
	items  chan *contracts.Envelope
	notify chan struct{}
}

func newQueue(capacity int) *queue {
	return &queue{
		items:  make(chan *contracts.Envelope, capacity),
		notify: make(chan struct{}, 1),
	}
}

// enqueue adds env without blocking. It returns false when the queue is
// at capacity.
func (q *queue) enqueue(env *contracts.Envelope) bool {
	select {
	case q.items <- env:
	default:
		return false
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// dequeueBatch yields up to max items that are available right now, in
// FIFO order. It never waits for more.
func (q *queue) dequeueBatch(max int) iter.Seq[*contracts.Envelope] {
	return func(yield func(*contracts.Envelope) bool) {
		for i := 0; i < max; i++ {
			select {
			case env := <-q.items:
				if !yield(env) {
					return
				}
			default:
				return
			}
		}
	}
}

func (q *queue) len() int {
	return len(q.items)
}
