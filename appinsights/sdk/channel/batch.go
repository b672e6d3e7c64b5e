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

import "github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"

// aggregator accumulates encoded items and cuts them into batches.
type aggregator struct {
	maxItems int
	maxBytes int
	emit     func(*transmitter.Batch)

	items []transmitter.Item
	bytes int
}

func newAggregator(maxItems, maxBytes int, emit func(*transmitter.Batch)) *aggregator {
	return &aggregator{
		maxItems: maxItems,
		maxBytes: maxBytes,
		emit:     emit,
	}
}

// add appends it and reports whether a batch was cut. An item that would
// overflow the byte limit first cuts what is accumulated.
func (a *aggregator) add(it transmitter.Item) bool {
	cut := false
	if len(a.items) > 0 && a.bytes+len(it) > a.maxBytes {
		cut = a.cut()
	}
	a.items = append(a.items, it)
	a.bytes += len(it)
	if len(a.items) >= a.maxItems || a.bytes >= a.maxBytes {
		cut = a.cut() || cut
	}
	return cut
}

// cut emits the accumulated items as one batch. It emits nothing when
// empty.
func (a *aggregator) cut() bool {
	if len(a.items) == 0 {
		return false
	}
	b := &transmitter.Batch{Items: a.items, Bytes: a.bytes}
	a.items = nil
	a.bytes = 0
	a.emit(b)
	return true
}

func (a *aggregator) len() int {
	return len(a.items)
}

// discard drops the accumulated items and returns how many there were.
func (a *aggregator) discard() int {
	n := len(a.items)
	a.items = nil
	a.bytes = 0
	return n
}
