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

package transmitter // import "github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"

import "bytes"

// Item is one encoded envelope.
type Item []byte

// Batch is an ordered group of items sent in one request. A batch is
// never split or merged once built; a partial success produces a new
// batch instead.
type Batch struct {
	Items []Item
	Bytes int
}

// NewBatch builds a batch from items, computing its size.
func NewBatch(items []Item) *Batch {
	b := &Batch{Items: items}
	for _, it := range items {
		b.Bytes += len(it)
	}
	return b
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Items)
}

// Body renders the batch as a JSON array.
func (b *Batch) Body() []byte {
	var buf bytes.Buffer
	buf.Grow(b.Bytes + len(b.Items) + 1)
	buf.WriteByte('[')
	for i, it := range b.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(it)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}
