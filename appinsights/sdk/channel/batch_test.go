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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

type batchSink struct {
	batches []*transmitter.Batch
}

func (s *batchSink) emit(b *transmitter.Batch) {
	s.batches = append(s.batches, b)
}

func (s *batchSink) sizes() []int {
	var out []int
	for _, b := range s.batches {
		out = append(out, b.Len())
	}
	return out
}

func item(n int) transmitter.Item {
	return transmitter.Item(strings.Repeat("x", n))
}

func TestAggregatorCountTrigger(t *testing.T) {
	sink := &batchSink{}
	a := newAggregator(3, 1<<20, sink.emit)

	require.False(t, a.add(item(1)))
	require.False(t, a.add(item(1)))
	require.True(t, a.add(item(1)))
	require.False(t, a.add(item(1)))

	require.Equal(t, []int{3}, sink.sizes())
	require.Equal(t, 3, sink.batches[0].Bytes)
	require.Equal(t, 1, a.len())
}

func TestAggregatorByteTrigger(t *testing.T) {
	sink := &batchSink{}
	a := newAggregator(100, 10, sink.emit)

	a.add(item(4))
	a.add(item(4))
	// 8 + 4 > 10: the accumulated two are cut before the third is added.
	require.True(t, a.add(item(4)))
	require.Equal(t, []int{2}, sink.sizes())
	require.Equal(t, 1, a.len())

	// Reaching the limit exactly cuts right away.
	require.True(t, a.add(item(6)))
	require.Equal(t, []int{2, 2}, sink.sizes())
	require.Equal(t, 10, sink.batches[1].Bytes)
	require.Zero(t, a.len())
}

func TestAggregatorOversizedItem(t *testing.T) {
	sink := &batchSink{}
	a := newAggregator(100, 10, sink.emit)

	a.add(item(2))
	require.True(t, a.add(item(50)))
	require.Equal(t, []int{1, 1}, sink.sizes())
	require.Equal(t, 50, sink.batches[1].Bytes)
}

func TestAggregatorCut(t *testing.T) {
	sink := &batchSink{}
	a := newAggregator(100, 1<<20, sink.emit)

	require.False(t, a.cut(), "empty accumulator emits nothing")
	a.add(item(1))
	a.add(item(2))
	require.True(t, a.cut())
	require.Equal(t, []int{2}, sink.sizes())
	require.False(t, a.cut())

	a.add(item(1))
	require.Equal(t, 1, a.discard())
	require.Zero(t, a.len())
}
